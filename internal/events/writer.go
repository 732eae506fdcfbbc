package events

import (
	"context"
	"database/sql"
	"time"

	"ideaforge/internal/domain"
)

// Writer appends pipeline progress events. Rows are append-only; readers
// page by the autoincrement id.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, ev domain.ProgressEvent) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if ev.TS == "" {
		ev.TS = w.Now().UTC().Format(time.RFC3339)
	}
	var progress any
	if ev.Progress != nil {
		progress = *ev.Progress
	}
	_, err := w.DB.ExecContext(ctx, `INSERT INTO progress_events(idea_id,owner_id,phase,sub_phase,message,progress,file_url,error,ts) VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.IdeaID, ev.OwnerID, ev.Phase, nullable(ev.SubPhase), nullable(ev.Message), progress, nullable(ev.FileURL), nullable(ev.Error), ev.TS)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
