package repo

import (
	"context"
	"database/sql"

	"ideaforge/internal/domain"
)

func scanProgress(rows *sql.Rows) ([]domain.ProgressEvent, error) {
	defer rows.Close()
	var res []domain.ProgressEvent
	for rows.Next() {
		var ev domain.ProgressEvent
		var subPhase, message, fileURL, evErr sql.NullString
		var progress sql.NullInt64
		if err := rows.Scan(&ev.ID, &ev.IdeaID, &ev.OwnerID, &ev.Phase, &subPhase, &message, &progress, &fileURL, &evErr, &ev.TS); err != nil {
			return nil, err
		}
		ev.SubPhase = subPhase.String
		ev.Message = message.String
		ev.FileURL = fileURL.String
		ev.Error = evErr.String
		if progress.Valid {
			p := int(progress.Int64)
			ev.Progress = &p
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

// ListProgress returns the full event log of an idea in append order.
func (r Repo) ListProgress(ctx context.Context, ideaID string) ([]domain.ProgressEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,idea_id,owner_id,phase,sub_phase,message,progress,file_url,error,ts
FROM progress_events WHERE idea_id=? ORDER BY id ASC`, ideaID)
	if err != nil {
		return nil, err
	}
	return scanProgress(rows)
}

// ProgressAfter returns events with id greater than cursor, oldest first.
func (r Repo) ProgressAfter(ctx context.Context, cursor int64, limit int) ([]domain.ProgressEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,idea_id,owner_id,phase,sub_phase,message,progress,file_url,error,ts
FROM progress_events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanProgress(rows)
}

func (r Repo) LatestProgressID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT max(id) FROM progress_events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}
