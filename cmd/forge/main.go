package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideaforge/internal/app"
	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/pipeline"
	"ideaforge/internal/repo"
	"ideaforge/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Ideaforge CLI",
	Long: `Ideaforge turns a raw startup idea into a structured startup DNA.
A run classifies the idea, then four agents analyze it in order:
- BizMind: market validation (customers, competitors, TAM, risks, score)
- BrandPulse: brand identity (name, tagline, tone, palette, story)
- CodeWeaver: technical plan (stack, architecture, API, MVP cut)
- LaunchLens: go-to-market (pricing, channels, pitch, forecast)
Each agent's artifact is stored per idea; the final DNA record aggregates
all four. Progress is streamed live and kept as a durable event log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("IDEAFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner-id", "local-user", "owner identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner-id", rootCmd.PersistentFlags().Lookup("owner-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(ideaCmd())
	rootCmd.AddCommand(dnaCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace and write default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			appCtx, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			fmt.Printf("Initialized workspace at %s (config: %s, db: %s)\n", workspace, path, db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func runCmd() *cobra.Command {
	var idea string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline for an idea",
		Long:  "Runs classification and all four agents, printing each progress event as a JSON line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(idea) == "" {
				return fmt.Errorf("--idea required")
			}
			return withApp(func(appCtx *app.Context) error {
				client, err := appCtx.LLMClient()
				if err != nil {
					return err
				}
				orch, err := appCtx.Orchestrator(client)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				ideaID, err := orch.Run(cmd.Context(), pipeline.Request{
					IdeaText: idea,
					OwnerID:  viper.GetString("owner-id"),
				}, func(ev pipeline.Event) {
					_ = enc.Encode(ev)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "idea: %s\n", ideaID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&idea, "idea", "", "raw startup idea text")
	_ = cmd.MarkFlagRequired("idea")
	return cmd
}

func ideaCmd() *cobra.Command {
	idea := &cobra.Command{Use: "idea", Short: "Inspect stored ideas"}
	idea.AddCommand(ideaListCmd())
	idea.AddCommand(ideaShowCmd())
	idea.AddCommand(ideaLogsCmd())
	return idea
}

func ideaListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				owner := viper.GetString("owner-id")
				if all {
					owner = ""
				}
				items, err := appCtx.Repo.ListIdeas(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Urgency", "Created"})
				for _, i := range items {
					tw.AppendRow(table.Row{i.ID, titleFor(i), i.Intent.ProductType, i.Intent.Urgency, i.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list ideas for all owners")
	return cmd
}

func titleFor(i domain.Idea) string {
	if i.Intent.Title != "" {
		return i.Intent.Title
	}
	text := i.IdeaText
	if len(text) > 40 {
		return text[:40] + "..."
	}
	return text
}

func ideaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an idea and its agent results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				ctx := cmd.Context()
				idea, err := appCtx.Repo.GetIdea(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{"idea": idea}
				if v, err := appCtx.Repo.GetValidation(ctx, idea.ID); err == nil {
					out["validation"] = v
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				if b, err := appCtx.Repo.GetBranding(ctx, idea.ID); err == nil {
					out["branding"] = b
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				if t, err := appCtx.Repo.GetTech(ctx, idea.ID); err == nil {
					out["tech"] = t
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				if l, err := appCtx.Repo.GetLaunch(ctx, idea.ID); err == nil {
					out["launch"] = l
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func ideaLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show the pipeline event log for an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				events, err := appCtx.Repo.ListProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Phase", "Sub-phase", "Progress", "Message", "Error"})
				for _, ev := range events {
					progress := ""
					if ev.Progress != nil {
						progress = fmt.Sprintf("%d%%", *ev.Progress)
					}
					tw.AppendRow(table.Row{ev.ID, ev.Phase, ev.SubPhase, progress, ev.Message, ev.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func dnaCmd() *cobra.Command {
	dna := &cobra.Command{Use: "dna", Short: "Inspect DNA aggregates"}
	dna.AddCommand(&cobra.Command{
		Use:   "show <idea-id>",
		Short: "Show the latest DNA record for an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				rec, err := appCtx.Repo.GetDNA(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})
	return dna
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				secret := uuid.NewString()
				rec := domain.APIKey{
					ID:      uuid.NewString(),
					OwnerID: viper.GetString("owner-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := appCtx.Repo.InsertAPIKey(cmd.Context(), rec); err != nil {
					return err
				}
				// The secret is shown once; only its hash is stored.
				return printJSONOrTable(map[string]string{
					"id":      rec.ID,
					"api_key": secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				keys, err := appCtx.Repo.ListAPIKeys(cmd.Context(), viper.GetString("owner-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				return appCtx.Repo.DeleteAPIKey(cmd.Context(), args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(appCtx *app.Context) error {
				client, err := appCtx.LLMClient()
				if err != nil {
					return err
				}
				orch, err := appCtx.Orchestrator(client)
				if err != nil {
					return err
				}
				reportsDir, err := appCtx.ReportsDir()
				if err != nil {
					return err
				}
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("IDEAFORGE_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("IDEAFORGE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Orchestrator: orch,
					Repo:         appCtx.Repo,
					ReportsDir:   reportsDir,
					BasePath:     basePath,
					Auth:         authCfg,
				})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(appCtx.Repo, appCtx.Config.Webhooks)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-cmd.Context().Done()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(ctx)
				}()
				fmt.Printf("Serving Ideaforge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withApp(fn func(*app.Context) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(appCtx)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
