package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	scraper "github.com/nkissick-del/ragflow-scraper-sub000"
	"github.com/nkissick-del/ragflow-scraper-sub000/collector/localdir"
	"github.com/nkissick-del/ragflow-scraper-sub000/config"
	"github.com/nkissick-del/ragflow-scraper-sub000/jobqueue"
	"github.com/nkissick-del/ragflow-scraper-sub000/search"
)

func main() {
	// Secrets like the archive token come from the environment; .env is a
	// convenience for local runs and absent in production.
	godotenv.Load()

	app := &cli.App{
		Name:  "ragscraper",
		Usage: "Document ingestion pipeline with semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run a collector and ingest everything it finds",
				ArgsUsage: "<collector>",
				Action:    runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Directory to collect from (registers a local-directory collector)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search ingested documents",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
						Value:   5,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Restrict the search to one source",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Drop results below this similarity",
					},
				},
			},
			{
				Name:      "purge",
				Usage:     "Delete every stored record of a source",
				ArgsUsage: "<source>",
				Action:    purgeCommand,
			},
			{
				Name:      "status",
				Usage:     "Show the state of a collector's last job",
				ArgsUsage: "<collector>",
				Action:    statusCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every stored chunk with the configured model",
				Action: reindexCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func openApp(c *cli.Context) (*scraper.App, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return scraper.New(cfg)
}

func runCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("collector name is required")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	if dir := c.String("dir"); dir != "" {
		stageDir, err := os.MkdirTemp("", "ragscraper-stage-")
		if err != nil {
			return err
		}
		if err := app.Registry().Register(name, localdir.Factory(name, dir, stageDir)); err != nil {
			return err
		}
	}

	job, err := app.SubmitRun(name, os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("Job %s submitted for collector %q\n", job.ID, name)

	// Block until the job reaches a terminal state.
	for {
		status, err := app.Queue().Status(name)
		if err != nil {
			return err
		}
		switch status.State {
		case jobqueue.StateQueued, jobqueue.StateRunning:
			time.Sleep(200 * time.Millisecond)
			continue
		case jobqueue.StateFailed:
			return fmt.Errorf("run failed: %w", status.Err)
		case jobqueue.StateCancelled:
			return fmt.Errorf("run cancelled")
		}

		if summary, ok := status.Result.(*scraper.RunSummary); ok {
			fmt.Printf("Run complete: %d processed, %d succeeded, %d failed, %d skipped in %v\n",
				summary.Processed, summary.Succeeded, summary.Failed, summary.Skipped,
				summary.Elapsed.Round(time.Second))
		}
		return nil
	}
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	searcher, err := app.NewSearcher()
	if err != nil {
		return err
	}

	results, err := searcher.Search(context.Background(), query, search.Options{
		TopK:     c.Int("top-k"),
		Source:   c.String("source"),
		MinScore: float32(c.Float64("min-score")),
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, result := range results {
		record := result.Record
		title := record.Metadata["title"]
		if title == "" {
			title = record.DocumentID
		}
		fmt.Printf("%d. [%.3f] %s (%s, chunk %d)\n", i+1, result.Score, title, record.Source, record.ChunkIndex)
		if record.Heading != "" {
			fmt.Printf("   %s\n", record.Heading)
		}
		fmt.Printf("   %s\n", snippet(record.Text, 200))
	}
	return nil
}

func purgeCommand(c *cli.Context) error {
	source := c.Args().First()
	if source == "" {
		return fmt.Errorf("source name is required")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	count, err := app.Repository().Count(ctx, source)
	if err != nil {
		return err
	}
	if err := app.Purge(ctx, source); err != nil {
		return err
	}
	fmt.Printf("Purged %d records from source %q\n", count, source)
	return nil
}

func statusCommand(c *cli.Context) error {
	owner := c.Args().First()
	if owner == "" {
		return fmt.Errorf("collector name is required")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	status, err := app.Queue().Status(owner)
	if err != nil {
		return err
	}

	fmt.Printf("Job %s: %s (submitted %s)\n", status.ID, status.State, status.SubmittedAt.Format(time.RFC3339))
	if !status.FinishedAt.IsZero() {
		fmt.Printf("Finished at %s\n", status.FinishedAt.Format(time.RFC3339))
	}
	if status.Err != nil {
		fmt.Printf("Error: %v\n", status.Err)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.NewReindexer(os.Stderr).Run(context.Background())
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
