package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/e-flux-platform/urlstream/internal/archive"
	"github.com/e-flux-platform/urlstream/internal/source"
	"github.com/e-flux-platform/urlstream/internal/storage"
	"github.com/e-flux-platform/urlstream/internal/urlstream"
)

type putConfig struct {
	url         string
	input       string
	contentType string
	timeout     time.Duration
}

type archiveConfig struct {
	storageURL      string
	mongoURL        string
	mongoDatabase   string
	mongoCollection string
	dateField       string
	delete          bool
	gzip            bool
	retention       time.Duration
	delay           time.Duration
}

func main() {
	var (
		putCfg     putConfig
		archiveCfg archiveConfig
		debug      bool
	)

	app := &cli.App{
		Name:  "urlstream",
		Usage: "write to file and http(s) destinations addressed by URL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				EnvVars:     []string{"DEBUG"},
				Destination: &debug,
			},
		},
		Before: func(*cli.Context) error {
			if debug {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "put",
				Usage: "copy a file, or stdin, to a URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "url",
						EnvVars:     []string{"PUT_URL"},
						Required:    true,
						Destination: &putCfg.url,
					},
					&cli.StringFlag{
						Name:        "input",
						EnvVars:     []string{"PUT_INPUT"},
						Value:       "-",
						Destination: &putCfg.input,
					},
					&cli.StringFlag{
						Name:        "content-type",
						EnvVars:     []string{"PUT_CONTENT_TYPE"},
						Destination: &putCfg.contentType,
					},
					&cli.DurationFlag{
						Name:        "timeout",
						EnvVars:     []string{"PUT_TIMEOUT"},
						Destination: &putCfg.timeout,
					},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := signal.NotifyContext(cCtx.Context, syscall.SIGTERM, syscall.SIGINT)
					defer cancel()
					return runPut(ctx, putCfg, os.Stdin)
				},
			},
			{
				Name:  "archive",
				Usage: "archive a mongo collection day by day to a storage URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "storage-url",
						EnvVars:     []string{"STORAGE_URL"},
						Required:    true,
						Destination: &archiveCfg.storageURL,
					},
					&cli.StringFlag{
						Name:        "mongo-url",
						EnvVars:     []string{"MONGO_URL"},
						Required:    true,
						Destination: &archiveCfg.mongoURL,
					},
					&cli.StringFlag{
						Name:        "mongo-database",
						EnvVars:     []string{"MONGO_DATABASE"},
						Required:    true,
						Destination: &archiveCfg.mongoDatabase,
					},
					&cli.StringFlag{
						Name:        "mongo-collection",
						EnvVars:     []string{"MONGO_COLLECTION"},
						Required:    true,
						Destination: &archiveCfg.mongoCollection,
					},
					&cli.StringFlag{
						Name:        "date-field",
						EnvVars:     []string{"DATE_FIELD"},
						Value:       source.DefaultDateField,
						Destination: &archiveCfg.dateField,
					},
					&cli.BoolFlag{
						Name:        "delete",
						EnvVars:     []string{"DELETE"},
						Destination: &archiveCfg.delete,
					},
					&cli.BoolFlag{
						Name:        "gzip",
						EnvVars:     []string{"GZIP"},
						Value:       true,
						Destination: &archiveCfg.gzip,
					},
					&cli.DurationFlag{
						Name:        "retention",
						EnvVars:     []string{"RETENTION"},
						Required:    true,
						Destination: &archiveCfg.retention,
					},
					&cli.DurationFlag{
						Name:        "delay",
						EnvVars:     []string{"DELAY"},
						Destination: &archiveCfg.delay,
						Value:       time.Second * 30,
					},
				},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := signal.NotifyContext(cCtx.Context, syscall.SIGTERM, syscall.SIGINT)
					defer cancel()
					return runArchive(ctx, archiveCfg)
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		slog.Error("exiting", slog.Any("error", err))
		os.Exit(1)
	}
}

func runPut(ctx context.Context, cfg putConfig, stdin io.Reader) error {
	in := stdin
	if cfg.input != "-" {
		f, err := os.Open(cfg.input)
		if err != nil {
			return fmt.Errorf("unable to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	out, err := urlstream.Open(ctx, cfg.url, urlstream.WithContentType(cfg.contentType))
	if err != nil {
		return fmt.Errorf("unable to open destination: %w", err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		// Nothing partial is left behind: the file is removed, the upload never sent
		_ = out.Abort()
		return fmt.Errorf("unable to write: %w", err)
	}
	if err = out.Flush(); err != nil {
		_ = out.Abort()
		return fmt.Errorf("unable to flush: %w", err)
	}
	if err = out.Close(); err != nil {
		return err
	}

	slog.Info(
		"written",
		slog.String("url", out.URL().Redacted()),
		slog.String("mode", out.Mode().String()),
		slog.Int64("bytes", n),
	)
	return nil
}

func runArchive(ctx context.Context, cfg archiveConfig) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.mongoURL))
	if err != nil {
		return fmt.Errorf("unable to connect to mongo: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	collection := client.Database(cfg.mongoDatabase).Collection(cfg.mongoCollection)
	docSource := source.NewCollection(collection, cfg.dateField)

	store, err := storage.FromURL(ctx, cfg.storageURL)
	if err != nil {
		return fmt.Errorf("unable to connect to storage: %w", err)
	}
	defer store.Close()

	targetDate := time.Now().UTC().Add(cfg.retention * -1)

	slog.Info(
		"running",
		slog.String("mongoURL", cfg.mongoURL),
		slog.String("database", cfg.mongoDatabase),
		slog.String("collection", cfg.mongoCollection),
		slog.String("dateField", cfg.dateField),
		slog.String("storageURL", cfg.storageURL),
		slog.Duration("retention", cfg.retention),
		slog.Duration("delay", cfg.delay),
		slog.Bool("gzip", cfg.gzip),
		slog.String("targetDate", targetDate.String()),
	)

	archiver := archive.NewArchiver(docSource, store, archive.Options{
		SkipDelete: !cfg.delete,
		Delay:      cfg.delay,
		Gzip:       cfg.gzip,
	})
	summary, err := archiver.Run(ctx, targetDate)
	if err != nil {
		return err
	}

	slog.Info(
		"archive complete",
		slog.Int("days", summary.Days),
		slog.Int("documents", summary.Documents),
		slog.Int("deleted", summary.Deleted),
	)
	return nil
}
