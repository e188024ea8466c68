package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/e-flux-platform/urlstream/internal/source"
)

// Archiver exports documents from a source, one file per day, and optionally removes them once
// the file is stored
type Archiver struct {
	source documentSource
	store  store
	opts   Options
}

// Options controls an archiving run
type Options struct {
	// SkipDelete leaves archived documents in the source
	SkipDelete bool
	// Delay is waited between days
	Delay time.Duration
	// Gzip compresses each day file
	Gzip bool
}

// Summary counts what a run did
type Summary struct {
	Days      int
	Documents int
	Deleted   int
}

type documentSource interface {
	FindAllFromDate(ctx context.Context, date time.Time) source.StreamingResult
	DeleteAllFromDate(ctx context.Context, date time.Time) (int, error)
	EarliestCreatedAt(ctx context.Context) (time.Time, error)
}

type store interface {
	Create(ctx context.Context, path string) (io.WriteCloser, error)
}

// aborter is implemented by writers that can discard what was written instead of committing it
type aborter interface {
	Abort() error
}

// NewArchiver initializes and returns an Archiver
func NewArchiver(source documentSource, storage store, opts Options) *Archiver {
	return &Archiver{
		source: source,
		store:  storage,
		opts:   opts,
	}
}

// Run archives every day from the earliest document up to, but excluding, the day of target
func (a *Archiver) Run(ctx context.Context, target time.Time) (Summary, error) {
	var summary Summary

	earliest, err := a.source.EarliestCreatedAt(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to get earliest created at: %w", err)
	}

	slog.Info(
		"archiver running",
		slog.String("target", target.String()),
		slog.String("earliest", earliest.String()),
	)

	for date := earliest.Truncate(time.Hour * 24); date.Before(target); date = date.AddDate(0, 0, 1) {
		slog.Info("archiving", slog.String("date", date.String()))

		n, err := a.archiveDocuments(ctx, date)
		if err != nil {
			return summary, fmt.Errorf("failed to archive documents for %s: %w", date.Format(time.DateOnly), err)
		}
		summary.Days++
		summary.Documents += n

		// Only reached once the day file has been committed by the store
		if !a.opts.SkipDelete {
			deleted, err := a.source.DeleteAllFromDate(ctx, date)
			if err != nil {
				return summary, fmt.Errorf("failed to delete documents: %w", err)
			}
			summary.Deleted += deleted
			slog.Info("documents deleted", slog.Int("total", deleted))
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-time.After(a.opts.Delay):
		}
	}

	return summary, nil
}

// FileName returns the path of the file holding the documents of date
func FileName(date time.Time, gzipped bool) string {
	name := path.Join(
		date.Format("2006"),
		date.Format("01"),
		date.Format("02")+".json",
	)
	if gzipped {
		name += ".gz"
	}
	return name
}

func (a *Archiver) archiveDocuments(ctx context.Context, date time.Time) (int, error) {
	fileName := FileName(date, a.opts.Gzip)

	slog.Info("writing to file", slog.String("fileName", fileName))

	w, err := a.store.Create(ctx, fileName)
	if err != nil {
		return 0, err
	}

	// Until Close is reached, a failure must not leave a partial day file behind
	closing := false
	defer func() {
		if closing {
			return
		}
		if ab, ok := w.(aborter); ok {
			if err := ab.Abort(); err != nil {
				slog.Warn("failed to abort file", slog.String("fileName", fileName), slog.Any("error", err))
			}
		}
	}()

	var (
		out = io.Writer(w)
		gw  *gzip.Writer
	)
	if a.opts.Gzip {
		if gw, err = gzip.NewWriterLevel(w, gzip.DefaultCompression); err != nil {
			return 0, err
		}
		out = gw
	}

	var i int
	res := a.source.FindAllFromDate(ctx, date)
	for doc := range res.Iter(ctx) {
		i++
		if _, err = out.Write(doc); err != nil {
			return 0, err
		}
		if _, err = io.WriteString(out, "\n"); err != nil {
			return 0, err
		}
	}
	if err = res.Err(); err != nil {
		return 0, err
	}

	// Closing the gzip writer does not close the underlying writer
	if gw != nil {
		if err = gw.Close(); err != nil {
			return 0, fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}

	// For remote stores this is where the file is actually sent
	closing = true
	if err = w.Close(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", fileName, err)
	}

	slog.Info("documents written", slog.Int("total", i))

	return i, nil
}
