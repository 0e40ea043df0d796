// Package batch downloads a list of URLs and reports where each was saved.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/accelara/downlink/internal/target"
)

// DownloadFunc streams sourceURL into outPath and returns the saved path.
type DownloadFunc func(ctx context.Context, sourceURL, outPath string) (string, error)

// Batch is one invocation's worth of downloads.
type Batch struct {
	URLs     []string
	Output   string // file path for a single URL, directory for several
	Dir      string
	Jobs     int
	Download DownloadFunc
	Logger   *zap.Logger
}

// TargetDir returns the directory all files go into, or "" when each URL is
// resolved on its own. An output given together with several URLs is
// treated as a directory; an explicit Dir wins.
func (b *Batch) TargetDir() string {
	if b.Dir != "" {
		return b.Dir
	}
	if b.Output != "" && len(b.URLs) > 1 {
		return b.Output
	}
	return ""
}

func (b *Batch) targetFor() string {
	if dir := b.TargetDir(); dir != "" {
		return dir
	}
	return b.Output
}

// Run downloads every URL and writes each saved path to w, one per line, in
// input order as soon as it and all earlier URLs have finished. The first
// failure stops the batch and is returned; later URLs are not started.
func (b *Batch) Run(ctx context.Context, w io.Writer) error {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := b.TargetDir(); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if b.Jobs <= 1 || len(b.URLs) == 1 {
		return b.runSequential(ctx, w, logger)
	}
	return b.runParallel(ctx, w, logger)
}

func (b *Batch) runSequential(ctx context.Context, w io.Writer, logger *zap.Logger) error {
	for _, src := range b.URLs {
		saved, err := b.fetch(ctx, src, logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, saved)
	}
	return nil
}

func (b *Batch) runParallel(ctx context.Context, w io.Writer, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Jobs)

	printer := newOrderedPrinter(w, len(b.URLs))

	for i, src := range b.URLs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			saved, err := b.fetch(gctx, src, logger)
			if err != nil {
				return err
			}
			printer.done(i, saved)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// The loop above stops early only when the parent context is cancelled.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	return nil
}

func (b *Batch) fetch(ctx context.Context, src string, logger *zap.Logger) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("download interrupted: %w", err)
	}

	outPath, err := target.Resolve(src, b.targetFor())
	if err != nil {
		return "", err
	}

	logger.Debug("resolved target", zap.String("url", src), zap.String("path", outPath))

	saved, err := b.Download(ctx, src, outPath)
	if err != nil {
		logger.Debug("download failed", zap.String("url", src), zap.Error(err))
		return "", err
	}
	return saved, nil
}

// orderedPrinter prints results in index order even when they complete out
// of order.
type orderedPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	results []string
	next    int
}

func newOrderedPrinter(w io.Writer, n int) *orderedPrinter {
	return &orderedPrinter{w: w, results: make([]string, n)}
}

func (p *orderedPrinter) done(i int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.results[i] = path
	for p.next < len(p.results) && p.results[p.next] != "" {
		fmt.Fprintln(p.w, p.results[p.next])
		p.next++
	}
}
