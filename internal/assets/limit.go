package assets

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/git-pkgs/assetd/internal/metrics"
)

// Limit wraps src so that at most n assets are open at the same time.
// Opening blocks until a slot is free or ctx is done. n <= 0 returns src.
func Limit(src Source, n int) Source {
	if n <= 0 {
		return src
	}
	return &limited{src: src, sem: semaphore.NewWeighted(int64(n))}
}

type limited struct {
	src Source
	sem *semaphore.Weighted
}

func (l *limited) Resolve(ctx context.Context, segments []string) (*Asset, error) {
	a, err := l.src.Resolve(ctx, segments)
	if err != nil {
		return nil, err
	}

	return a.withOpen(func(ctx context.Context) (io.ReadSeekCloser, error) {
		start := time.Now()
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for read slot: %w", err)
		}
		metrics.RecordReadSlotWait(time.Since(start))

		rc, err := a.Open(ctx)
		if err != nil {
			l.sem.Release(1)
			return nil, err
		}
		return &releasingReader{ReadSeekCloser: rc, release: sync.OnceFunc(func() { l.sem.Release(1) })}, nil
	}), nil
}

func (l *limited) Close() error {
	return l.src.Close()
}

// releasingReader gives back its read slot on the first Close.
type releasingReader struct {
	io.ReadSeekCloser
	release func()
}

func (r *releasingReader) Close() error {
	defer r.release()
	return r.ReadSeekCloser.Close()
}
