package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// PruneResult reports what Prune deleted.
type PruneResult struct {
	Removed int
	Bytes   int64
	Failed  int
}

func (r PruneResult) String() string {
	s := fmt.Sprintf("removed %d files, freed %s", r.Removed, humanize.Bytes(uint64(max(r.Bytes, 0))))
	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}
	return s
}

// Prune deletes files created before now-olderThan. olderThan <= 0 is a no-op.
// Individual delete failures are counted and joined into the returned error.
func Prune(ctx context.Context, f *Finder, olderThan time.Duration, now time.Time) (PruneResult, error) {
	var res PruneResult
	if olderThan <= 0 {
		return res, nil
	}
	cutoff := now.Add(-olderThan)

	items, err := f.List(ctx)
	if err != nil {
		return res, err
	}
	var errs []error
	for _, it := range items {
		if !it.Created.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := os.Remove(it.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		res.Removed++
		res.Bytes += it.Size
	}
	return res, errors.Join(errs...)
}
