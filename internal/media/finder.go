package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Item is one media file.
type Item struct {
	Path    string
	Size    int64
	Created time.Time
}

// Caption renders a short human description, e.g. "01-20240501.jpg (84 kB, 3 minutes ago)".
func (it Item) Caption(now time.Time) string {
	return fmt.Sprintf("%s (%s, %s)", filepath.Base(it.Path), humanize.Bytes(uint64(max(it.Size, 0))), humanize.RelTime(it.Created, now, "ago", "from now"))
}

// Finder looks up files in Dir whose extension is in Exts.
// Extensions are matched case-sensitively and include the dot (".jpg").
// Hidden files and directories are ignored.
type Finder struct {
	Dir  string
	Exts []string
}

func NewFinder(dir string, exts ...string) *Finder {
	return &Finder{Dir: dir, Exts: exts}
}

func (f *Finder) match(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	for _, e := range f.Exts {
		if ext == e {
			return true
		}
	}
	return false
}

// walk calls fn for every matching file in directory order.
// A missing directory yields no items.
func (f *Finder) walk(ctx context.Context, fn func(Item)) error {
	d, err := os.Open(f.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer d.Close()

	entries, err := d.ReadDir(-1)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !f.match(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// removed between readdir and stat
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		p := filepath.Join(f.Dir, e.Name())
		fn(Item{Path: p, Size: fi.Size(), Created: createdAt(p, fi)})
	}
	return nil
}

// Latest returns the newest matching file. Equal timestamps keep the first
// one encountered in directory order.
func (f *Finder) Latest(ctx context.Context) (Item, bool, error) {
	var (
		best  Item
		found bool
	)
	err := f.walk(ctx, func(it Item) {
		if !found || it.Created.After(best.Created) {
			best, found = it, true
		}
	})
	if err != nil {
		return Item{}, false, err
	}
	return best, found, nil
}

// List returns every matching file, newest first.
func (f *Finder) List(ctx context.Context) ([]Item, error) {
	var out []Item
	if err := f.walk(ctx, func(it Item) { out = append(out, it) }); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

// Stats summarizes a directory for /status.
type Stats struct {
	Count int
	Bytes int64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d (%s)", s.Count, humanize.Bytes(uint64(max(s.Bytes, 0))))
}

func (f *Finder) Count(ctx context.Context) (Stats, error) {
	var s Stats
	err := f.walk(ctx, func(it Item) {
		s.Count++
		s.Bytes += it.Size
	})
	return s, err
}
