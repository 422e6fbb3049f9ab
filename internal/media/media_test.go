package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// touch creates files in order, sleeping between them so creation times differ.
func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestLatestPicksNewestByCreation(t *testing.T) {
	dir := t.TempDir()
	// Name order deliberately disagrees with creation order.
	touch(t, dir, "03-b.jpg", "01-c.jpg", "02-a.jpg", "99-z.mkv")

	it, ok, err := NewFinder(dir, ".jpg").Latest(context.Background())
	if err != nil || !ok {
		t.Fatalf("Latest = %v, %v", ok, err)
	}
	if filepath.Base(it.Path) != "02-a.jpg" {
		t.Fatalf("Latest = %s, want 02-a.jpg", it.Path)
	}

	vid, ok, _ := NewFinder(dir, ".mkv").Latest(context.Background())
	if !ok || filepath.Base(vid.Path) != "99-z.mkv" {
		t.Fatalf("video = %+v", vid)
	}
}

func TestLatestIgnoresHiddenDirsAndOtherExts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", ".hidden.jpg", "b.JPG", "c.jpg.tmp")
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}
	it, ok, err := NewFinder(dir, ".jpg").Latest(context.Background())
	if err != nil || !ok || filepath.Base(it.Path) != "a.jpg" {
		t.Fatalf("Latest = %+v, %v, %v", it, ok, err)
	}
}

func TestLatestEmptyAndMissingDir(t *testing.T) {
	for _, dir := range []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")} {
		_, ok, err := NewFinder(dir, ".jpg").Latest(context.Background())
		if err != nil || ok {
			t.Fatalf("Latest(%s) = %v, %v; want not found", dir, ok, err)
		}
	}
}

func TestListAndCount(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1.jpg", "2.jpg", "3.jpg")
	f := NewFinder(dir, ".jpg")

	items, err := f.List(context.Background())
	if err != nil || len(items) != 3 {
		t.Fatalf("List = %d, %v", len(items), err)
	}
	if filepath.Base(items[0].Path) != "3.jpg" || filepath.Base(items[2].Path) != "1.jpg" {
		t.Fatalf("List order = %s..%s", items[0].Path, items[2].Path)
	}

	st, err := f.Count(context.Background())
	if err != nil || st.Count != 3 || st.Bytes != 15 {
		t.Fatalf("Count = %+v, %v", st, err)
	}
	if !strings.HasPrefix(st.String(), "3 (") {
		t.Fatalf("Stats.String = %q", st.String())
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "old.jpg", "old.mkv", "keep.txt")
	f := NewFinder(dir, ".jpg", ".mkv")

	res, err := Prune(context.Background(), f, time.Hour, time.Now())
	if err != nil || res.Removed != 0 {
		t.Fatalf("fresh files pruned: %+v, %v", res, err)
	}
	res, err = Prune(context.Background(), f, 0, time.Now().Add(24*time.Hour))
	if err != nil || res.Removed != 0 {
		t.Fatalf("zero retention pruned: %+v, %v", res, err)
	}

	res, err = Prune(context.Background(), f, time.Hour, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Removed != 2 || res.Bytes != int64(len("old.jpg")+len("old.mkv")) {
		t.Fatalf("Prune = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Fatalf("non-media file removed: %v", err)
	}
	if !strings.HasPrefix(res.String(), "removed 2 files") {
		t.Fatalf("String = %q", res.String())
	}
}
