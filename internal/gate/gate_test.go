package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"motionbot/internal/lock"
	"motionbot/internal/media"
	"motionbot/internal/storage"
	logx "motionbot/pkg/logx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeFinder struct {
	mu   sync.Mutex
	path string
	err  error
}

func (f *fakeFinder) Latest(ctx context.Context) (media.Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return media.Item{}, false, f.err
	}
	if f.path == "" {
		return media.Item{}, false, nil
	}
	return media.Item{Path: f.path}, true, nil
}

func (f *fakeFinder) Set(path string) {
	f.mu.Lock()
	f.path = path
	f.mu.Unlock()
}

type recordingSink struct {
	mu       sync.Mutex
	texts    []string
	photos   []string
	textErr  error
	photoErr error
	block    chan struct{} // when non-nil, SendText waits on it or ctx
	delay    time.Duration
}

func (s *recordingSink) SendText(ctx context.Context, text string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.textErr
}

func (s *recordingSink) SendPhoto(ctx context.Context, path, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append(s.photos, path)
	return s.photoErr
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts), len(s.photos)
}

type panicFinder struct{}

func (panicFinder) Latest(context.Context) (media.Item, bool, error) { panic("disk on fire") }

type harness struct {
	gate   *Gate
	clock  *fakeClock
	finder *fakeFinder
	sink   *recordingSink
	state  *storage.Memory
	locks  *lock.Registry
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, cooldown time.Duration) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{now: t0},
		finder: &fakeFinder{},
		sink:   &recordingSink{},
		state:  storage.NewMemory(),
		locks:  lock.NewRegistry(),
	}
	g, err := New(Options{Cooldown: cooldown, Message: "Motion detected! Last photo captured:"}, Deps{
		Lock:   h.locks.Handle("gate"),
		State:  h.state,
		Finder: h.finder,
		Sink:   h.sink,
		Clock:  h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.gate = g
	return h
}

func TestCooldownWindow(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	want := map[int]Outcome{0: OutcomeSent, 3: OutcomeCooldown, 9: OutcomeCooldown, 11: OutcomeSent}
	for _, sec := range []int{0, 3, 9, 11} {
		h.clock.Set(t0.Add(time.Duration(sec) * time.Second))
		h.finder.Set(fmt.Sprintf("/pics/%02d.jpg", sec))
		if got := h.gate.OnMotionEvent(context.Background()); got != want[sec] {
			t.Fatalf("t=%d: outcome = %v, want %v", sec, got, want[sec])
		}
	}
	texts, photos := h.sink.counts()
	if texts != 2 || photos != 2 {
		t.Fatalf("sends = %d texts, %d photos; want 2, 2", texts, photos)
	}
	if h.sink.photos[0] != "/pics/00.jpg" || h.sink.photos[1] != "/pics/11.jpg" {
		t.Fatalf("photos = %v", h.sink.photos)
	}
}

func TestCooldownBoundaryIsInclusive(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.finder.Set("/pics/a.jpg")
	h.gate.OnMotionEvent(context.Background())

	h.clock.Set(t0.Add(10 * time.Second))
	h.finder.Set("/pics/b.jpg")
	if got := h.gate.OnMotionEvent(context.Background()); got != OutcomeSent {
		t.Fatalf("elapsed == cooldown: outcome = %v, want sent", got)
	}
}

func TestLockBusyTouchesNothing(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.finder.Set("/pics/a.jpg")

	other := h.locks.Handle("gate")
	if ok, _ := other.TryLock(); !ok {
		t.Fatalf("could not take lock")
	}
	defer other.Unlock()

	if got := h.gate.OnMotionEvent(context.Background()); got != OutcomeLockBusy {
		t.Fatalf("outcome = %v, want lock_busy", got)
	}
	if loads, saves := h.state.Ops(); loads != 0 || saves != 0 {
		t.Fatalf("state ops = %d loads, %d saves; want none", loads, saves)
	}
	if texts, photos := h.sink.counts(); texts+photos != 0 {
		t.Fatalf("sent while lock busy")
	}
}

func TestNoPhotoKeepsCooldownOpen(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	if got := h.gate.OnMotionEvent(context.Background()); got != OutcomeNoPhoto {
		t.Fatalf("outcome = %v, want no_photo", got)
	}
	if _, saves := h.state.Ops(); saves != 0 {
		t.Fatalf("state written on no_photo")
	}

	// A photo shows up one second later: fire immediately, no cooldown was consumed.
	h.clock.Set(t0.Add(time.Second))
	h.finder.Set("/pics/a.jpg")
	if got := h.gate.OnMotionEvent(context.Background()); got != OutcomeSent {
		t.Fatalf("outcome = %v, want sent", got)
	}
}

func TestDuplicatePhotoSuppressed(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.finder.Set("/pics/a.jpg")
	h.gate.OnMotionEvent(context.Background())

	h.clock.Set(t0.Add(time.Minute))
	if got := h.gate.OnMotionEvent(context.Background()); got != OutcomeDuplicate {
		t.Fatalf("outcome = %v, want duplicate", got)
	}
	st, _ := h.state.Load(context.Background())
	if !st.LastNotification.Equal(t0) {
		t.Fatalf("duplicate advanced the cooldown: %v", st.LastNotification)
	}
}

func TestCorruptTimestampKeepsPhotoMarker(t *testing.T) {
	stateDir, picsDir := t.TempDir(), t.TempDir()
	photo := filepath.Join(picsDir, "01-a.jpg")
	if err := os.WriteFile(photo, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(stateDir, storage.NotificationFile), []byte("garbage"), 0o644)
	_ = os.WriteFile(filepath.Join(stateDir, storage.PhotoFile), []byte(photo), 0o644)

	st, err := storage.Open(storage.Config{Driver: "file", Dir: stateDir}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	sink := &recordingSink{}
	g, err := New(Options{Cooldown: time.Hour, Message: "m"}, Deps{
		Lock:   lock.NewRegistry().Handle("gate"),
		State:  st,
		Finder: media.NewFinder(picsDir, ".jpg"),
		Sink:   sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The timestamp counts as "never", the marker still suppresses the resend.
	if out := g.OnMotionEvent(context.Background()); out != OutcomeDuplicate {
		t.Fatalf("outcome = %v, want duplicate", out)
	}
	if texts, photos := sink.counts(); texts != 0 || photos != 0 {
		t.Fatalf("sends = %d, %d", texts, photos)
	}
}

// brokenState fails every Load with a non-parse error but still returns a value.
type brokenState struct {
	storage.Memory
	st storage.State
}

func (b *brokenState) Load(context.Context) (storage.State, error) {
	return b.st, errors.New("permission denied")
}

func TestUnreadableStateIsFirstRun(t *testing.T) {
	finder := &fakeFinder{path: "/pics/a.jpg"}
	sink := &recordingSink{}
	state := &brokenState{st: storage.State{LastNotification: t0, LastPhoto: "/pics/a.jpg"}}
	g, err := New(Options{Cooldown: time.Hour, Message: "m"}, Deps{
		Lock:   lock.NewRegistry().Handle("gate"),
		State:  state,
		Finder: finder,
		Sink:   sink,
		Clock:  &fakeClock{now: t0.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Whatever Load returned alongside the error is ignored.
	if out := g.OnMotionEvent(context.Background()); out != OutcomeSent {
		t.Fatalf("outcome = %v, want sent", out)
	}
	if texts, photos := sink.counts(); texts != 1 || photos != 1 {
		t.Fatalf("sends = %d, %d", texts, photos)
	}
}

func TestStateRoundTrip(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.clock.Set(t0.Add(42 * time.Second))
	h.finder.Set("/pics/x.jpg")
	h.gate.OnMotionEvent(context.Background())

	st, _ := h.state.Load(context.Background())
	if st.LastPhoto != "/pics/x.jpg" || !st.LastNotification.Equal(t0.Add(42*time.Second)) {
		t.Fatalf("state = %+v", st)
	}
}

func TestSendFailuresStillPersist(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.finder.Set("/pics/a.jpg")
	h.sink.photoErr = errors.New("telegram: Bad Request: IMAGE_PROCESS_FAILED (400)")

	out := h.gate.OnMotionEvent(context.Background())
	if out != OutcomePartial || !out.Notified() {
		t.Fatalf("outcome = %v, want partial (notified)", out)
	}
	texts, photos := h.sink.counts()
	if texts != 1 || photos != 1 {
		t.Fatalf("sends = %d, %d; text must not be retried", texts, photos)
	}
	st, _ := h.state.Load(context.Background())
	if st.LastPhoto != "/pics/a.jpg" {
		t.Fatalf("state not persisted after failed send: %+v", st)
	}
}

func TestSendTimeout(t *testing.T) {
	h := newHarness(t, 0)
	h.gate.opt.SendTimeout = 20 * time.Millisecond
	h.sink.block = make(chan struct{})
	h.finder.Set("/pics/a.jpg")

	start := time.Now()
	if out := h.gate.OnMotionEvent(context.Background()); out != OutcomePartial {
		t.Fatalf("outcome = %v, want partial", out)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("send timeout not applied")
	}
}

func TestPanicReleasesLock(t *testing.T) {
	h := newHarness(t, 0)
	h.gate.d.Finder = panicFinder{}
	if out := h.gate.OnMotionEvent(context.Background()); out != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", out)
	}
	if h.locks.Held("gate") {
		t.Fatalf("lock still held after panic")
	}
}

func TestFinderErrorFails(t *testing.T) {
	h := newHarness(t, 0)
	h.finder.err = errors.New("permission denied")
	if out := h.gate.OnMotionEvent(context.Background()); out != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", out)
	}
	if h.locks.Held("gate") {
		t.Fatalf("lock leaked")
	}
}

func TestConcurrentEventsSendOnce(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.finder.Set("/pics/a.jpg")

	const n = 32
	var (
		wg       sync.WaitGroup
		notified atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if h.gate.OnMotionEvent(context.Background()).Notified() {
				notified.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if notified.Load() != 1 {
		t.Fatalf("notified %d times, want exactly 1", notified.Load())
	}
	if texts, photos := h.sink.counts(); texts != 1 || photos != 1 {
		t.Fatalf("sends = %d, %d", texts, photos)
	}
}

func TestSharedFileLockSendsOnce(t *testing.T) {
	stateDir, picsDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(picsDir, "01-a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{delay: 50 * time.Millisecond}
	g, err := New(Options{Cooldown: time.Hour, Message: "m"}, Deps{
		Lock:   lock.NewFile(filepath.Join(stateDir, "gate.lock")),
		State:  storage.NewMemory(),
		Finder: media.NewFinder(picsDir, ".jpg"),
		Sink:   sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 8
	var (
		wg       sync.WaitGroup
		notified atomic.Int32
		start    = make(chan struct{})
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.OnMotionEvent(context.Background()).Notified() {
				notified.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if notified.Load() != 1 {
		t.Fatalf("notified %d times, want exactly 1", notified.Load())
	}
	if texts, photos := sink.counts(); texts != 1 || photos != 1 {
		t.Fatalf("sends = %d, %d", texts, photos)
	}
}

func TestOutcomeStrings(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeFailed: "failed", OutcomeLockBusy: "lock_busy", OutcomeCooldown: "cooldown",
		OutcomeNoPhoto: "no_photo", OutcomeDuplicate: "duplicate", OutcomeSent: "sent", OutcomePartial: "partial",
	} {
		if o.String() != want {
			t.Fatalf("%d.String() = %q, want %q", o, o.String(), want)
		}
	}
	if OutcomeCooldown.Notified() || !OutcomeSent.Notified() {
		t.Fatalf("Notified mismatch")
	}
}

func TestFileBackedGatesShareLockAndState(t *testing.T) {
	stateDir, picsDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(picsDir, "01-a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	lockPath := filepath.Join(stateDir, storage.NotificationFile+".lock")

	// Two independent gates model two motion event processes.
	newGate := func() *Gate {
		st, err := storage.Open(storage.Config{Driver: "file", Dir: stateDir}, logx.Nop())
		if err != nil {
			t.Fatalf("storage: %v", err)
		}
		g, err := New(Options{Cooldown: time.Hour, Message: "m"}, Deps{
			Lock:   lock.NewFile(lockPath),
			State:  st,
			Finder: media.NewFinder(picsDir, ".jpg"),
			Sink:   sink,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return g
	}
	a, b := newGate(), newGate()

	// b cannot enter while a's lock is held.
	held := lock.NewFile(lockPath)
	if ok, _ := held.TryLock(); !ok {
		t.Fatal("could not take lock")
	}
	if out := b.OnMotionEvent(context.Background()); out != OutcomeLockBusy {
		t.Fatalf("b outcome = %v, want lock_busy", out)
	}
	_ = held.Unlock()

	if out := a.OnMotionEvent(context.Background()); out != OutcomeSent {
		t.Fatalf("a outcome = %v, want sent", out)
	}
	if out := b.OnMotionEvent(context.Background()); out != OutcomeCooldown {
		t.Fatalf("b outcome = %v, want cooldown (state shared on disk)", out)
	}
	raw, err := os.ReadFile(filepath.Join(stateDir, storage.PhotoFile))
	if err != nil || string(raw) != filepath.Join(picsDir, "01-a.jpg") {
		t.Fatalf("photo marker = %q, %v", raw, err)
	}
}
