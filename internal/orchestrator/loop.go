package orchestrator

import (
	"context"
	"maps"
	"runtime/debug"
	"strconv"
	"time"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/feed"
	"github.com/GriffinCanCode/game-translator/internal/region"
	screencap "github.com/GriffinCanCode/game-translator/internal/screen"
	"github.com/GriffinCanCode/game-translator/internal/trace"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

// State is the capture loop state.
type State int32

const (
	Idle State = iota
	Capturing
	Suspended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// worker is state private to one run of the loop goroutine.
type worker struct {
	gen         uint64
	threshold   int
	regions     map[string]region.Region
	live        map[string]string
	lastDisplay time.Time
}

func (m *Manager) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		m.state.Store(int32(Idle))
		m.feed.Emit(feed.Event{Kind: feed.KindState, State: Idle.String(), GameKey: m.GameKey()})
	}()

	w := &worker{regions: make(map[string]region.Region)}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-timer.C:
		}

		wait, ok := m.cycle(ctx, w)
		if !ok {
			return
		}
		timer.Reset(wait)
	}
}

// cycle runs one iteration and returns the delay before the next. ok is false
// when the window has gone and the loop must end.
func (m *Manager) cycle(ctx context.Context, w *worker) (wait time.Duration, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			trace.Logger(ctx).Error("capture cycle panicked", "panic", r, "stack", string(debug.Stack()))
			m.feed.Emit(feed.Event{Kind: feed.KindError, Status: "Unexpected error", Error: "capture cycle panicked"})
			wait, ok = m.timing.CaptureInterval, true
		}
	}()

	if m.State() == Suspended {
		return m.timing.SnapshotPoll, true
	}

	sess := m.session.Load()
	if !m.src.Valid(sess.handle) {
		err := apperrors.New(apperrors.CodeWindowInvalid, "window closed").WithMetadata("handle", formatHandle(sess.handle))
		trace.Logger(ctx).Warn("capture stopped", "error", err)
		m.feed.Emit(feed.Event{Kind: feed.KindError, GameKey: sess.gameKey, Status: apperrors.Status(err), Error: err.Error()})
		return 0, false
	}
	if sess.gen != w.gen {
		m.resetFor(w, sess)
	}

	frame := m.src.Capture(sess.handle)
	if frame == nil {
		return m.timing.CaptureBackoff, true
	}
	m.frame.Store(frame)
	m.display(w, sess, frame)

	settings := m.settings.Load()
	if settings.StableThreshold != w.threshold {
		if err := m.tracker.SetThreshold(settings.StableThreshold); err == nil {
			w.threshold = settings.StableThreshold
		}
	}

	set := m.regions.Load()
	tracked := set.Tracked()
	changed := m.syncRegions(w, tracked)

	readings := m.proc.Process(ctx, frame.Image, tracked, settings.OCRLang, settings.OCREngine)
	live := make(map[string]string, len(readings))
	for _, r := range readings {
		if !r.Extracted {
			changed = m.tracker.Unextractable(r.Name) || changed
			live[r.Name] = ""
			continue
		}
		changed = m.tracker.Observe(r.Name, r.Text) || changed
		live[r.Name] = r.Text
	}

	if !maps.Equal(live, w.live) {
		w.live = live
		m.live.Store(live)
		m.feed.Emit(feed.Event{Kind: feed.KindLive, GameKey: sess.gameKey, Texts: live})
	}
	if changed {
		stable := m.tracker.Stable()
		m.stable.Store(stable)
		m.feed.Emit(feed.Event{Kind: feed.KindStable, GameKey: sess.gameKey, Texts: stable})
	}

	names := set.Names()
	stable := m.stable.Load()
	if m.gate.Check(m.tracker.AllStable(names), names, stable) {
		m.dispatch(sess, batchOf(names, stable))
	}
	return m.timing.CaptureInterval, true
}

// resetFor clears per-window state after a (re)bind.
func (m *Manager) resetFor(w *worker, sess session) {
	w.gen = sess.gen
	w.live = nil
	clear(w.regions)
	m.tracker.Reset()
	m.proc.Reset()
	m.gate.Rearm()
	m.live.Store(map[string]string{})
	m.stable.Store(map[string]string{})
}

// syncRegions drops state for removed regions and resets regions whose
// geometry or filter changed. It reports whether the stable set changed.
func (m *Manager) syncRegions(w *worker, tracked []region.Region) bool {
	names := make([]string, len(tracked))
	changed := false
	next := make(map[string]region.Region, len(tracked))
	for i, r := range tracked {
		names[i] = r.Name
		next[r.Name] = r
		if prev, ok := w.regions[r.Name]; ok && prev != r {
			changed = m.tracker.Unextractable(r.Name) || changed
		}
	}
	m.proc.Retain(names)
	changed = m.tracker.Retain(names) || changed
	w.regions = next
	return changed
}

// display pushes frame metadata at most once per DisplayInterval.
func (m *Manager) display(w *worker, sess session, f *screencap.Frame) {
	now := time.Now()
	if now.Sub(w.lastDisplay) < m.timing.DisplayInterval {
		return
	}
	w.lastDisplay = now
	b := f.Image.Bounds()
	m.feed.Emit(feed.Event{
		Kind:    feed.KindFrame,
		GameKey: sess.gameKey,
		Frame:   &feed.FrameInfo{Sequence: f.Sequence, Width: b.Dx(), Height: b.Dy(), Method: string(f.Method)},
	})
}

func (m *Manager) dispatch(sess session, batch []translate.Item) {
	out := m.dispatcher.Submit(func(ctx context.Context) {
		ctx, _ = trace.EnsureContext(ctx)
		res := m.run(ctx, sess, batch, translate.Options{})
		m.deliver(sess, batch, res)
	})
	trace.Logger(context.Background()).Debug("auto-translate", "outcome", out.String(), "game", sess.gameKey, "regions", len(batch))
}

func formatHandle(h screencap.Handle) string {
	return "0x" + strconv.FormatUint(uint64(h), 16)
}
