package orchestrator

import (
	"context"
	"image"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/game-translator/internal/config"
	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/gamekey"
	"github.com/GriffinCanCode/game-translator/internal/ocr"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/dispatch"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/feed"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/screen"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/trigger"
	"github.com/GriffinCanCode/game-translator/internal/region"
	screencap "github.com/GriffinCanCode/game-translator/internal/screen"
	"github.com/GriffinCanCode/game-translator/internal/stability"
	"github.com/GriffinCanCode/game-translator/internal/syncx"
	"github.com/GriffinCanCode/game-translator/internal/trace"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

// FrameSource captures window frames. *screen.Source implements it.
type FrameSource interface {
	Valid(h screencap.Handle) bool
	Capture(h screencap.Handle) *screencap.Frame
}

// Translator runs one translation. *translate.Coordinator implements it.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) translate.Result
}

// RegionStore persists region layouts per game. *region.Store implements it.
type RegionStore interface {
	Load(gameKey string) ([]region.Region, bool, error)
	Save(gameKey string, regions []region.Region) error
}

// GameResolver maps a window to its game key.
type GameResolver func(h screencap.Handle) string

// Settings are the user-adjustable knobs read by every cycle.
type Settings struct {
	TargetLang       string
	OCRLang          string
	OCREngine        string
	ExtraContext     string
	ContextLimit     int
	StableThreshold  int
	Preset           config.Preset
	TranslateTimeout time.Duration
}

// Validate checks s.
func (s Settings) Validate() error {
	if s.StableThreshold < 1 {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "stability threshold must be at least 1, got %d", s.StableThreshold)
	}
	if s.ContextLimit < 0 {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "context limit must not be negative, got %d", s.ContextLimit)
	}
	if s.TargetLang == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "target language is empty")
	}
	if _, ok := ocr.ResolveLanguage(s.OCREngine, s.OCRLang); !ok {
		return apperrors.Newf(apperrors.CodeOCRUnsupportedLanguage, "engine %q does not support %q", s.OCREngine, s.OCRLang)
	}
	return nil
}

// Timing controls the loop cadence.
type Timing struct {
	CaptureInterval time.Duration
	DisplayInterval time.Duration
	SnapshotPoll    time.Duration
	CaptureBackoff  time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.CaptureInterval <= 0 {
		t.CaptureInterval = DefaultCaptureInterval
	}
	if t.DisplayInterval <= 0 {
		t.DisplayInterval = DefaultDisplayInterval
	}
	if t.SnapshotPoll <= 0 {
		t.SnapshotPoll = DefaultSnapshotPoll
	}
	if t.CaptureBackoff <= 0 {
		t.CaptureBackoff = DefaultCaptureBackoff
	}
	return t
}

// Deps are the Manager's collaborators.
type Deps struct {
	Source          FrameSource
	OCR             screen.Recognizer
	Translator      Translator
	Regions         RegionStore
	Resolve         GameResolver
	MaxHashDistance int
}

// session binds the loop to one window. gen changes on every bind.
type session struct {
	handle  screencap.Handle
	gameKey string
	gen     uint64
}

// Manager owns the capture loop and everything it publishes.
type Manager struct {
	src        FrameSource
	proc       *screen.Processor
	translator Translator
	store      RegionStore
	resolve    GameResolver
	timing     Timing

	regions  *syncx.Snapshot[region.Set]
	settings *syncx.Snapshot[Settings]
	session  *syncx.Snapshot[session]
	frame    *syncx.Snapshot[*screencap.Frame]
	live     *syncx.Snapshot[map[string]string]
	stable   *syncx.Snapshot[map[string]string]
	latest   *syncx.Snapshot[translate.Result]

	tracker    *stability.Tracker // capture worker only
	gate       *trigger.Gate
	dispatcher *dispatch.Dispatcher
	feed       *feed.Store

	state   atomic.Int32
	nextGen atomic.Uint64

	// layout orders region edits against rebinds so a save lands under
	// the game that was bound when the edit was made.
	layout sync.Mutex

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// New creates an idle manager.
func New(deps Deps, settings Settings, timing Timing, autoTranslate bool) *Manager {
	resolve := deps.Resolve
	if resolve == nil {
		resolve = func(screencap.Handle) string { return gamekey.Default }
	}
	if settings.TranslateTimeout <= 0 {
		settings.TranslateTimeout = DefaultTranslateTimeout
	}
	m := &Manager{
		src:        deps.Source,
		proc:       screen.NewProcessor(deps.OCR, deps.MaxHashDistance),
		translator: deps.Translator,
		store:      deps.Regions,
		resolve:    resolve,
		timing:     timing.withDefaults(),
		regions:    syncx.NewSnapshot(region.Set{}),
		settings:   syncx.NewSnapshot(settings),
		session:    syncx.NewSnapshot(session{gameKey: gamekey.Default}),
		frame:      syncx.NewSnapshot[*screencap.Frame](nil),
		live:       syncx.NewSnapshot(map[string]string{}),
		stable:     syncx.NewSnapshot(map[string]string{}),
		latest:     syncx.NewSnapshot(translate.Result{}),
		tracker:    stability.New(settings.StableThreshold),
		gate:       trigger.NewGate(autoTranslate),
		dispatcher: dispatch.New(context.Background()),
		feed:       feed.NewStore(FeedMaxEntries, EventBufferSize),
	}
	if m.store != nil {
		m.loadRegions(gamekey.Default)
	}
	return m
}

// State returns the loop state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	m.feed.Emit(feed.Event{Kind: feed.KindState, State: to.String(), GameKey: m.GameKey()})
	return true
}

// Start binds h and begins capturing. It fails without starting when h is not
// a valid window or the loop is already running.
func (m *Manager) Start(ctx context.Context, h screencap.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
		default:
			return apperrors.New(apperrors.CodeInvalidArgument, "capture already running")
		}
	}
	if err := m.bind(h); err != nil {
		return err
	}

	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.setState(Idle, Capturing)
	trace.Logger(ctx).Info("capture started", "handle", h, "game", m.GameKey())
	go m.loop(ctx, m.stopCh, m.done)
	return nil
}

// SwitchWindow rebinds a running or idle manager to h.
func (m *Manager) SwitchWindow(h screencap.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bind(h)
}

// bind resolves h's game. A different game gets its saved layout; when that
// game has none the current layout is kept.
func (m *Manager) bind(h screencap.Handle) error {
	if !m.src.Valid(h) {
		return apperrors.New(apperrors.CodeWindowInvalid, "window handle is not valid").
			WithMetadata("handle", formatHandle(h))
	}
	key := m.resolve(h)
	if key == "" {
		key = gamekey.Default
	}
	m.layout.Lock()
	defer m.layout.Unlock()
	prev := m.session.Load()
	if key != prev.gameKey && m.store != nil {
		m.loadRegions(key)
	}
	m.session.Store(session{handle: h, gameKey: key, gen: m.nextGen.Add(1)})
	return nil
}

func (m *Manager) loadRegions(key string) {
	rs, ok, err := m.store.Load(key)
	if err != nil {
		trace.Logger(context.Background()).Warn("load regions", "game", key, "error", err)
		return
	}
	if !ok {
		return
	}
	set, err := region.NewSet(rs...)
	if err != nil {
		trace.Logger(context.Background()).Warn("saved regions invalid", "game", key, "error", err)
		return
	}
	m.regions.Store(set)
}

// Stop ends the loop and waits up to timeout for the in-flight cycle.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	stop, done := m.stopCh, m.done
	m.stopCh = nil
	m.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return apperrors.New(apperrors.CodeTimeout, "capture worker did not stop in time")
	}
}

// Close stops the loop and waits for outstanding translations.
func (m *Manager) Close() error {
	err := m.Stop(DefaultStopTimeout)
	m.dispatcher.Close()
	return err
}

// Snapshot freezes the display on the current frame. OCR pauses until
// ReturnToLive.
func (m *Manager) Snapshot() (*screencap.Frame, error) {
	if !m.setState(Capturing, Suspended) {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "cannot snapshot while %s", m.State())
	}
	return m.frame.Load(), nil
}

// ReturnToLive resumes capturing after Snapshot.
func (m *Manager) ReturnToLive() error {
	if !m.setState(Suspended, Capturing) {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "not in snapshot mode (%s)", m.State())
	}
	return nil
}

// GameKey returns the bound game's key.
func (m *Manager) GameKey() string { return m.session.Load().gameKey }

// CurrentFrame returns the most recent frame, or nil.
func (m *Manager) CurrentFrame() *screencap.Frame { return m.frame.Load() }

// LiveText returns the latest per-region readings.
func (m *Manager) LiveText() map[string]string { return maps.Clone(m.live.Load()) }

// StableText returns the stable set.
func (m *Manager) StableText() map[string]string { return maps.Clone(m.stable.Load()) }

// LatestTranslation returns the last delivered result.
func (m *Manager) LatestTranslation() translate.Result { return m.latest.Load() }

// Events returns the notification channel.
func (m *Manager) Events() <-chan feed.Event { return m.feed.Events() }

// History returns up to n recent translations.
func (m *Manager) History(n int) []feed.Entry { return m.feed.Recent(n) }

// Busy reports whether an automatic translation is in flight.
func (m *Manager) Busy() bool { return m.dispatcher.Busy() }

// Regions returns the active layout in order.
func (m *Manager) Regions() []region.Region { return m.regions.Load().All() }

// SetRegions replaces the whole layout.
func (m *Manager) SetRegions(rs []region.Region) error {
	set, err := region.NewSet(rs...)
	if err != nil {
		return err
	}
	m.layout.Lock()
	defer m.layout.Unlock()
	key := m.GameKey()
	m.regions.Store(set)
	return m.saveRegions(key, set)
}

// AddRegion adds r, or replaces the region with the same name.
func (m *Manager) AddRegion(r region.Region) error {
	return m.updateRegions(func(s region.Set) (region.Set, error) { return s.With(r) })
}

// DeleteRegion removes the named region.
func (m *Manager) DeleteRegion(name string) error {
	return m.updateRegions(func(s region.Set) (region.Set, error) {
		next, ok := s.Without(name)
		if !ok {
			return s, apperrors.Newf(apperrors.CodeNotFound, "region %q not found", name)
		}
		return next, nil
	})
}

// ReorderRegions orders the layout by names.
func (m *Manager) ReorderRegions(names []string) error {
	return m.updateRegions(func(s region.Set) (region.Set, error) { return s.Reorder(names) })
}

func (m *Manager) updateRegions(fn func(region.Set) (region.Set, error)) error {
	m.layout.Lock()
	defer m.layout.Unlock()
	key := m.GameKey()
	var saved region.Set
	err := m.regions.Update(func(s region.Set) (region.Set, error) {
		next, err := fn(s)
		saved = next
		return next, err
	})
	if err != nil {
		return err
	}
	return m.saveRegions(key, saved)
}

// saveRegions persists the layout under key. The in-memory change stands
// even when the write fails.
func (m *Manager) saveRegions(key string, set region.Set) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(key, set.All()); err != nil {
		trace.Logger(context.Background()).Warn("save regions", "game", key, "error", err)
		return err
	}
	return nil
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings { return m.settings.Load() }

// UpdateSettings applies fn and validates the result.
func (m *Manager) UpdateSettings(fn func(Settings) Settings) error {
	return m.settings.Update(func(s Settings) (Settings, error) {
		next := fn(s)
		if next.TranslateTimeout <= 0 {
			next.TranslateTimeout = DefaultTranslateTimeout
		}
		if err := next.Validate(); err != nil {
			return s, err
		}
		return next, nil
	})
}

// SetThreshold changes the stability threshold from the next cycle on.
func (m *Manager) SetThreshold(n int) error {
	return m.UpdateSettings(func(s Settings) Settings {
		s.StableThreshold = n
		return s
	})
}

// SetAutoTranslate toggles automatic dispatch of stable batches.
func (m *Manager) SetAutoTranslate(enabled bool) { m.gate.SetEnabled(enabled) }

// AutoTranslate reports whether automatic dispatch is on.
func (m *Manager) AutoTranslate() bool { return m.gate.IsEnabled() }

// Retranslate translates the current stable batch now, bypassing the cache
// read. It may run alongside an automatic translation.
func (m *Manager) Retranslate(ctx context.Context, opts translate.Options) (translate.Result, error) {
	sess := m.session.Load()
	names := m.regions.Load().Names()
	batch := batchOf(names, m.stable.Load())
	if len(batch) == 0 {
		return translate.Result{}, apperrors.New(apperrors.CodeNotFound, "no stable text to translate")
	}
	res := m.run(ctx, sess, batch, opts)
	m.deliver(sess, batch, res)
	return res, nil
}

// SnipResult is a one-off read of an arbitrary rectangle.
type SnipResult struct {
	Text   string
	Result translate.Result
}

// Snip recognizes and translates rect of the current frame. The snip never
// joins the stability batch or the conversation context.
func (m *Manager) Snip(ctx context.Context, rect image.Rectangle) (SnipResult, error) {
	ctx, span := trace.StartSpan(ctx, "snip")
	defer span.End()

	frame := m.frame.Load()
	if frame == nil {
		err := apperrors.New(apperrors.CodeCaptureFailed, "no frame captured yet")
		span.Fail(err)
		return SnipResult{}, err
	}
	r := region.Region{Name: region.ReservedName, X1: rect.Min.X, Y1: rect.Min.Y, X2: rect.Max.X, Y2: rect.Max.Y}
	settings := m.settings.Load()
	reading := m.proc.RecognizeOnce(ctx, frame.Image, r, settings.OCRLang, settings.OCREngine)
	if !reading.Extracted {
		err := apperrors.New(apperrors.CodeInvalidArgument, "snip rectangle is outside the frame").
			WithMetadata("rect", rect.String())
		span.Fail(err)
		return SnipResult{}, err
	}
	if ocr.IsError(reading.Text) {
		err := apperrors.New(apperrors.CodeOCRExtractFailed, reading.Text)
		span.Fail(err)
		return SnipResult{Text: reading.Text}, err
	}

	sess := m.session.Load()
	batch := []translate.Item{{Name: region.ReservedName, Text: reading.Text}}
	res := m.run(ctx, sess, batch, translate.Options{SkipHistory: true})
	ev := feed.Event{
		Kind:         feed.KindSnip,
		GameKey:      sess.gameKey,
		Texts:        map[string]string{region.ReservedName: reading.Text},
		Translations: res.Translations,
		Cached:       res.Cached,
	}
	if !res.OK() {
		ev.Status, ev.Error = apperrors.Status(res.Err), res.Err.Error()
	}
	m.feed.Emit(ev)
	return SnipResult{Text: reading.Text, Result: res}, nil
}

func (m *Manager) run(ctx context.Context, sess session, batch []translate.Item, opts translate.Options) translate.Result {
	s := m.settings.Load()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.TranslateTimeout)
	defer cancel()
	return m.translator.Translate(ctx, translate.Request{
		Batch:        batch,
		GameKey:      sess.gameKey,
		TargetLang:   s.TargetLang,
		ExtraContext: s.ExtraContext,
		ContextLimit: s.ContextLimit,
		Preset:       s.Preset,
		Options:      opts,
	})
}

// deliver publishes res unless the window has since moved to another game.
func (m *Manager) deliver(sess session, batch []translate.Item, res translate.Result) {
	log := trace.Logger(context.Background())
	if cur := m.session.Load(); cur.gameKey != sess.gameKey {
		log.Debug("discarding stale translation", "id", res.ID.String(), "game", sess.gameKey, "current", cur.gameKey)
		return
	}
	if !res.OK() {
		log.Warn("translation failed", "id", res.ID.String(), "error", res.Err)
		m.feed.Emit(feed.Event{
			Kind:    feed.KindError,
			GameKey: sess.gameKey,
			Status:  apperrors.Status(res.Err),
			Error:   res.Err.Error(),
		})
		return
	}
	m.latest.Store(res)
	source := make(map[string]string, len(batch))
	for _, it := range batch {
		source[it.Name] = it.Text
	}
	m.feed.Add(feed.Entry{
		ID:           res.ID,
		GameKey:      sess.gameKey,
		Source:       source,
		Translations: res.Translations,
		Cached:       res.Cached,
	})
	m.feed.Emit(feed.Event{
		ID:           res.ID,
		Kind:         feed.KindTranslation,
		GameKey:      sess.gameKey,
		Texts:        source,
		Translations: res.Translations,
		Cached:       res.Cached,
	})
}

func batchOf(names []string, stable map[string]string) []translate.Item {
	batch := make([]translate.Item, 0, len(names))
	for _, n := range names {
		if text, ok := stable[n]; ok {
			batch = append(batch, translate.Item{Name: n, Text: text})
		}
	}
	return batch
}
