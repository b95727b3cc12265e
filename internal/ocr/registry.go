package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/trace"
)

type engineState int

const (
	stateNew engineState = iota
	stateInitializing
	stateReady
	stateFailed
)

type entry struct {
	engine Engine

	mu      sync.Mutex // serializes Recognize
	stateMu sync.Mutex
	state   engineState
	initErr error
}

func (e *entry) getState() (engineState, error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state, e.initErr
}

// Registry holds the engines available in this deployment.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*entry)}
}

// Register adds or replaces an engine. Engines without an Initializer are ready immediately.
func (r *Registry) Register(e Engine) {
	ent := &entry{engine: e}
	if _, ok := e.(Initializer); !ok {
		ent.state = stateReady
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.engines[e.Name()]; ok {
		closeEngine(old.engine)
	} else {
		r.order = append(r.order, e.Name())
	}
	r.engines[e.Name()] = ent
}

// Names lists registered engines in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Ready reports whether name is registered and initialized.
func (r *Registry) Ready(name string) bool {
	ent := r.get(name)
	if ent == nil {
		return false
	}
	st, _ := ent.getState()
	return st == stateReady
}

func (r *Registry) get(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[name]
}

// InitAsync initializes name on a short-lived goroutine. The channel receives
// the result and is closed. Re-initializing a failed engine is allowed; a
// call while initialization is running reports the in-flight state.
func (r *Registry) InitAsync(ctx context.Context, name string) <-chan error {
	done := make(chan error, 1)
	ent := r.get(name)
	if ent == nil {
		done <- apperrors.Newf(apperrors.CodeOCREngineUnavailable, "OCR engine %q is not registered", name)
		close(done)
		return done
	}

	ent.stateMu.Lock()
	switch ent.state {
	case stateReady:
		ent.stateMu.Unlock()
		close(done)
		return done
	case stateInitializing:
		ent.stateMu.Unlock()
		done <- apperrors.Newf(apperrors.CodeOCRInitFailed, "OCR engine %q is still initializing", name)
		close(done)
		return done
	}
	ent.state = stateInitializing
	ent.stateMu.Unlock()

	go func() {
		defer close(done)
		err := initEngine(ctx, ent.engine)

		ent.stateMu.Lock()
		if err != nil {
			ent.state, ent.initErr = stateFailed, err
		} else {
			ent.state, ent.initErr = stateReady, nil
		}
		ent.stateMu.Unlock()

		if err != nil {
			slog.Error("OCR engine init failed", "engine", name, "error", err)
			done <- err
			return
		}
		slog.Info("OCR engine ready", "engine", name)
	}()
	return done
}

func initEngine(ctx context.Context, e Engine) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.Newf(apperrors.CodeOCRInitFailed, "init panicked: %v", rec)
		}
	}()
	iz, ok := e.(Initializer)
	if !ok {
		return nil
	}
	if err := iz.Init(ctx); err != nil {
		if _, ok := err.(*apperrors.AppError); ok {
			return err
		}
		return apperrors.Wrapf(err, apperrors.CodeOCRInitFailed, "init %s", e.Name())
	}
	return nil
}

// Recognize runs engine on img for the language code lang. It never returns
// an error: failures come back as sentinel strings. An engine that has not
// been initialized is started in the background and reports InitError until ready.
func (r *Registry) Recognize(ctx context.Context, img image.Image, lang, engine string) (text string) {
	ent := r.get(engine)
	if ent == nil {
		return EngineUnavailableError
	}
	id, ok := ResolveLanguage(engine, lang)
	if !ok {
		return UnsupportedLanguageError
	}

	switch st, _ := ent.getState(); st {
	case stateNew:
		r.InitAsync(context.WithoutCancel(ctx), engine)
		return InitError
	case stateInitializing, stateFailed:
		return InitError
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			trace.Logger(ctx).Error("OCR engine panicked", "engine", engine, "panic", rec)
			text = RuntimeError
		}
	}()

	out, err := ent.engine.Recognize(ctx, img, id)
	if err != nil {
		trace.Logger(ctx).Debug("OCR failed", "engine", engine, "lang", lang, "error", err)
		return sentinelFor(err)
	}
	return strings.TrimSpace(out)
}

func sentinelFor(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeOCRUnsupportedLanguage:
		return UnsupportedLanguageError
	case apperrors.CodeOCREngineUnavailable:
		return EngineUnavailableError
	case apperrors.CodeOCRInitFailed:
		return InitError
	default:
		return RuntimeError
	}
}

// Close releases every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ent := range r.engines {
		closeEngine(ent.engine)
	}
}

func closeEngine(e Engine) {
	c, ok := e.(Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("closing OCR engine", "engine", e.Name(), "error", err)
	}
}

// String describes registered engines and their state for logs.
func (r *Registry) String() string {
	var b strings.Builder
	for i, n := range r.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		st := "ready"
		if !r.Ready(n) {
			st = "not ready"
		}
		fmt.Fprintf(&b, "%s(%s)", n, st)
	}
	return b.String()
}
