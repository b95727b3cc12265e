package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/GriffinCanCode/game-translator/internal/config"
	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/gamekey"
	"github.com/GriffinCanCode/game-translator/internal/trace"
)

// Options adjust cache and context use for one request.
type Options struct {
	SkipCache    bool `json:"skip_cache"`
	SkipHistory  bool `json:"skip_history"`
	ForceRecache bool `json:"force_recache"`
}

// Request is one batch to translate.
type Request struct {
	Batch        []Item
	GameKey      string
	TargetLang   string
	ExtraContext string
	ContextLimit int
	Preset       config.Preset
	Options
}

// Result is the outcome of Translate. Err is set instead of Translations on
// failure; it is never returned as a Go error.
type Result struct {
	ID           ulid.ULID
	GameKey      string
	Translations map[string]string
	Cached       bool
	Err          error
	Duration     time.Duration
}

// OK reports whether the result carries translations.
func (r Result) OK() bool { return r.Err == nil }

// Coordinator runs the tag, cache, request, parse, persist pipeline.
type Coordinator struct {
	client  ChatClient
	cache   *CacheStore
	history *ConversationStore
}

// NewCoordinator wires a chat client to the per-game stores.
func NewCoordinator(client ChatClient, cache *CacheStore, history *ConversationStore) *Coordinator {
	return &Coordinator{client: client, cache: cache, history: history}
}

// Cache returns the translation cache.
func (c *Coordinator) Cache() *CacheStore { return c.cache }

// History returns the conversation store.
func (c *Coordinator) History() *ConversationStore { return c.history }

// Translate translates req.Batch. Empty batches succeed with no translations.
func (c *Coordinator) Translate(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	if req.GameKey == "" {
		req.GameKey = gamekey.Default
	}
	res = Result{ID: ulid.Make(), GameKey: req.GameKey}
	defer func() { res.Duration = time.Since(start) }()

	tagged, mapping := Format(req.Batch)
	if len(mapping) == 0 {
		res.Translations = map[string]string{}
		return res
	}

	ctx, span := trace.StartSpan(ctx, "translate")
	defer span.End()
	span.SetAttr("id", res.ID.String())
	span.SetAttr("game", req.GameKey)
	span.SetAttr("segments", len(mapping))
	log := trace.Logger(ctx)

	key := CacheKey(tagged, req.TargetLang)
	names := Names(mapping)
	if !req.SkipCache && !req.ForceRecache {
		if cached, ok := c.cache.Get(req.GameKey, key); ok && covers(cached, names) {
			span.SetAttr("cached", true)
			res.Translations = cached
			res.Cached = true
			return res
		}
	}

	var prior []Message
	if !req.SkipHistory {
		prior = c.history.Recent(req.GameKey, req.ContextLimit)
	}
	base := fmt.Sprintf(userInstruction, req.TargetLang) + "\n\n" + tagged
	user := base
	if req.ExtraContext != "" {
		user = "Additional context: " + req.ExtraContext + "\n\n" + base
	}
	msgs := make([]Message, 0, len(prior)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: fmt.Sprintf(systemPrompt, req.TargetLang)})
	msgs = append(msgs, prior...)
	msgs = append(msgs, Message{Role: RoleUser, Content: user})

	raw, err := c.client.Complete(ctx, req.Preset, msgs)
	if err != nil {
		span.Fail(err)
		res.Err = err
		return res
	}

	parsed, err := ParseOutput(raw, mapping)
	if err != nil {
		log.Debug("unparseable reply", "raw", raw)
		span.Fail(err)
		res.Err = err
		return res
	}
	res.Translations = parsed

	if !req.SkipHistory {
		if _, err := c.history.Append(req.GameKey, base, raw); err != nil {
			log.Warn("append conversation context", "error", err)
		}
	}
	if !req.SkipCache {
		if err := c.cache.Put(req.GameKey, key, parsed); err != nil {
			log.Warn("write translation cache", "error", err)
		}
	}
	return res
}

// ErrorText is the user-facing error string for a failed result.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return apperrors.Status(r.Err) + ": " + r.Err.Error()
}
