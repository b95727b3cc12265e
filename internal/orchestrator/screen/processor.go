package screen

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/game-translator/internal/ocr"
	"github.com/GriffinCanCode/game-translator/internal/region"
	"github.com/GriffinCanCode/game-translator/internal/roi"
)

// Recognizer turns a region image into text or an OCR sentinel.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, lang, engine string) string
}

// Reading is one region's result for one frame.
type Reading struct {
	Name      string
	Text      string
	Extracted bool // false when the region fell outside the frame
	Reused    bool // OCR skipped because the sub-image was unchanged
}

type lastRead struct {
	hash   *goimagehash.ImageHash
	text   string
	lang   string
	engine string
}

// Processor extracts, filters and recognizes every tracked region of a frame.
type Processor struct {
	ocr         Recognizer
	maxDistance int

	mu   sync.Mutex
	last map[string]lastRead
}

// NewProcessor creates a processor. maxHashDistance < 0 disables the
// perceptual-hash skip.
func NewProcessor(ocr Recognizer, maxHashDistance int) *Processor {
	return &Processor{
		ocr:         ocr,
		maxDistance: maxHashDistance,
		last:        make(map[string]lastRead),
	}
}

// Process reads each region in order. Reserved regions are skipped.
func (p *Processor) Process(ctx context.Context, frame *image.RGBA, regions []region.Region, lang, engine string) []Reading {
	out := make([]Reading, 0, len(regions))
	for _, r := range regions {
		if r.Reserved() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		out = append(out, p.read(ctx, frame, r, lang, engine))
	}
	return out
}

func (p *Processor) read(ctx context.Context, frame *image.RGBA, r region.Region, lang, engine string) Reading {
	img := roi.Prepare(frame, r)
	if img == nil {
		p.forget(r.Name)
		return Reading{Name: r.Name}
	}

	hash := p.hash(img)
	if text, ok := p.reuse(r.Name, hash, lang, engine); ok {
		return Reading{Name: r.Name, Text: text, Extracted: true, Reused: true}
	}

	text := p.ocr.Recognize(ctx, img, lang, engine)
	p.mu.Lock()
	p.last[r.Name] = lastRead{hash: hash, text: text, lang: lang, engine: engine}
	p.mu.Unlock()
	return Reading{Name: r.Name, Text: text, Extracted: true}
}

// RecognizeOnce reads a single region without touching the skip cache.
func (p *Processor) RecognizeOnce(ctx context.Context, frame *image.RGBA, r region.Region, lang, engine string) Reading {
	img := roi.Prepare(frame, r)
	if img == nil {
		return Reading{Name: r.Name}
	}
	return Reading{Name: r.Name, Text: p.ocr.Recognize(ctx, img, lang, engine), Extracted: true}
}

func (p *Processor) hash(img image.Image) *goimagehash.ImageHash {
	if p.maxDistance < 0 {
		return nil
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		slog.Debug("region hash failed", "error", err)
		return nil
	}
	return h
}

// reuse reports the previous text when the region looks unchanged. Error
// sentinels are never reused so a failing engine is retried every cycle.
func (p *Processor) reuse(name string, hash *goimagehash.ImageHash, lang, engine string) (string, bool) {
	if hash == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.last[name]
	if !ok || prev.hash == nil || prev.lang != lang || prev.engine != engine || ocr.IsError(prev.text) {
		return "", false
	}
	dist, err := prev.hash.Distance(hash)
	if err != nil || dist > p.maxDistance {
		return "", false
	}
	return prev.text, true
}

func (p *Processor) forget(name string) {
	p.mu.Lock()
	delete(p.last, name)
	p.mu.Unlock()
}

// Retain drops skip state for regions not in names.
func (p *Processor) Retain(names []string) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := range p.last {
		if !keep[n] {
			delete(p.last, n)
		}
	}
}

// Reset drops all skip state.
func (p *Processor) Reset() {
	p.mu.Lock()
	clear(p.last)
	p.mu.Unlock()
}
