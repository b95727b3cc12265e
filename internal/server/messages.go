package server

import (
	"github.com/GriffinCanCode/game-translator/internal/region"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

// Inbound websocket message types.
const (
	MsgRetranslate = "retranslate"
	MsgSnapshot    = "snapshot"
	MsgLive        = "live"
	MsgPing        = "ping"
)

// CommandMessage is an inbound websocket message. Options apply to "retranslate".
type CommandMessage struct {
	Type    string             `json:"type"`
	Options *translate.Options `json:"options,omitempty"`
}

// ReplyMessage answers an inbound command.
type ReplyMessage struct {
	Type   string `json:"type"`
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Status string `json:"status"`
}

type startRequest struct {
	Handle uint64 `json:"handle"`
}

type stateResponse struct {
	State         string `json:"state"`
	Game          string `json:"game"`
	AutoTranslate bool   `json:"auto_translate"`
}

type textResponse struct {
	Game         string            `json:"game"`
	Live         map[string]string `json:"live"`
	Stable       map[string]string `json:"stable"`
	Translations map[string]string `json:"translations"`
	Cached       bool              `json:"cached"`
}

type regionsResponse struct {
	Regions []region.Region `json:"regions"`
}

type orderRequest struct {
	Names []string `json:"names"`
}

type settingsRequest struct {
	TargetLang      *string `json:"target_lang"`
	OCRLang         *string `json:"ocr_lang"`
	OCREngine       *string `json:"ocr_engine"`
	ExtraContext    *string `json:"extra_context"`
	ContextLimit    *int    `json:"context_limit"`
	StableThreshold *int    `json:"stable_threshold"`
	AutoTranslate   *bool   `json:"auto_translate"`
	Preset          *string `json:"preset"`
}

type settingsResponse struct {
	TargetLang      string   `json:"target_lang"`
	OCRLang         string   `json:"ocr_lang"`
	OCREngine       string   `json:"ocr_engine"`
	ExtraContext    string   `json:"extra_context"`
	ContextLimit    int      `json:"context_limit"`
	StableThreshold int      `json:"stable_threshold"`
	AutoTranslate   bool     `json:"auto_translate"`
	Preset          string   `json:"preset"`
	Model           string   `json:"model"`
	Presets         []string `json:"presets"`
}

type translateResponse struct {
	ID           string            `json:"id"`
	Game         string            `json:"game"`
	Translations map[string]string `json:"translations,omitempty"`
	Cached       bool              `json:"cached"`
}

type snipRequest struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type snipResponse struct {
	Text string `json:"text"`
	translateResponse
}

type engineInfo struct {
	Name      string   `json:"name"`
	Ready     bool     `json:"ready"`
	Languages []string `json:"languages"`
}
