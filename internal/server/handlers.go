package server

import (
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/ocr"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator"
	"github.com/GriffinCanCode/game-translator/internal/region"
	"github.com/GriffinCanCode/game-translator/internal/screen"
	"github.com/GriffinCanCode/game-translator/internal/trace"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	h := screen.Handle(req.Handle)
	var err error
	if s.ctrl.State() == orchestrator.Idle {
		err = s.ctrl.Start(s.ctx, h)
	} else {
		err = s.ctrl.SwitchWindow(h)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(StopTimeout); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctrl.Snapshot(); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ReturnToLive(); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		State:         s.ctrl.State().String(),
		Game:          s.ctrl.GameKey(),
		AutoTranslate: s.ctrl.AutoTranslate(),
	})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := s.ctrl.CurrentFrame()
	if f == nil || f.Image == nil {
		writeError(w, r, apperrors.New(apperrors.CodeNotFound, "no frame captured yet"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Sequence", strconv.FormatUint(f.Sequence, 10))
	if err := png.Encode(w, f.Image); err != nil {
		trace.Logger(r.Context()).Debug("frame write failed", "error", err)
	}
}

func (s *Server) handleText(w http.ResponseWriter, _ *http.Request) {
	latest := s.ctrl.LatestTranslation()
	writeJSON(w, http.StatusOK, textResponse{
		Game:         s.ctrl.GameKey(),
		Live:         s.ctrl.LiveText(),
		Stable:       s.ctrl.StableText(),
		Translations: latest.Translations,
		Cached:       latest.Cached,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid limit %q", v))
			return
		}
		limit = min(n, MaxHistoryLimit)
	}
	writeJSON(w, http.StatusOK, s.ctrl.History(limit))
}

func (s *Server) handleEngines(w http.ResponseWriter, _ *http.Request) {
	var out []engineInfo
	if s.engines != nil {
		for _, name := range s.engines.Names() {
			info := engineInfo{Name: name, Ready: s.engines.Ready(name)}
			for _, code := range ocr.LanguageCodes() {
				if _, ok := ocr.ResolveLanguage(name, code); ok {
					info.Languages = append(info.Languages, code)
				}
			}
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, regionsResponse{Regions: s.ctrl.Regions()})
}

func (s *Server) handleSetRegions(w http.ResponseWriter, r *http.Request) {
	var req regionsResponse
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.SetRegions(req.Regions); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleRegions(w, r)
}

func (s *Server) handleAddRegion(w http.ResponseWriter, r *http.Request) {
	var reg region.Region
	if !decode(w, r, &reg) {
		return
	}
	if err := s.ctrl.AddRegion(reg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, regionsResponse{Regions: s.ctrl.Regions()})
}

func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.DeleteRegion(r.PathValue("name")); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleRegions(w, r)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.ReorderRegions(req.Names); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleRegions(w, r)
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	st := s.ctrl.Settings()
	writeJSON(w, http.StatusOK, settingsResponse{
		TargetLang:      st.TargetLang,
		OCRLang:         st.OCRLang,
		OCREngine:       st.OCREngine,
		ExtraContext:    st.ExtraContext,
		ContextLimit:    st.ContextLimit,
		StableThreshold: st.StableThreshold,
		AutoTranslate:   s.ctrl.AutoTranslate(),
		Preset:          st.Preset.Name,
		Model:           st.Preset.Model,
		Presets:         presetNames(s.presets),
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Preset != nil {
		if _, ok := s.presets[*req.Preset]; !ok {
			writeError(w, r, apperrors.Newf(apperrors.CodeNotFound, "unknown preset %q", *req.Preset))
			return
		}
	}

	err := s.ctrl.UpdateSettings(func(st orchestrator.Settings) orchestrator.Settings {
		set(&st.TargetLang, req.TargetLang)
		set(&st.OCRLang, req.OCRLang)
		set(&st.OCREngine, req.OCREngine)
		set(&st.ExtraContext, req.ExtraContext)
		set(&st.ContextLimit, req.ContextLimit)
		set(&st.StableThreshold, req.StableThreshold)
		if req.Preset != nil {
			st.Preset = s.presets[*req.Preset]
		}
		return st
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.AutoTranslate != nil {
		s.ctrl.SetAutoTranslate(*req.AutoTranslate)
	}
	s.handleSettings(w, r)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	opts := translate.Options{ForceRecache: true}
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	res, err := s.ctrl.Retranslate(r.Context(), opts)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse(res))
}

func (s *Server) handleSnip(w http.ResponseWriter, r *http.Request) {
	var req snipRequest
	if !decode(w, r, &req) {
		return
	}
	rect := image.Rect(req.X1, req.Y1, req.X2, req.Y2)
	if rect.Empty() {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "snip rectangle is empty"))
		return
	}
	out, err := s.ctrl.Snip(r.Context(), rect)
	if err == nil {
		err = out.Result.Err
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snipResponse{Text: out.Text, translateResponse: resultResponse(out.Result)})
}

func (s *Server) handleResetContext(w http.ResponseWriter, r *http.Request) {
	game := s.gameParam(r)
	if err := s.history.Reset(game); err != nil {
		writeError(w, r, err)
		return
	}
	trace.Logger(r.Context()).Info("conversation context reset", "game", game)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	game := s.gameParam(r)
	if err := s.cache.Clear(game); err != nil {
		writeError(w, r, err)
		return
	}
	trace.Logger(r.Context()).Info("translation cache cleared", "game", game)
	w.WriteHeader(http.StatusNoContent)
}

// gameParam defaults to the bound game.
func (s *Server) gameParam(r *http.Request) string {
	if g := r.URL.Query().Get("game"); g != "" {
		return g
	}
	return s.ctrl.GameKey()
}

func resultResponse(res translate.Result) translateResponse {
	out := translateResponse{
		Game:         res.GameKey,
		Translations: res.Translations,
		Cached:       res.Cached,
	}
	if res.ID != (ulid.ULID{}) {
		out.ID = res.ID.String()
	}
	return out
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	log := trace.Logger(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, code, errorResponse{
		Error:  msg,
		Code:   apperrors.CodeOf(err).String(),
		Status: apperrors.Status(err),
	})
}

func httpStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument, apperrors.CodeOCRUnsupportedLanguage, apperrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeWindowInvalid, apperrors.CodeLLMNotConfigured, apperrors.CodeConfigMissing:
		return http.StatusConflict
	case apperrors.CodeLLMRateLimited:
		return http.StatusTooManyRequests
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeLLMAPIError, apperrors.CodeLLMInvalidResponse:
		return http.StatusBadGateway
	case apperrors.CodeUnavailable, apperrors.CodeOCREngineUnavailable, apperrors.CodeOCRInitFailed, apperrors.CodeCaptureFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
