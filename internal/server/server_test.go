package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/game-translator/internal/config"
	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator/feed"
	"github.com/GriffinCanCode/game-translator/internal/region"
	"github.com/GriffinCanCode/game-translator/internal/screen"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

// mockController for testing.
type mockController struct {
	mu          sync.Mutex
	state       orchestrator.State
	game        string
	started     screen.Handle
	switched    screen.Handle
	frame       *screen.Frame
	regions     []region.Region
	settings    orchestrator.Settings
	auto        bool
	retransErr  error
	retransRes  translate.Result
	lastOptions translate.Options
	snipRect    image.Rectangle
	events      chan feed.Event
}

func newMockController() *mockController {
	return &mockController{
		game:     "game1",
		settings: orchestrator.Settings{TargetLang: "English", OCRLang: "ja", OCREngine: "tesseract", StableThreshold: 3},
		events:   make(chan feed.Event, 10),
	}
}

func (m *mockController) Start(_ context.Context, h screen.Handle) error {
	if h == 0 {
		return apperrors.New(apperrors.CodeWindowInvalid, "window handle is not valid")
	}
	m.started, m.state = h, orchestrator.Capturing
	return nil
}
func (m *mockController) SwitchWindow(h screen.Handle) error { m.switched = h; return nil }
func (m *mockController) Stop(time.Duration) error           { m.state = orchestrator.Idle; return nil }
func (m *mockController) Snapshot() (*screen.Frame, error) {
	if m.state != orchestrator.Capturing {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "not capturing")
	}
	m.state = orchestrator.Suspended
	return m.frame, nil
}
func (m *mockController) ReturnToLive() error {
	m.state = orchestrator.Capturing
	return nil
}
func (m *mockController) State() orchestrator.State       { return m.state }
func (m *mockController) GameKey() string                 { return m.game }
func (m *mockController) CurrentFrame() *screen.Frame     { return m.frame }
func (m *mockController) LiveText() map[string]string     { return map[string]string{"dialog": "namae"} }
func (m *mockController) StableText() map[string]string   { return map[string]string{"dialog": "namae"} }
func (m *mockController) History(n int) []feed.Entry      { return make([]feed.Entry, min(n, 2)) }
func (m *mockController) Events() <-chan feed.Event       { return m.events }
func (m *mockController) Regions() []region.Region        { return m.regions }
func (m *mockController) Settings() orchestrator.Settings { return m.settings }
func (m *mockController) SetAutoTranslate(enabled bool)   { m.auto = enabled }
func (m *mockController) AutoTranslate() bool             { return m.auto }
func (m *mockController) LatestTranslation() translate.Result {
	return translate.Result{Translations: map[string]string{"dialog": "Name"}}
}

func (m *mockController) SetRegions(rs []region.Region) error {
	set, err := region.NewSet(rs...)
	if err != nil {
		return err
	}
	m.regions = set.All()
	return nil
}
func (m *mockController) AddRegion(r region.Region) error {
	m.regions = append(m.regions, r)
	return nil
}
func (m *mockController) DeleteRegion(name string) error {
	for i, r := range m.regions {
		if r.Name == name {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return nil
		}
	}
	return apperrors.Newf(apperrors.CodeNotFound, "region %q not found", name)
}
func (m *mockController) ReorderRegions(names []string) error {
	out := make([]region.Region, 0, len(names))
	for _, n := range names {
		for _, r := range m.regions {
			if r.Name == n {
				out = append(out, r)
			}
		}
	}
	m.regions = out
	return nil
}

func (m *mockController) UpdateSettings(fn func(orchestrator.Settings) orchestrator.Settings) error {
	next := fn(m.settings)
	if err := next.Validate(); err != nil {
		return err
	}
	m.settings = next
	return nil
}

func (m *mockController) Retranslate(_ context.Context, opts translate.Options) (translate.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOptions = opts
	return m.retransRes, m.retransErr
}

func (m *mockController) Snip(_ context.Context, rect image.Rectangle) (orchestrator.SnipResult, error) {
	m.snipRect = rect
	return orchestrator.SnipResult{
		Text:   "hai",
		Result: translate.Result{GameKey: m.game, Translations: map[string]string{region.ReservedName: "Yes"}},
	}, nil
}

type recorder struct {
	cleared, reset []string
}

func (r *recorder) Clear(g string) error { r.cleared = append(r.cleared, g); return nil }
func (r *recorder) Reset(g string) error { r.reset = append(r.reset, g); return nil }

type engines struct{}

func (engines) Names() []string        { return []string{"tesseract"} }
func (engines) Ready(name string) bool { return name == "tesseract" }

func newTestServer(t *testing.T) (*Server, *mockController, *recorder) {
	t.Helper()
	ctrl := newMockController()
	rec := &recorder{}
	cfg := &config.Config{AllowedOrigins: []string{"http://localhost"}}
	s := New(context.Background(), Deps{
		Controller: ctrl,
		Cache:      rec,
		Context:    rec,
		Engines:    engines{},
		Presets: map[string]config.Preset{
			"deepseek": {Name: "deepseek", Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"},
		},
	}, cfg)
	return s, ctrl, rec
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCORSMiddleware(t *testing.T) {
	s, _, _ := newTestServer(t)
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		origin string
		want   string
	}{
		{"preflight allowed", http.MethodOptions, "http://localhost:5173", "http://localhost:5173"},
		{"get allowed", http.MethodGet, "http://localhost", "http://localhost"},
		{"foreign origin", http.MethodGet, "https://evil.example", ""},
		{"scheme mismatch", http.MethodGet, "https://localhost", ""},
		{"no origin", http.MethodGet, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if v := rec.Header().Get("Access-Control-Allow-Origin"); v != tt.want {
				t.Errorf("CORS origin = %q, want %q", v, tt.want)
			}
		})
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"http://localhost", "http://127.0.0.1:8080", "::bad"})
	want := []string{"localhost", "localhost:*", "127.0.0.1:8080"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("originPatterns = %v, want %v", got, want)
	}
	if got := originPatterns([]string{"*"}); len(got) != 1 || got[0] != "*" {
		t.Errorf("wildcard = %v", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d rejected", i)
		}
	}
	if rl.allow() {
		t.Error("message over the limit allowed")
	}
}

func TestCaptureLifecycle(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/capture/start", `{"handle":0}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("invalid handle status = %d, want 409", rec.Code)
	}
	body := decodeBody[errorResponse](t, rec)
	if body.Code != "WINDOW_INVALID" || body.Status != "Capture stopped: window is gone" {
		t.Errorf("error body = %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/capture/start", `{"handle":42}`)
	if rec.Code != http.StatusOK || ctrl.started != 42 {
		t.Fatalf("start status = %d, handle = %d", rec.Code, ctrl.started)
	}
	if st := decodeBody[stateResponse](t, rec); st.State != "capturing" || st.Game != "game1" {
		t.Errorf("state = %+v", st)
	}

	// A running loop rebinds instead of starting again.
	do(t, h, http.MethodPost, "/api/capture/start", `{"handle":7}`)
	if ctrl.switched != 7 {
		t.Errorf("switched = %d, want 7", ctrl.switched)
	}

	if rec := do(t, h, http.MethodPost, "/api/capture/snapshot", ""); rec.Code != http.StatusOK {
		t.Errorf("snapshot status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/capture/snapshot", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("second snapshot status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/capture/live", ""); rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/capture/stop", "")
	if st := decodeBody[stateResponse](t, rec); st.State != "idle" {
		t.Errorf("state after stop = %q", st.State)
	}
}

func TestFrame(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/frame", ""); rec.Code != http.StatusNotFound {
		t.Errorf("no frame status = %d, want 404", rec.Code)
	}

	ctrl.frame = &screen.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 3)), Sequence: 9}
	rec := do(t, h, http.MethodGet, "/api/frame", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("frame status = %d, type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Frame-Sequence") != "9" {
		t.Errorf("sequence header = %q", rec.Header().Get("X-Frame-Sequence"))
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestTextAndHistory(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	txt := decodeBody[textResponse](t, do(t, h, http.MethodGet, "/api/text", ""))
	if txt.Stable["dialog"] != "namae" || txt.Translations["dialog"] != "Name" {
		t.Errorf("text = %+v", txt)
	}

	entries := decodeBody[[]feed.Entry](t, do(t, h, http.MethodGet, "/api/history?limit=5", ""))
	if len(entries) != 2 {
		t.Errorf("history len = %d, want 2", len(entries))
	}
	if rec := do(t, h, http.MethodGet, "/api/history?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestRegionEndpoints(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPut, "/api/regions",
		`{"regions":[{"name":"name","x1":0,"y1":0,"x2":10,"y2":10},{"name":"dialog","x1":0,"y1":10,"x2":40,"y2":30}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPut, "/api/regions",
		`{"regions":[{"name":"a","x1":0,"y1":0,"x2":1,"y2":1},{"name":"a","x1":0,"y1":0,"x2":1,"y2":1}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate names status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/regions", `{"name":"choice","x1":0,"y1":30,"x2":40,"y2":40}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("add status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/regions/order", `{"names":["dialog","choice","name"]}`)
	got := decodeBody[regionsResponse](t, rec)
	var names []string
	for _, r := range got.Regions {
		names = append(names, r.Name)
	}
	if strings.Join(names, ",") != "dialog,choice,name" {
		t.Errorf("order = %v", names)
	}

	if rec := do(t, h, http.MethodDelete, "/api/regions/choice", ""); rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/regions/choice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	if len(ctrl.regions) != 2 {
		t.Errorf("regions = %d, want 2", len(ctrl.regions))
	}

	if rec := do(t, h, http.MethodPut, "/api/regions", `{"regions":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPut, "/api/settings",
		`{"target_lang":"German","stable_threshold":5,"auto_translate":true,"preset":"deepseek"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body)
	}
	got := decodeBody[settingsResponse](t, rec)
	if got.TargetLang != "German" || got.StableThreshold != 5 || !got.AutoTranslate {
		t.Errorf("settings = %+v", got)
	}
	if got.Preset != "deepseek" || got.Model != "deepseek-chat" {
		t.Errorf("preset = %q model = %q", got.Preset, got.Model)
	}
	if got.OCRLang != "ja" {
		t.Errorf("untouched field changed: ocr_lang = %q", got.OCRLang)
	}
	if len(got.Presets) != 1 || got.Presets[0] != "deepseek" {
		t.Errorf("presets = %v", got.Presets)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"zero threshold", `{"stable_threshold":0}`, http.StatusBadRequest},
		{"negative context", `{"context_limit":-1}`, http.StatusBadRequest},
		{"unsupported language", `{"ocr_lang":"xx"}`, http.StatusBadRequest},
		{"unknown preset", `{"preset":"nope"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPut, "/api/settings", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if ctrl.settings.StableThreshold != 5 {
		t.Errorf("rejected update applied: threshold = %d", ctrl.settings.StableThreshold)
	}
}

func TestTranslateEndpoint(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	ctrl.retransErr = apperrors.New(apperrors.CodeNotFound, "no stable text to translate")
	if rec := do(t, h, http.MethodPost, "/api/translate", ""); rec.Code != http.StatusNotFound {
		t.Errorf("nothing stable status = %d, want 404", rec.Code)
	}
	if !ctrl.lastOptions.ForceRecache {
		t.Error("empty body should default to force_recache")
	}

	ctrl.retransErr = nil
	ctrl.retransRes = translate.Result{Err: apperrors.New(apperrors.CodeLLMRateLimited, "429")}
	if rec := do(t, h, http.MethodPost, "/api/translate", `{"skip_cache":true}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("rate limited status = %d, want 429", rec.Code)
	}
	if !ctrl.lastOptions.SkipCache || ctrl.lastOptions.ForceRecache {
		t.Errorf("options = %+v", ctrl.lastOptions)
	}

	ctrl.retransRes = translate.Result{GameKey: "game1", Translations: map[string]string{"dialog": "Name"}}
	rec := do(t, h, http.MethodPost, "/api/translate", "")
	got := decodeBody[translateResponse](t, rec)
	if rec.Code != http.StatusOK || got.Translations["dialog"] != "Name" {
		t.Errorf("status = %d body = %+v", rec.Code, got)
	}
}

func TestSnipEndpoint(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/snip", `{"x1":5,"y1":5,"x2":5,"y2":9}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty rect status = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/snip", `{"x1":20,"y1":20,"x2":10,"y2":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("snip status = %d: %s", rec.Code, rec.Body)
	}
	if ctrl.snipRect != image.Rect(10, 10, 20, 20) {
		t.Errorf("rect = %v", ctrl.snipRect)
	}
	got := decodeBody[snipResponse](t, rec)
	if got.Text != "hai" || got.Translations[region.ReservedName] != "Yes" {
		t.Errorf("snip = %+v", got)
	}
}

func TestMaintenanceEndpoints(t *testing.T) {
	s, _, rec := newTestServer(t)
	h := s.Handler()

	if r := do(t, h, http.MethodDelete, "/api/cache", ""); r.Code != http.StatusNoContent {
		t.Errorf("clear cache status = %d", r.Code)
	}
	do(t, h, http.MethodDelete, "/api/context?game=other", "")
	if len(rec.cleared) != 1 || rec.cleared[0] != "game1" {
		t.Errorf("cleared = %v", rec.cleared)
	}
	if len(rec.reset) != 1 || rec.reset[0] != "other" {
		t.Errorf("reset = %v", rec.reset)
	}

	eng := decodeBody[[]engineInfo](t, do(t, h, http.MethodGet, "/api/engines", ""))
	if len(eng) != 1 || !eng[0].Ready || len(eng[0].Languages) == 0 {
		t.Errorf("engines = %+v", eng)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code apperrors.Code
		want int
	}{
		{apperrors.CodeInvalidArgument, http.StatusBadRequest},
		{apperrors.CodeNotFound, http.StatusNotFound},
		{apperrors.CodeLLMNotConfigured, http.StatusConflict},
		{apperrors.CodeLLMRateLimited, http.StatusTooManyRequests},
		{apperrors.CodeTimeout, http.StatusGatewayTimeout},
		{apperrors.CodeLLMInvalidResponse, http.StatusBadGateway},
		{apperrors.CodeOCREngineUnavailable, http.StatusServiceUnavailable},
		{apperrors.CodePersistenceFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := httpStatus(apperrors.New(tt.code, "x")); got != tt.want {
				t.Errorf("httpStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWebSocket(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var hello feed.Event
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		t.Fatal(err)
	}
	if hello.Kind != feed.KindState || hello.GameKey != "game1" {
		t.Errorf("hello = %+v", hello)
	}

	if err := wsjson.Write(ctx, conn, CommandMessage{Type: MsgPing}); err != nil {
		t.Fatal(err)
	}
	var pong ReplyMessage
	if err := wsjson.Read(ctx, conn, &pong); err != nil {
		t.Fatal(err)
	}
	if pong.Type != "pong" || !pong.OK {
		t.Errorf("pong = %+v", pong)
	}

	// Wait for registration before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for s.Connections() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctrl.events <- feed.Event{Kind: feed.KindTranslation, GameKey: "game1", Translations: map[string]string{"dialog": "Hello"}}

	var evt feed.Event
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Kind != feed.KindTranslation || evt.Translations["dialog"] != "Hello" {
		t.Errorf("event = %+v", evt)
	}
}
