package http

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/engine/enginetest"
	"github.com/GriffinCanCode/browser-source/internal/host"
	"github.com/GriffinCanCode/browser-source/internal/host/software"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browser-source/internal/shared/id"
	"github.com/GriffinCanCode/browser-source/internal/source"
)

type harness struct {
	manager  *engine.Manager
	graphics *software.Graphics
	plugin   *source.Plugin
	router   *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := enginetest.New()
	m := engine.NewManager(eng.Factory(), engine.DefaultManagerConfig(), nil)
	require.NoError(t, m.Start())
	t.Cleanup(m.Shutdown)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	g := software.NewGraphics(16, 16)
	p, err := source.NewPlugin(m, source.Options{
		Graphics:  g,
		Metrics:   metrics,
		AudioInfo: host.AudioInfo{Channels: 2, SampleRate: 48000},
		CanvasFPS: 30,
	})
	require.NoError(t, err)

	r := gin.New()
	NewHandlers(p, g, metrics, nil).Register(r)
	return &harness{manager: m, graphics: g, plugin: p, router: r}
}

// tick creates pending browsers and waits for queued browser work.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.plugin.TickAll()
	h.flush(t)
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.True(t, h.manager.QueueTaskSync(func() {}))
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

type sourceResponse struct {
	Success bool       `json:"success"`
	Source  SourceView `json:"source"`
}

func (h *harness) create(t *testing.T, body string) SourceView {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/sources", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sourceResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Source
}

func decodeSource(t *testing.T, rec *httptest.ResponseRecorder) SourceView {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp sourceResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Source
}

func browserOf(t *testing.T, h *harness, sid string) *enginetest.Browser {
	t.Helper()
	src, err := h.plugin.Get(id.SourceID(sid))
	require.NoError(t, err)
	b, ok := src.Browser().(*enginetest.Browser)
	require.True(t, ok, "source has no browser")
	return b
}

func eventsNamed(b *enginetest.Browser, event string) []*envelope.Message {
	var out []*envelope.Message
	for _, msg := range b.RecordedHost().Messages() {
		if msg.Name == envelope.NameDispatchJSEvent && msg.GetString(0) == event {
			out = append(out, msg)
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"sources":0`)
}

func TestSourceCRUD(t *testing.T) {
	h := newHarness(t)

	created := h.create(t, `{"name":"alerts","settings":{"url":"https://example.com/alerts","width":1280,"height":720}}`)
	assert.True(t, id.IsValidPrefixed(created.ID, id.SourcePrefix))
	assert.Equal(t, "alerts", created.Name)
	assert.Equal(t, "https://example.com/alerts", created.URL)
	assert.Equal(t, 1280, created.Width)
	assert.True(t, created.Visible)
	assert.True(t, created.Active)
	assert.Equal(t, source.DefaultCSS, created.Settings.CSS)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Minute)

	hidden := h.create(t, `{"name":"clock","visible":false,"active":false}`)
	assert.False(t, hidden.Visible)
	assert.False(t, hidden.Active)
	assert.Equal(t, source.DefaultURL, hidden.URL)

	rec := h.do(t, http.MethodGet, "/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sources []SourceView `json:"sources"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sources, 2)
	assert.Equal(t, "alerts", list.Sources[0].Name)

	got := decodeSource(t, h.do(t, http.MethodGet, "/sources/"+created.ID, ""))
	assert.Equal(t, created.ID, got.ID)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/sources/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/sources/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/sources/"+created.ID, "").Code)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/sources", `{"settings":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")

	rec = h.do(t, http.MethodPost, "/sources", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestUnknownSource(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/sources/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/sources/"+id.NewSourceID().String(), "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/sources/nope/show", "").Code)
}

func TestPatchKeepsAndPutResetsSettings(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, `{"name":"overlay","settings":{"width":1280,"css":"body{}"}}`)

	patched := decodeSource(t, h.do(t, http.MethodPatch, "/sources/"+created.ID, `{"height":500}`))
	assert.Equal(t, 1280, patched.Width)
	assert.Equal(t, 500, patched.Height)
	assert.Equal(t, "body{}", patched.Settings.CSS)

	replaced := decodeSource(t, h.do(t, http.MethodPut, "/sources/"+created.ID, `{"height":500}`))
	assert.Equal(t, source.DefaultWidth, replaced.Width)
	assert.Equal(t, 500, replaced.Height)
	assert.Equal(t, source.DefaultCSS, replaced.Settings.CSS)

	clamped := decodeSource(t, h.do(t, http.MethodPatch, "/sources/"+created.ID, `{"width":0,"fps":1000}`))
	assert.Equal(t, source.MinSize, clamped.Width)
	assert.Equal(t, source.MaxFPS, clamped.Settings.FPS)
}

func TestLifecycleRoutes(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, `{"name":"overlay"}`)
	h.tick(t)

	hidden := decodeSource(t, h.do(t, http.MethodPost, "/sources/"+created.ID+"/hide", ""))
	assert.False(t, hidden.Visible)
	shown := decodeSource(t, h.do(t, http.MethodPost, "/sources/"+created.ID+"/show", ""))
	assert.True(t, shown.Visible)

	inactive := decodeSource(t, h.do(t, http.MethodPost, "/sources/"+created.ID+"/deactivate", ""))
	assert.False(t, inactive.Active)
	active := decodeSource(t, h.do(t, http.MethodPost, "/sources/"+created.ID+"/activate", ""))
	assert.True(t, active.Active)

	decodeSource(t, h.do(t, http.MethodPost, "/sources/"+created.ID+"/refresh", ""))
	h.flush(t)
	assert.Equal(t, 1, browserOf(t, h, created.ID).Reloads())
}

func TestProperties(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, `{"name":"overlay"}`)

	rec := h.do(t, http.MethodGet, "/sources/"+created.ID+"/properties", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Properties []source.Property `json:"properties"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Properties)
	assert.Equal(t, "is_local_file", resp.Properties[0].Name)
}

func TestSourceEvent(t *testing.T) {
	h := newHarness(t)
	target := h.create(t, `{"name":"target"}`)
	other := h.create(t, `{"name":"other"}`)
	h.tick(t)

	path := "/sources/" + target.ID + "/events"
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, path, `{"event_name":"score","event_data":{"home":3}}`).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, path, `{"event_name":"score"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, path, `{"event_data":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, path, `{`).Code)
	h.flush(t)

	events := eventsNamed(browserOf(t, h, target.ID), "score")
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"home":3}`, events[0].GetString(1))
	assert.Equal(t, "null", events[1].GetString(1))
	assert.Empty(t, eventsNamed(browserOf(t, h, other.ID), "score"))
}

func TestEmitEvent(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, `{"name":"a"}`)
	b := h.create(t, `{"name":"b"}`)
	h.tick(t)

	rec := h.do(t, http.MethodPost, "/events", `{"event_name":"goal"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"reached":2}`, rec.Body.String())
	h.flush(t)

	for _, sid := range []string{a.ID, b.ID} {
		events := eventsNamed(browserOf(t, h, sid), "goal")
		require.Len(t, events, 1)
		assert.Equal(t, "{}", events[0].GetString(1))
	}
}

func TestInputForwarding(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, `{"name":"overlay"}`)
	h.tick(t)
	base := "/sources/" + created.ID

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/mouse",
		`{"type":"click","x":10,"y":20,"button":"right","up":true}`).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/mouse", `{"type":"move","x":1,"y":2}`).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/mouse", `{"type":"wheel","delta_y":-120}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, base+"/mouse", `{"type":"drag"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, base+"/mouse", `{"type":"click","button":"fourth"}`).Code)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/key", `{"text":"a","native_vkey":65}`).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/focus", `{"focus":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, base+"/focus", `{}`).Code)
	h.flush(t)

	hst := browserOf(t, h, created.ID).RecordedHost()
	clicks := hst.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, engine.MouseRight, clicks[0].Button)
	assert.Equal(t, 1, clicks[0].ClickCount)
	assert.Equal(t, 20, clicks[0].Event.Y)

	keys := hst.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, engine.KeyRawDown, keys[0].Type)
	assert.Equal(t, engine.KeyChar, keys[1].Type)
	assert.Equal(t, 'a', keys[1].Character)
	assert.True(t, hst.Focused())
}

func TestFrameSnapshot(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, `{"name":"overlay"}`)
	path := "/sources/" + created.ID + "/frame.png"

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, path, "").Code)

	src, err := h.plugin.Get(id.SourceID(created.ID))
	require.NoError(t, err)
	frame := make([]byte, 2*2*4)
	for i := 0; i < len(frame); i += 4 {
		frame[i], frame[i+1], frame[i+2], frame[i+3] = 0x10, 0x20, 0xff, 0xff
	}
	src.Surface().Paint(frame, 2, 2)

	rec := h.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0x2020), g)
	assert.Equal(t, uint32(0x1010), b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestCanvasSnapshot(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/canvas.png", "")
	require.Equal(t, http.StatusOK, rec.Code)

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.create(t, `{"name":"a"}`)
	h.create(t, `{"name":"b","visible":false}`)
	h.tick(t)

	rec := h.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap StatsSnapshot
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.Summary.Sources)
	assert.Equal(t, 1, snap.Summary.Visible)
	assert.Equal(t, 2, snap.Summary.Active)
	require.Len(t, snap.Sources, 2)
	assert.Equal(t, int64(1), snap.Sources[0].Creations)
	assert.Equal(t, int64(2), snap.Metrics.ActiveSources)
}
