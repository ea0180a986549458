package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vibewidget/internal/artifact"
	"vibewidget/internal/host"
	"vibewidget/internal/llm"
	"vibewidget/internal/orchestrator"
	"vibewidget/internal/store"
	"vibewidget/internal/traits"
)

const servedModule = `
export const ColorLegend = () => null;
export default function Widget({ model, html }) { return html` + "`<div></div>`" + `; }
`

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	orch := orchestrator.New(st, llm.NewFakeClient(servedModule))
	h := host.New(traits.NewRegistry(), orch)
	api := NewAPI(st, orch, h, nil)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/widgets/generate", map[string]any{
		"description": "bar chart of revenue by region",
		"data": map[string]any{
			"columns": []string{"region", "revenue"},
			"types":   map[string]string{"region": "string", "revenue": "float"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		ID         string   `json:"id"`
		Version    int      `json:"version"`
		Components []string `json:"components"`
		Slug       string   `json:"slug"`
		Code       string   `json:"code"`
	}
	decodeJSON(t, resp, &out)
	if out.ID == "" || out.Version != 1 || out.Code == "" {
		t.Fatalf("response = %+v", out)
	}
	if len(out.Components) != 1 || out.Components[0] != "ColorLegend" {
		t.Fatalf("components = %v", out.Components)
	}
	if out.Slug == "" {
		t.Fatalf("missing slug")
	}
}

func TestGenerateEndpointRequiresDescription(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/v1/widgets/generate", map[string]any{"description": "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetWidgetEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	key := artifact.NewCacheKey("bar chart", artifact.DataContext{Columns: []string{"x"}}, "")
	a, err := st.Put(t.Context(), key, servedModule, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/widgets/" + a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
		Code    string `json:"code"`
	}
	decodeJSON(t, resp, &out)
	if out.ID != a.ID || out.Code == "" {
		t.Fatalf("response = %+v", out)
	}

	resp, err = http.Get(srv.URL + "/v1/widgets/feedfacecafe")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing widget status = %d, want 404", resp.StatusCode)
	}
}

func TestReviseEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	key := artifact.NewCacheKey("bar chart", artifact.DataContext{Columns: []string{"x"}}, "")
	base, err := st.Put(t.Context(), key, servedModule, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := postJSON(t, srv.URL+"/v1/widgets/revise", map[string]any{
		"description": "use a log scale",
		"source":      map[string]any{"artifactRef": base.ID},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		ID             string `json:"id"`
		BaseArtifactID string `json:"base_artifact_id"`
	}
	decodeJSON(t, resp, &out)
	if out.ID == base.ID || out.BaseArtifactID != base.ID {
		t.Fatalf("lineage = %+v, base %s", out, base.ID)
	}

	resp = postJSON(t, srv.URL+"/v1/widgets/revise", map[string]any{
		"description": "use a log scale",
		"source":      map[string]any{},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty source status = %d, want 400", resp.StatusCode)
	}
}

func TestComponentEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	key := artifact.NewCacheKey("bar chart", artifact.DataContext{Columns: []string{"x"}}, "")
	a, err := st.Put(t.Context(), key, servedModule, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/widgets/%s/components/color_legend", srv.URL, a.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		ComponentName string `json:"componentName"`
		Alias         string `json:"alias"`
		Code          string `json:"code"`
	}
	decodeJSON(t, resp, &out)
	if out.ComponentName != "ColorLegend" || out.Alias != "color_legend" || out.Code == "" {
		t.Fatalf("response = %+v", out)
	}

	resp, err = http.Get(fmt.Sprintf("%s/v1/widgets/%s/components/heatmap", srv.URL, a.ID))
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown component status = %d, want 404", resp.StatusCode)
	}
}

func TestAuditsWithoutBackend(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/widgets/abc/audits")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func mountInstance(t *testing.T, srv *httptest.Server, st store.Store) string {
	t.Helper()
	key := artifact.NewCacheKey("bar chart", artifact.DataContext{Columns: []string{"x"}}, "")
	a, err := st.Put(t.Context(), key, servedModule, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	resp := postJSON(t, srv.URL+"/v1/instances", map[string]any{
		"artifactRef": a.ID,
		"data": map[string]any{
			"columns": []string{"x"},
			"exports": map[string]string{"selected": "current selection"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mount status = %d", resp.StatusCode)
	}
	var state struct {
		InstanceID string `json:"instanceId"`
		Status     string `json:"status"`
	}
	decodeJSON(t, resp, &state)
	if state.InstanceID == "" || state.Status != "ready" {
		t.Fatalf("mount state = %+v", state)
	}
	return state.InstanceID
}

func TestMountEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	mountInstance(t, srv, st)
}

func TestSessionWebSocket(t *testing.T) {
	srv, st := newTestServer(t)
	instanceID := mountInstance(t, srv, st)

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws/session?instance_id=" + instanceID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame struct {
		Type  string `json:"type"`
		Trait string `json:"trait"`
		Value any    `json:"value"`
		State *struct {
			InstanceID string `json:"instanceId"`
			Status     string `json:"status"`
			RetryCount int    `json:"retryCount"`
		} `json:"state"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if frame.Type != "state" || frame.State == nil || frame.State.InstanceID != instanceID {
		t.Fatalf("first frame = %+v", frame)
	}

	if err := conn.WriteJSON(map[string]any{"type": "set", "trait": "selected", "value": "EMEA"}); err != nil {
		t.Fatalf("write set: %v", err)
	}
	for {
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read trait frame: %v", err)
		}
		if frame.Type == "trait" && frame.Trait == "selected" {
			if frame.Value != "EMEA" {
				t.Fatalf("trait value = %v", frame.Value)
			}
			break
		}
	}

	// A reported error walks the repair loop and lands back in ready with a
	// bumped retry count.
	if err := conn.WriteJSON(map[string]any{"type": "error", "message": "TypeError: x is undefined"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	for {
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read repair frames: %v", err)
		}
		if frame.Type == "state" && frame.State != nil && frame.State.Status == "ready" && frame.State.RetryCount == 1 {
			break
		}
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	for {
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read error frame: %v", err)
		}
		if frame.Type == "error" {
			break
		}
	}
}

func TestSessionWebSocketUnknownInstance(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws/session?instance_id=nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
