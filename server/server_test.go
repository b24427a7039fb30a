package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petal-labs/ontoflow/engine"
)

const testWorkspace = `{
	"metadata": {"domain": "corporate_acquisition", "version": "1.0", "description": "M&A ripple demo"},
	"ontology_def": {
		"node_types": {
			"Event": {"label": "Event", "color": "#f59e0b", "shape": "diamond"},
			"Company": {"label": "Company", "color": "#3b82f6", "shape": "ellipse"}
		},
		"edge_types": {
			"IMPACTS": {"label": "impacts", "color": "#64748b"}
		}
	},
	"graph_data": {
		"nodes": [
			{"id": "E_ACQ_101", "type": "Event", "properties": {"name": "Acquisition", "status": "RUMORED"}},
			{"id": "C_ALPHA", "type": "Company", "properties": {"name": "Alpha Corp", "role": "acquirer", "valuation": 5000000}},
			{"id": "C_BETA", "type": "Company", "properties": {"name": "Beta Inc", "role": "competitor", "valuation": 5000000}}
		],
		"edges": [
			{"source": "E_ACQ_101", "target": "C_ALPHA", "type": "IMPACTS"},
			{"source": "E_ACQ_101", "target": "C_BETA", "type": "IMPACTS"}
		]
	},
	"action_engine": {
		"actions": [
			{
				"action_id": "announce_acquisition",
				"target_node_type": "Event",
				"display_name": "Announce Acquisition",
				"direct_effect": {"property_to_update": "status", "new_value": "ANNOUNCED"},
				"ripple_rules": [
					{
						"rule_id": "acquirer_boost",
						"propagation_path": "-[IMPACTS]->Company",
						"condition": "target[\"role\"] == \"acquirer\"",
						"effect_on_target": {
							"action_to_trigger": "recalculate_valuation",
							"parameters": {"shock_factor": 0.4}
						},
						"insight_template": "Valuation of {target[name]} moved to {target[valuation]}"
					}
				]
			}
		]
	}
}`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	samplesDir := t.TempDir()
	srv := NewServer(ServerConfig{
		Engine:     engine.New(),
		SamplesDir: samplesDir,
	})
	return srv, samplesDir
}

// multipartBody builds a multipart form with the given named file parts.
func multipartBody(t *testing.T, parts map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range parts {
		fw, err := mw.CreateFormFile(field, field+".json")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("writing part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func loadTestWorkspace(t *testing.T, handler http.Handler) {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{"file": testWorkspace})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("load returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestLoadWorkspaceUpload(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body, contentType := multipartBody(t, map[string]string{"file": testWorkspace})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Metadata struct {
			Domain string `json:"domain"`
		} `json:"metadata"`
		GraphData struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"graph_data"`
		Actions             []map[string]any `json:"actions"`
		RegisteredFunctions []struct {
			Name   string `json:"name"`
			Source string `json:"source"`
		} `json:"registered_functions"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Metadata.Domain != "corporate_acquisition" {
		t.Errorf("domain = %q", resp.Metadata.Domain)
	}
	if len(resp.GraphData.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(resp.GraphData.Nodes))
	}
	if len(resp.Actions) != 1 {
		t.Errorf("actions = %d, want 1", len(resp.Actions))
	}
	if len(resp.RegisteredFunctions) != 6 {
		t.Errorf("registered functions = %d, want 6 builtins", len(resp.RegisteredFunctions))
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", resp.Warnings)
	}
}

func TestLoadWorkspaceValidationFailure(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	invalid := `{"metadata": {}, "graph_data": {"nodes": [], "edges": [{"source": "A", "target": "B", "type": "X"}]}}`
	body, contentType := multipartBody(t, map[string]string{"file": invalid})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	var resp apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if len(resp.Error.Details) == 0 {
		t.Error("expected diagnostic details")
	}
	found := false
	for _, d := range resp.Error.Details {
		if strings.Contains(d, "WS-001") {
			found = true
		}
	}
	if !found {
		t.Errorf("details %v missing WS-001 diagnostic", resp.Error.Details)
	}
}

func TestLoadWorkspaceNoInput(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoadWorkspaceBySample(t *testing.T) {
	srv, samplesDir := newTestServer(t)
	handler := srv.Handler()

	if err := os.WriteFile(filepath.Join(samplesDir, "acq.json"), []byte(testWorkspace), 0o644); err != nil {
		t.Fatalf("writing sample: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load?sample=acq", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load?sample=missing", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown sample status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load?sample=../escape", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("traversal sample status = %d, want 400", rec.Code)
	}
}

func TestLoadWorkspaceSampleWithEffects(t *testing.T) {
	srv, samplesDir := newTestServer(t)
	handler := srv.Handler()

	if err := os.WriteFile(filepath.Join(samplesDir, "acq.json"), []byte(testWorkspace), 0o644); err != nil {
		t.Fatalf("writing sample: %v", err)
	}
	effects := `{"effects": [{"name": "tag_reviewed", "property": "\"review_status\"", "value": "\"DONE\""}]}`
	if err := os.WriteFile(filepath.Join(samplesDir, "acq.effects.json"), []byte(effects), 0o644); err != nil {
		t.Fatalf("writing effects: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load?sample=acq", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RegisteredFunctions []struct {
			Name   string `json:"name"`
			Source string `json:"source"`
		} `json:"registered_functions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	found := false
	for _, fn := range resp.RegisteredFunctions {
		if fn.Name == "tag_reviewed" && fn.Source == "custom" {
			found = true
		}
	}
	if !found {
		t.Errorf("custom effect not registered: %+v", resp.RegisteredFunctions)
	}
}

func TestLoadWorkspaceBadUploadedEffects(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body, contentType := multipartBody(t, map[string]string{
		"file":        testWorkspace,
		"action_file": `{"effects": [{"name": "x", "property": "((", "value": "1"}]}`,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var resp apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Code != "CUSTOM_EFFECTS_ERROR" {
		t.Errorf("code = %q, want CUSTOM_EFFECTS_ERROR", resp.Error.Code)
	}
}

func TestSimulate(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	loadTestWorkspace(t, handler)

	reqBody := `{"action_id": "announce_acquisition", "node_id": "E_ACQ_101"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/simulate", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status     string   `json:"status"`
		RipplePath []string `json:"ripple_path"`
		Insights   []struct {
			Text string `json:"text"`
		} `json:"insights"`
		DeltaGraph struct {
			UpdatedNodes []map[string]any `json:"updated_nodes"`
		} `json:"delta_graph"`
		UpdatedGraphData struct {
			Nodes []struct {
				ID         string         `json:"id"`
				Properties map[string]any `json:"properties"`
			} `json:"nodes"`
		} `json:"updated_graph_data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}
	if len(resp.RipplePath) != 2 || resp.RipplePath[1] != "C_ALPHA" {
		t.Errorf("ripple_path = %v", resp.RipplePath)
	}
	if len(resp.Insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(resp.Insights))
	}
	if resp.Insights[0].Text != "Valuation of Alpha Corp moved to 7000000" {
		t.Errorf("insight = %q", resp.Insights[0].Text)
	}
	for _, node := range resp.UpdatedGraphData.Nodes {
		if node.ID == "C_ALPHA" && node.Properties["valuation"] != 7000000.0 {
			t.Errorf("updated graph valuation = %v, want 7000000", node.Properties["valuation"])
		}
	}
}

func TestSimulatePreconditions(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/simulate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// No workspace loaded yet.
	rec := post(`{"action_id": "announce_acquisition", "node_id": "E_ACQ_101"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no workspace: status = %d, want 400", rec.Code)
	}

	loadTestWorkspace(t, handler)

	if rec := post(`{"node_id": "E_ACQ_101"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing action_id: status = %d, want 400", rec.Code)
	}
	if rec := post(`{"action_id": "nope", "node_id": "E_ACQ_101"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action: status = %d, want 400", rec.Code)
	}
	if rec := post(`{"action_id": "announce_acquisition", "node_id": "NOPE"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown node: status = %d, want 400", rec.Code)
	}
}

func TestResetAndHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	// Reset without a workspace is a precondition failure.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/reset", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reset without workspace: status = %d, want 400", rec.Code)
	}

	loadTestWorkspace(t, handler)

	simBody := `{"action_id": "announce_acquisition", "node_id": "E_ACQ_101"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/simulate", strings.NewReader(simBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate: %d", rec.Code)
	}

	// The history body is a bare chronological array.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workspace/history", nil))
	var hist []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history = %d events, want 1", len(hist))
	}

	// Reset returns the full restored graph render, not an envelope.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/workspace/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: %d: %s", rec.Code, rec.Body.String())
	}
	var resetResp struct {
		Nodes []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"nodes"`
		Edges []map[string]any `json:"edges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resetResp); err != nil {
		t.Fatalf("decoding reset response: %v", err)
	}
	if len(resetResp.Nodes) != 3 || len(resetResp.Edges) != 2 {
		t.Fatalf("reset render = %d nodes, %d edges, want 3/2", len(resetResp.Nodes), len(resetResp.Edges))
	}
	for _, node := range resetResp.Nodes {
		if node.ID == "C_ALPHA" && node.Properties["valuation"] != 5000000.0 {
			t.Errorf("valuation after reset = %v, want 5000000", node.Properties["valuation"])
		}
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workspace/history", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("history after reset = %d events, want 0", len(hist))
	}
}

func TestSamplesListing(t *testing.T) {
	srv, samplesDir := newTestServer(t)
	handler := srv.Handler()

	if err := os.WriteFile(filepath.Join(samplesDir, "acq.json"), []byte(testWorkspace), 0o644); err != nil {
		t.Fatalf("writing sample: %v", err)
	}
	if err := os.WriteFile(filepath.Join(samplesDir, "acq.effects.json"), []byte(`{"effects":[]}`), 0o644); err != nil {
		t.Fatalf("writing effects: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workspace/samples", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// The body is a bare array of {name, description} entries.
	var samples []SampleInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &samples); err != nil {
		t.Fatalf("decoding samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %+v, want one (effects companion excluded)", samples)
	}
	if samples[0].Name != "acq" || samples[0].Description != "M&A ripple demo" {
		t.Errorf("sample = %+v", samples[0])
	}
}

func TestActionsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	loadTestWorkspace(t, handler)

	get := func(url string) []map[string]any {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: %d", url, rec.Code)
		}
		var resp struct {
			Actions []map[string]any `json:"actions"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding actions: %v", err)
		}
		return resp.Actions
	}

	if got := get("/api/v1/workspace/actions"); len(got) != 1 {
		t.Errorf("full catalog = %d actions, want 1", len(got))
	}
	if got := get("/api/v1/workspace/actions?node_id=E_ACQ_101"); len(got) != 1 {
		t.Errorf("event node actions = %d, want 1", len(got))
	}
	if got := get("/api/v1/workspace/actions?node_id=C_ALPHA"); len(got) != 0 {
		t.Errorf("company node actions = %d, want 0", len(got))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(ServerConfig{Engine: engine.New(), CORSOrigin: "https://flow.example.com"})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/workspace/simulate", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://flow.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORSDefaultIsDevOrigin(t *testing.T) {
	srv := NewServer(ServerConfig{Engine: engine.New()})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != DefaultCORSOrigin {
		t.Errorf("allow-origin = %q, want %q", got, DefaultCORSOrigin)
	}
}

func TestMaxBodyLimit(t *testing.T) {
	srv := NewServer(ServerConfig{Engine: engine.New(), MaxBody: 64})
	handler := srv.Handler()

	big := strings.Repeat("x", 256)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspace/simulate",
		strings.NewReader(`{"action_id": "`+big+`", "node_id": "n"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
