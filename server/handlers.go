package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/petal-labs/ontoflow/effects"
	"github.com/petal-labs/ontoflow/engine"
	"github.com/petal-labs/ontoflow/workspace"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadResponse is the body returned by a successful workspace load.
type loadResponse struct {
	Metadata            workspace.Metadata     `json:"metadata"`
	OntologyDef         workspace.OntologyDef  `json:"ontology_def"`
	GraphData           *engine.RenderGraph    `json:"graph_data"`
	Actions             []workspace.Action     `json:"actions"`
	RegisteredFunctions []effects.Registration `json:"registered_functions"`
	Warnings            []string               `json:"warnings"`
}

// handleLoad accepts a workspace document as a multipart file upload or by
// sample name, validates it, and loads it into the engine. An optional
// action_file part supplies a custom effect document.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var (
		data             []byte
		customDoc        []byte
		customFromUpload bool
	)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxBody); err != nil {
			if isMaxBytesError(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
			return
		}
		if file, _, err := r.FormFile("file"); err == nil {
			body, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				writeError(w, http.StatusBadRequest, "READ_ERROR", readErr.Error())
				return
			}
			data = body
		}
		if file, _, err := r.FormFile("action_file"); err == nil {
			body, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				writeError(w, http.StatusBadRequest, "READ_ERROR", readErr.Error())
				return
			}
			customDoc = body
			customFromUpload = true
		}
	}

	sample := r.URL.Query().Get("sample")
	if data == nil && sample != "" {
		if !validSampleName(sample) {
			writeError(w, http.StatusBadRequest, "PARSE_ERROR", fmt.Sprintf("invalid sample name %q", sample))
			return
		}
		body, err := os.ReadFile(filepath.Join(s.samplesDir, sample+".json"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "PARSE_ERROR", fmt.Sprintf("sample %q not found", sample))
			return
		}
		data = body
		if customDoc == nil {
			if doc, err := os.ReadFile(filepath.Join(s.samplesDir, sample+".effects.json")); err == nil {
				customDoc = doc
			}
		}
	}

	if data == nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", "no workspace provided: upload a file or pass ?sample=<name>")
		return
	}

	cfg, err := workspace.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	diags := cfg.Validate()
	if workspace.HasErrors(diags) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"workspace validation failed", diagMessages(workspace.Errors(diags))...)
		return
	}
	for _, warn := range workspace.Warnings(diags) {
		s.logger.Warn("workspace validation warning",
			"code", warn.Code, "path", warn.Path, "message", warn.Message)
	}

	result, err := s.engine.LoadWorkspace(cfg, customDoc)
	if err != nil {
		if customFromUpload {
			writeError(w, http.StatusBadRequest, "CUSTOM_EFFECTS_ERROR", err.Error())
			return
		}
		if customDoc != nil {
			// Convention-path effect document is best effort: log and
			// load without it.
			s.logger.Warn("sample effect document rejected", "sample", sample, "error", err)
			result, err = s.engine.LoadWorkspace(cfg, nil)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "LOAD_ERROR", err.Error())
			return
		}
	}

	for _, warning := range result.Warnings {
		s.logger.Warn("workspace load warning", "message", warning)
	}
	s.logger.Info("workspace loaded",
		"domain", cfg.Metadata.Domain,
		"nodes", len(cfg.GraphData.Nodes),
		"edges", len(cfg.GraphData.Edges),
		"actions", len(cfg.ActionEngine.Actions))

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, loadResponse{
		Metadata:            cfg.Metadata,
		OntologyDef:         cfg.OntologyDef,
		GraphData:           s.engine.GraphForRender(),
		Actions:             cfg.ActionEngine.Actions,
		RegisteredFunctions: result.RegisteredFunctions,
		Warnings:            warnings,
	})
}

// simulateRequest is the body accepted by the simulate endpoint.
type simulateRequest struct {
	ActionID string `json:"action_id"`
	NodeID   string `json:"node_id"`
}

// simulateResponse extends the engine result with the post-execution graph.
type simulateResponse struct {
	*engine.Result
	UpdatedGraphData *engine.RenderGraph `json:"updated_graph_data"`
}

// handleSimulate executes an action on a node and returns the delta, ripple
// path, insights, and the updated graph.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}
	if req.ActionID == "" || req.NodeID == "" {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", "action_id and node_id are required")
		return
	}

	result, err := s.engine.ExecuteAction(req.ActionID, req.NodeID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoWorkspace),
			errors.Is(err, engine.ErrUnknownAction),
			errors.Is(err, engine.ErrUnknownNode):
			writeError(w, http.StatusBadRequest, "PRECONDITION_FAILED", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		}
		return
	}

	s.logger.Info("action executed",
		"action_id", req.ActionID,
		"node_id", req.NodeID,
		"ripple_path", len(result.RipplePath),
		"insights", len(result.Insights))

	writeJSON(w, http.StatusOK, simulateResponse{
		Result:           result,
		UpdatedGraphData: s.engine.GraphForRender(),
	})
}

// handleReset restores the workspace to its load-time snapshot and returns
// the full restored graph render.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(); err != nil {
		if errors.Is(err, engine.ErrNoWorkspace) {
			writeError(w, http.StatusBadRequest, "PRECONDITION_FAILED", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "RESET_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.GraphForRender())
}

// handleHistory returns the execution log as a chronological array.
func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	history := s.engine.History()
	if history == nil {
		history = []engine.HistoryEvent{}
	}
	writeJSON(w, http.StatusOK, history)
}

// handleSamples returns the workspace documents available in the samples
// directory as an array of {name, description} entries.
func (s *Server) handleSamples(w http.ResponseWriter, _ *http.Request) {
	samples, err := listSamples(s.samplesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SAMPLES_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// handleActions returns the action catalog, filtered to one node when a
// node_id query parameter is present.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	actions := s.engine.AvailableActions(r.URL.Query().Get("node_id"))
	if actions == nil {
		actions = []workspace.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// --- helpers ---

func diagMessages(diags []workspace.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Path != "" {
			out = append(out, fmt.Sprintf("[%s] %s: %s", d.Code, d.Path, d.Message))
			continue
		}
		out = append(out, fmt.Sprintf("[%s] %s", d.Code, d.Message))
	}
	return out
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func validSampleName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}
