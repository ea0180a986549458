package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"vibewidget/internal/artifact"
	"vibewidget/internal/host"
	"vibewidget/internal/orchestrator"
	"vibewidget/internal/store"
)

// Auditor is implemented by backends that can list review reports (the disk
// store); others simply don't expose the endpoint.
type Auditor interface {
	ListAudits(artifactID string) ([]artifact.AuditReport, error)
}

type API struct {
	store   store.Store
	orch    *orchestrator.Orchestrator
	host    *host.Host
	auditor Auditor
}

func NewAPI(st store.Store, orch *orchestrator.Orchestrator, h *host.Host, auditor Auditor) *API {
	return &API{store: st, orch: orch, host: h, auditor: auditor}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/widgets/generate", a.handleGenerate)
	mux.HandleFunc("POST /v1/widgets/revise", a.handleRevise)
	mux.HandleFunc("GET /v1/widgets/{ref}", a.handleGetWidget)
	mux.HandleFunc("GET /v1/widgets/{id}/components/{name}", a.handleGetComponent)
	mux.HandleFunc("GET /v1/widgets/{id}/audits", a.handleListAudits)
	mux.HandleFunc("POST /v1/instances", a.handleMount)
	mux.HandleFunc("GET /ws/session", a.handleSessionWS)
	return CORS(mux)
}

type generateRequest struct {
	Description string               `json:"description"`
	Data        artifact.DataContext `json:"data"`
	Theme       string               `json:"theme,omitempty"`
}

type widgetResponse struct {
	*artifact.Artifact
	Code string `json:"code"`
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var in generateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Description) == "" {
		http.Error(w, "description is required", http.StatusBadRequest)
		return
	}
	art, err := a.orch.Generate(r.Context(), in.Description, in.Data, in.Theme)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, widgetResponse{Artifact: art, Code: art.Code})
}

type reviseRequest struct {
	Description string               `json:"description"`
	Data        artifact.DataContext `json:"data"`
	Theme       string               `json:"theme,omitempty"`
	Source      reviseSource         `json:"source"`
}

// reviseSource is the wire shape of the tagged source union: exactly one
// field should be set.
type reviseSource struct {
	ArtifactRef string `json:"artifactRef,omitempty"`
	Component   *struct {
		ArtifactID string `json:"artifactId"`
		Name       string `json:"name"`
	} `json:"component,omitempty"`
	Code string `json:"code,omitempty"`
	Path string `json:"path,omitempty"`
}

func (a *API) handleRevise(w http.ResponseWriter, r *http.Request) {
	var in reviseRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Description) == "" {
		http.Error(w, "description is required", http.StatusBadRequest)
		return
	}
	src, err := a.resolveWireSource(r, in.Source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	art, err := a.orch.Revise(r.Context(), in.Description, src, in.Data, in.Theme)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, widgetResponse{Artifact: art, Code: art.Code})
}

func (a *API) resolveWireSource(r *http.Request, in reviseSource) (orchestrator.Source, error) {
	switch {
	case in.Component != nil:
		ref, err := a.store.ResolveComponent(r.Context(), in.Component.ArtifactID, in.Component.Name)
		if err != nil {
			return nil, err
		}
		return orchestrator.ComponentSource{Ref: ref}, nil
	case strings.TrimSpace(in.ArtifactRef) != "":
		return orchestrator.IDSource{Ref: in.ArtifactRef}, nil
	case strings.TrimSpace(in.Code) != "":
		return orchestrator.CodeSource{Code: in.Code}, nil
	case strings.TrimSpace(in.Path) != "":
		return orchestrator.PathSource{Path: in.Path}, nil
	default:
		return nil, errors.New("source requires one of artifactRef, component, code, path")
	}
}

func (a *API) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	art, code, err := a.store.LoadByID(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, widgetResponse{Artifact: art, Code: code})
}

func (a *API) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	ref, err := a.store.ResolveComponent(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"artifactId":    ref.ArtifactID,
		"componentName": ref.ComponentName,
		"alias":         artifact.ComponentAlias(ref.ComponentName),
		"components":    ref.Components,
		"code":          ref.Code,
	})
}

func (a *API) handleListAudits(w http.ResponseWriter, r *http.Request) {
	if a.auditor == nil {
		http.Error(w, "audit listing not supported by this store backend", http.StatusNotImplemented)
		return
	}
	reports, err := a.auditor.ListAudits(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"artifact_id": r.PathValue("id"), "audits": reports})
}

type mountRequest struct {
	ArtifactRef string                       `json:"artifactRef"`
	Data        artifact.DataContext         `json:"data"`
	Imports     map[string]host.ImportSource `json:"imports,omitempty"`
}

func (a *API) handleMount(w http.ResponseWriter, r *http.Request) {
	var in mountRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	art, _, err := a.store.LoadByID(r.Context(), in.ArtifactRef)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	inst, err := a.host.Mount(art, in.Data, in.Imports)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, inst.State())
}

func writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrGenerationUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, orchestrator.ErrRetriesExhausted):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		writeStoreError(w, err)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrUnknownComponent):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrSourceUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
