// Package httpapi serves the claimdesk JSON API over net/http.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claimdesk/internal/core"
	"claimdesk/pkg/domain"
)

const maxJSONBody = 1 << 20

// Handler serves the API routes against the core services.
type Handler struct {
	Services core.Services
	Logger   *slog.Logger
	metrics  http.Handler
}

// NewHandler constructs the API handler. A nil gatherer leaves /metrics unrouted.
func NewHandler(svc core.Services, logger *slog.Logger, gatherer prometheus.Gatherer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{Services: svc, Logger: logger}
	if gatherer != nil {
		h.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, param := match(r.Method, r.URL.Path)
	switch route {
	case RouteContexts:
		if !allow(w, r, http.MethodGet) {
			return
		}
		rows, err := h.Services.Contexts.GetAll(r.Context())
		respondList(h, w, r, rows, err)
	case RouteContextByClaim:
		if !allow(w, r, http.MethodGet) {
			return
		}
		rows, err := h.Services.Contexts.GetByClaim(r.Context(), param)
		respondList(h, w, r, rows, err)
	case RouteContextPush:
		h.handleContextPush(w, r)
	case RouteWorkflows:
		if !allow(w, r, http.MethodGet) {
			return
		}
		rows, err := h.Services.Workflows.GetAll(r.Context())
		respondList(h, w, r, rows, err)
	case RouteWorkflowClaim:
		if !allow(w, r, http.MethodGet) {
			return
		}
		rows, err := h.Services.Workflows.GetByClaim(r.Context(), param)
		respondList(h, w, r, rows, err)
	case RouteWorkflowPush:
		h.handleWorkflowPush(w, r)
	case RouteClaims:
		if !allow(w, r, http.MethodGet) {
			return
		}
		rows, err := h.Services.Claims.GetAll(r.Context())
		respondList(h, w, r, rows, err)
	case RouteClaimLatest:
		if !allow(w, r, http.MethodGet) {
			return
		}
		claim, err := h.Services.Claims.GetLatest(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claim)
	case RouteClaimRecent:
		if !allow(w, r, http.MethodGet) {
			return
		}
		count, err := strconv.Atoi(param)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "count must be an integer")
			return
		}
		rows, err := h.Services.Claims.GetRecent(r.Context(), count)
		respondList(h, w, r, rows, err)
	case RouteClaimByID:
		if !allow(w, r, http.MethodGet) {
			return
		}
		rows, err := h.Services.Claims.GetByID(r.Context(), param)
		respondList(h, w, r, rows, err)
	case RouteDocuments:
		h.handleDocuments(w, r)
	case RouteDocumentByID:
		h.handleDocument(w, r, param)
	case RouteHealth:
		if !allow(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case RouteMetrics:
		if h.metrics == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.metrics.ServeHTTP(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type contextPush struct {
	ClaimID *string `json:"claim_id"`
	Context *string `json:"context"`
}

type workflowPush struct {
	ClaimID  *string `json:"claim_id"`
	Context  *string `json:"context"`
	Analysis *string `json:"analysis"`
	Markdown *string `json:"markdown"`
}

type pushResponse[T any] struct {
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

func (h *Handler) handleContextPush(w http.ResponseWriter, r *http.Request) {
	var body contextPush
	if !decodeBody(w, r, &body) {
		return
	}
	if missing := missingFields(field{"claim_id", body.ClaimID}, field{"context", body.Context}); len(missing) > 0 {
		h.writeServiceError(w, r, domain.ValidationError{Fields: missing})
		return
	}
	rows, err := h.Services.Contexts.Register(r.Context(), core.ContextInput{ClaimID: *body.ClaimID, Context: *body.Context})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pushResponse[domain.ClaimContext]{Message: "Context added", Data: rows})
}

func (h *Handler) handleWorkflowPush(w http.ResponseWriter, r *http.Request) {
	var body workflowPush
	if !decodeBody(w, r, &body) {
		return
	}
	missing := missingFields(
		field{"claim_id", body.ClaimID},
		field{"context", body.Context},
		field{"analysis", body.Analysis},
		field{"markdown", body.Markdown},
	)
	if len(missing) > 0 {
		h.writeServiceError(w, r, domain.ValidationError{Fields: missing})
		return
	}
	rows, err := h.Services.Workflows.Register(r.Context(), core.WorkflowInput{
		ClaimID:  *body.ClaimID,
		Context:  *body.Context,
		Analysis: *body.Analysis,
		Markdown: *body.Markdown,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pushResponse[domain.ClaimWorkflow]{Message: "Workflow added", Data: rows})
}

func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.Services.Documents
	if docs == nil {
		writeError(w, http.StatusNotImplemented, "document storage not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := docs.List(r.Context())
		respondList(h, w, r, list, err)
	case http.MethodPost:
		h.handleUpload(w, r, docs)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, docs *core.DocumentService) {
	// Multipart framing gets a little room beyond the file limit.
	r.Body = http.MaxBytesReader(w, r.Body, docs.MaxSize()+maxJSONBody)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			h.writeServiceError(w, r, domain.ValidationError{Fields: []string{"file"}})
			return
		}
		if err != nil {
			h.writeUploadError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		doc, err := docs.Upload(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.writeUploadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
		return
	}
}

func (h *Handler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		err = domain.ErrDocumentTooLarge
	}
	h.writeServiceError(w, r, err)
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request, id string) {
	docs := h.Services.Documents
	if docs == nil {
		writeError(w, http.StatusNotImplemented, "document storage not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, body, err := docs.Open(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		defer body.Close()
		if doc.Type != "" {
			w.Header().Set("Content-Type", doc.Type)
		}
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Name}))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			h.Logger.WarnContext(r.Context(), "document stream interrupted", "id", id, "request_id", RequestID(r.Context()), "error", err)
		}
	case http.MethodDelete:
		if err := docs.Remove(r.Context(), id); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func respondList[T any](h *Handler, w http.ResponseWriter, r *http.Request, rows []T, err error) {
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []T{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict   domain.ConflictError
		notFound   domain.NotFoundError
		validation domain.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDocumentTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrDocumentType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		h.Logger.ErrorContext(r.Context(), "request failed",
			"route", RouteOf(r), "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type field struct {
	name  string
	value *string
}

func missingFields(fields ...field) []string {
	var missing []string
	for _, f := range fields {
		if f.value == nil {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body required")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if slices.Contains(methods, r.Method) {
		return true
	}
	methodNotAllowed(w, methods...)
	return false
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
