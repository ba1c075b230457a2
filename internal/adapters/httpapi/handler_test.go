package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"claimdesk/internal/adapters/httpapi"
	"claimdesk/internal/core"
	blobmemory "claimdesk/internal/infra/blob/memory"
	"claimdesk/internal/infra/persistence/memory"
	"claimdesk/pkg/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(t *testing.T, rows domain.RowStore, maxDoc int64) *httpapi.Handler {
	t.Helper()
	svc := core.NewServices(rows, blobmemory.New(), maxDoc)
	return httpapi.NewHandler(svc, quietLogger(), nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload["error"]
}

type pushResponse struct {
	Message string           `json:"message"`
	Data    []map[string]any `json:"data"`
}

func TestContextPushThenConflict(t *testing.T) {
	h := newHandler(t, memory.NewStore(), 0)

	rec := do(t, h, http.MethodPost, "/contexts/push", `{"claim_id":"abc123","context":"hail damage"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp pushResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Context added" || len(resp.Data) != 1 || resp.Data[0]["claim_id"] != "abc123" {
		t.Fatalf("unexpected push response: %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/contexts/push", `{"claim_id":"abc123","context":"other"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "context already exists for this claim" {
		t.Fatalf("unexpected conflict message %q", msg)
	}

	rec = do(t, h, http.MethodGet, "/contexts/abc123", "")
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil || len(rows) != 1 || rows[0]["context"] != "hail damage" {
		t.Fatalf("expected one original row, got %s", rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/contexts", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "[") {
		t.Fatalf("unexpected list: %d %s", rec.Code, rec.Body.String())
	}
}

func TestWorkflowPushThenConflict(t *testing.T) {
	h := newHandler(t, memory.NewStore(), 0)
	body := `{"claim_id":"abc123","context":"c","analysis":"a","markdown":"# m"}`
	rec := do(t, h, http.MethodPost, "/workflows/push", body)
	var resp pushResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.Message != "Workflow added" || resp.Data[0]["markdown"] != "# m" {
		t.Fatalf("unexpected push: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/workflows/push", body)
	if rec.Code != http.StatusConflict || decodeError(t, rec) != "workflow already exists for this claim" {
		t.Fatalf("expected workflow conflict, got %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/workflows/abc123", "")
	if rec.Code != http.StatusOK || strings.Count(rec.Body.String(), `"claim_id"`) != 1 {
		t.Fatalf("expected one workflow row, got %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/workflows", ""); rec.Code != http.StatusOK {
		t.Fatalf("list workflows: %d", rec.Code)
	}
}

func TestPushValidation(t *testing.T) {
	h := newHandler(t, memory.NewStore(), 0)
	cases := []struct {
		name   string
		target string
		body   string
		status int
		want   string
	}{
		{"missing context", "/contexts/push", `{"claim_id":"x"}`, http.StatusUnprocessableEntity, "missing required fields: context"},
		{"missing workflow fields", "/workflows/push", `{"claim_id":"x","context":"c"}`, http.StatusUnprocessableEntity, "missing required fields: analysis, markdown"},
		{"blank claim", "/contexts/push", `{"claim_id":" ","context":"c"}`, http.StatusUnprocessableEntity, "claim_id"},
		{"bad json", "/contexts/push", `{"claim_id":`, http.StatusBadRequest, "invalid request body"},
		{"empty body", "/workflows/push", "", http.StatusBadRequest, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tc.target, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tc.want) {
				t.Fatalf("expected %q in %q", tc.want, msg)
			}
		})
	}
}

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c1", "c2", "c3"} {
		if _, err := store.Insert(context.Background(), domain.TableClaims, domain.Row{"id": id, "created_at": base.Add(time.Duration(i) * time.Hour), "status": "open"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestClaimRoutes(t *testing.T) {
	store := memory.NewStore()
	h := newHandler(t, store, 0)

	rec := do(t, h, http.MethodGet, "/claims/latest", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != "no claims found in database" {
		t.Fatalf("expected 404 on empty table, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/claims", ""); rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}

	seed(t, store)
	rec = do(t, h, http.MethodGet, "/claims/latest", "")
	var latest map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &latest); err != nil || latest["id"] != "c3" || latest["status"] != "open" {
		t.Fatalf("unexpected latest: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/claims/recent/2", "")
	var recent []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &recent); err != nil || len(recent) != 2 || recent[0]["id"] != "c3" || recent[1]["id"] != "c2" {
		t.Fatalf("unexpected recent: %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/claims/recent/many", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-integer count, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/claims/recent/0", ""); rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty list for zero count, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/claims/c1", "")
	var one []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil || len(one) != 1 || one[0]["id"] != "c1" {
		t.Fatalf("unexpected claim lookup: %s", rec.Body.String())
	}
}

type brokenStore struct{}

func (brokenStore) Select(context.Context, domain.Query) ([]domain.Row, error) {
	return nil, errors.New("relation \"claims\" does not exist")
}
func (brokenStore) Insert(context.Context, string, domain.Row) ([]domain.Row, error) {
	return nil, errors.New("insert failed")
}
func (brokenStore) Close() error { return nil }

func TestStoreFaultsAre500(t *testing.T) {
	h := newHandler(t, brokenStore{}, 0)
	cases := map[string]string{
		"/claims":          `relation "claims" does not exist`,
		"/claims/latest":   `failed to fetch latest claim: relation "claims" does not exist`,
		"/claims/recent/5": `failed to fetch recent claims: relation "claims" does not exist`,
		"/contexts":        `relation "claims" does not exist`,
	}
	for target, want := range cases {
		rec := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusInternalServerError || decodeError(t, rec) != want {
			t.Fatalf("%s: expected 500 %q, got %d %s", target, want, rec.Code, rec.Body.String())
		}
	}
	rec := do(t, h, http.MethodPost, "/contexts/push", `{"claim_id":"x","context":"c"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on push fault, got %d", rec.Code)
	}
}

func TestRoutingErrors(t *testing.T) {
	h := newHandler(t, memory.NewStore(), 0)
	if rec := do(t, h, http.MethodDelete, "/contexts", ""); rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "GET" {
		t.Fatalf("expected 405 with Allow, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
	if rec := do(t, h, http.MethodPut, "/claims/latest", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	for _, target := range []string{"/", "/nope", "/claims/recent/1/2", "/metrics"} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health: %d %s", rec.Code, rec.Body.String())
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, h http.Handler, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDocumentLifecycle(t *testing.T) {
	h := newHandler(t, memory.NewStore(), 16)

	rec := upload(t, h, "file", "invoice.pdf", []byte("%PDF-1.4"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if doc.Name != "invoice.pdf" || doc.Type != "application/pdf" || doc.Size != 8 || doc.URL != "/documents/"+doc.ID {
		t.Fatalf("unexpected document: %+v", doc)
	}

	rec = do(t, h, http.MethodGet, "/documents", "")
	var list []domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0].ID != doc.ID {
		t.Fatalf("unexpected list: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/documents/"+doc.ID, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF-1.4" || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected download: %d %q %v", rec.Code, rec.Body.String(), rec.Header())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "invoice.pdf") {
		t.Fatalf("expected filename in disposition, got %q", rec.Header().Get("Content-Disposition"))
	}

	if rec := do(t, h, http.MethodDelete, "/documents/"+doc.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/documents/"+doc.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/documents/"+doc.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 download, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/documents/"+doc.ID, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestDocumentUploadRejections(t *testing.T) {
	h := newHandler(t, memory.NewStore(), 16)
	if rec := upload(t, h, "file", "notes.txt", []byte("hi")); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
	if rec := upload(t, h, "file", "big.png", bytes.Repeat([]byte("x"), 17)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if rec := upload(t, h, "attachment", "a.pdf", []byte("x")); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without file field, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/documents", `{"file":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", rec.Code)
	}
}

func TestDocumentsUnconfigured(t *testing.T) {
	h := httpapi.NewHandler(core.NewServices(memory.NewStore(), nil, 0), quietLogger(), nil)
	if rec := do(t, h, http.MethodGet, "/documents", ""); rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/documents/x.pdf", ""); rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}
