package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/config"
	"github.com/Bluesun-Networks/VOS/internal/storage"
)

func testServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "vos.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.AnthropicAPIKey = "test-key"
	s, err := NewServer(db, cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, db
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("health = %v", out)
	}
}

func TestServerRejectsUnknownProvider(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "vos.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	cfg := config.DefaultConfig()
	cfg.Provider = "mystery"
	if _, err := NewServer(db, cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestServerSeedsDefaultPersonas(t *testing.T) {
	s, _ := testServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/personas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		Personas []storage.Persona `json:"personas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Personas) != 3 {
		t.Errorf("got %d personas, want 3 defaults", len(out.Personas))
	}
}

func TestDocumentEndpoints(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/documents", map[string]string{
		"title":   "Design Proposal",
		"content": "line one\nline two\n",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var doc storage.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID == "" || doc.LineCount != 2 {
		t.Errorf("doc = %+v", doc)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/document/update", map[string]string{
		"id":      doc.ID,
		"content": "line one\nline two\nline three\n",
		"message": "expand",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/document?id="+doc.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var detail struct {
		Document *storage.Document         `json:"document"`
		Versions []storage.DocumentVersion `json:"versions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Document.Version != 2 || len(detail.Versions) != 2 {
		t.Errorf("detail = %+v", detail)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/document?id=nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing doc status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/documents", map[string]string{"content": "no title"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("untitled doc status = %d, want 400", rec.Code)
	}
}

func TestEnqueueEndpoint(t *testing.T) {
	s, db := testServer(t)
	h := s.Handler()
	doc, err := db.CreateDocument("Doc", "", "content\n")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/enqueue", map[string]any{
		"document_id": doc.ID,
		"trigger":     "ci",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue status = %d: %s", rec.Code, rec.Body)
	}
	var job storage.ReviewJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != storage.JobStatusQueued || job.Trigger != storage.TriggerCI {
		t.Errorf("job = %+v", job)
	}

	// Unknown document
	rec = doJSON(t, h, http.MethodPost, "/api/enqueue", map[string]any{"document_id": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown doc status = %d, want 404", rec.Code)
	}

	// Unknown persona rejected at enqueue time
	rec = doJSON(t, h, http.MethodPost, "/api/enqueue", map[string]any{
		"document_id": doc.ID,
		"persona_ids": []string{"ghost"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown persona status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/jobs?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("jobs status = %d", rec.Code)
	}
	var jobs struct {
		Jobs []storage.ReviewJob `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs.Jobs) != 1 || jobs.Jobs[0].DocumentTitle != "Doc" {
		t.Errorf("jobs = %+v", jobs.Jobs)
	}
}

func TestCancelJobEndpoint(t *testing.T) {
	s, db := testServer(t)
	h := s.Handler()
	doc, _ := db.CreateDocument("Doc", "", "content\n")
	job, err := db.EnqueueJob(doc.ID, nil, "", "", storage.TriggerManual)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/job/cancel", map[string]string{"id": job.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body)
	}

	got, _ := db.GetJob(job.ID)
	if got.Status != storage.JobStatusCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}

	// Second cancel: already terminal.
	rec = doJSON(t, h, http.MethodPost, "/api/job/cancel", map[string]string{"id": job.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("re-cancel status = %d, want 409", rec.Code)
	}
}

func TestGetReviewEndpoint(t *testing.T) {
	s, db := testServer(t)
	h := s.Handler()
	doc, _ := db.CreateDocument("Doc", "", "a\nb\nc\n")

	now := time.Now().UTC()
	verdict := storage.VerdictShipIt
	confidence := 1.0
	review := &storage.Review{
		ID:              "r1",
		DocumentID:      doc.ID,
		DocumentVersion: 1,
		PersonaIDs:      []string{"p1"},
		Status:          storage.ReviewCompleted,
		CreatedAt:       now,
		CompletedAt:     &now,
		MetaVerdict:     &verdict,
		MetaConfidence:  &confidence,
	}
	comments := []storage.Comment{
		{ID: "c1", ReviewID: "r1", PersonaID: "p1", PersonaName: "Critic", PersonaColor: "#ef4444",
			Content: "nit", StartLine: 1, EndLine: 1, Severity: storage.SeverityLow, CreatedAt: now},
	}
	if err := db.SaveReviewResult(review, comments, nil); err != nil {
		t.Fatalf("SaveReviewResult: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/review?id=r1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var detail struct {
		Review   *storage.Review   `json:"review"`
		Comments []storage.Comment `json:"comments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Review.MetaVerdict == nil || *detail.Review.MetaVerdict != storage.VerdictShipIt {
		t.Errorf("review = %+v", detail.Review)
	}
	if len(detail.Comments) != 1 {
		t.Errorf("comments = %+v", detail.Comments)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/review?id=missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing review status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	s.metrics.RecordReviewStart()
	s.metrics.RecordReviewComplete(2 * time.Second)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"reviews_started":1`) || !strings.Contains(body, `"reviews_completed":1`) {
		t.Errorf("metrics body = %s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodDelete, "/api/documents"},
		{http.MethodGet, "/api/enqueue"},
		{http.MethodGet, "/api/job/cancel"},
		{http.MethodPost, "/api/jobs"},
	} {
		rec := doJSON(t, h, tc.method, tc.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
}
