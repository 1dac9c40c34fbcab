package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/metrics"
	"github.com/Bluesun-Networks/VOS/internal/storage"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// IsAlive reports whether the daemon responds to a health check.
func (c *Client) IsAlive() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(c.baseURL + "/api/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon: %s", strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status is the daemon's status report.
type Status struct {
	Version       string                    `json:"version"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	ActiveWorkers int                       `json:"active_workers"`
	MaxWorkers    int                       `json:"max_workers"`
	Jobs          map[storage.JobStatus]int `json:"jobs"`
}

// GetStatus returns the daemon status.
func (c *Client) GetStatus() (*Status, error) {
	var st Status
	if err := c.get("/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetMetrics returns the daemon's review metrics.
func (c *Client) GetMetrics() (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.get("/api/metrics", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CreateDocument uploads a new document.
func (c *Client) CreateDocument(title, description, content string) (*storage.Document, error) {
	var doc storage.Document
	err := c.post("/api/documents", map[string]string{
		"title":       title,
		"description": description,
		"content":     content,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all documents (without content).
func (c *Client) ListDocuments() ([]storage.Document, error) {
	var out struct {
		Documents []storage.Document `json:"documents"`
	}
	if err := c.get("/api/documents", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// GetDocument returns a document with its version history.
func (c *Client) GetDocument(id string) (*storage.Document, []storage.DocumentVersion, error) {
	var out struct {
		Document *storage.Document         `json:"document"`
		Versions []storage.DocumentVersion `json:"versions"`
	}
	if err := c.get("/api/document?id="+url.QueryEscape(id), &out); err != nil {
		return nil, nil, err
	}
	return out.Document, out.Versions, nil
}

// UpdateDocument writes new content as the next document version.
func (c *Client) UpdateDocument(id, content, message string) (*storage.Document, error) {
	var doc storage.Document
	err := c.post("/api/document/update", map[string]string{
		"id":      id,
		"content": content,
		"message": message,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListPersonas returns personas; all includes inactive ones.
func (c *Client) ListPersonas(all bool) ([]storage.Persona, error) {
	path := "/api/personas"
	if all {
		path += "?all=1"
	}
	var out struct {
		Personas []storage.Persona `json:"personas"`
	}
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out.Personas, nil
}

// SavePersona creates or updates a persona.
func (c *Client) SavePersona(p *storage.Persona) error {
	return c.post("/api/personas", p, p)
}

// SetPersonaActive flips a persona's active flag.
func (c *Client) SetPersonaActive(id string, active bool) error {
	return c.post("/api/persona/active", map[string]any{
		"id":     id,
		"active": active,
	}, nil)
}

// Enqueue queues a review job for a document.
func (c *Client) Enqueue(documentID string, personaIDs []string, trigger storage.Trigger) (*storage.ReviewJob, error) {
	var job storage.ReviewJob
	err := c.post("/api/enqueue", map[string]any{
		"document_id": documentID,
		"persona_ids": personaIDs,
		"trigger":     string(trigger),
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns recent jobs, newest first.
func (c *Client) ListJobs(limit int) ([]storage.ReviewJob, error) {
	var out struct {
		Jobs []storage.ReviewJob `json:"jobs"`
	}
	if err := c.get(fmt.Sprintf("/api/jobs?limit=%d", limit), &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// CancelJob cancels a queued or running job.
func (c *Client) CancelJob(id string) error {
	return c.post("/api/job/cancel", map[string]string{"id": id}, nil)
}

// ReviewDetail is a review with its comments and meta-comments.
type ReviewDetail struct {
	Review       *storage.Review       `json:"review"`
	Comments     []storage.Comment     `json:"comments"`
	MetaComments []storage.MetaComment `json:"meta_comments"`
}

// GetReview returns a review with all its comments.
func (c *Client) GetReview(id string) (*ReviewDetail, error) {
	var detail ReviewDetail
	if err := c.get("/api/review?id="+url.QueryEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListReviews returns a document's reviews, newest first.
func (c *Client) ListReviews(documentID string, limit int) ([]storage.Review, error) {
	var out struct {
		Reviews []storage.Review `json:"reviews"`
	}
	path := fmt.Sprintf("/api/reviews?document_id=%s&limit=%d", url.QueryEscape(documentID), limit)
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

// StreamEvents subscribes to the daemon's event stream and delivers
// events to fn until ctx is done or the stream closes.
func (c *Client) StreamEvents(ctx context.Context, documentID string, fn func(Event)) error {
	path := c.baseURL + "/api/stream/events"
	if documentID != "" {
		path += "?document_id=" + url.QueryEscape(documentID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	// Streaming connection: no client timeout.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon: %s", strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		fn(event)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}
