package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/config"
	"github.com/Bluesun-Networks/VOS/internal/metrics"
	"github.com/Bluesun-Networks/VOS/internal/persona"
	"github.com/Bluesun-Networks/VOS/internal/provider"
	"github.com/Bluesun-Networks/VOS/internal/review"
	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/Bluesun-Networks/VOS/internal/version"
)

// Server is the daemon's HTTP API.
type Server struct {
	db          *storage.DB
	cfg         *config.Config
	registry    *persona.Registry
	broadcaster Broadcaster
	workerPool  *WorkerPool
	metrics     *metrics.Store
	httpServer  *http.Server
	archiver    *storage.Archiver
	startTime   time.Time
}

// NewServer wires the daemon: provider, orchestrator, worker pool, and
// HTTP routes.
func NewServer(db *storage.DB, cfg *config.Config) (*Server, error) {
	registry := persona.NewRegistry(db)
	if n, err := registry.SeedDefaults(); err != nil {
		return nil, fmt.Errorf("seed default personas: %w", err)
	} else if n > 0 {
		log.Printf("Seeded %d default personas", n)
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	invoker := review.NewInvoker(gen)
	if cfg.PersonaTimeoutSeconds > 0 {
		invoker.Timeout = time.Duration(cfg.PersonaTimeoutSeconds) * time.Second
	}

	var archiver *storage.Archiver
	if cfg.ArchiveURL != "" {
		archiver, err = storage.NewArchiver(context.Background(), cfg.ArchiveURL)
		if err != nil {
			// The archive is off the review path; run without it.
			log.Printf("Warning: archive unavailable: %v", err)
			archiver = nil
		}
	}

	store := metrics.NewStore()
	orch := review.NewOrchestrator(db, registry, invoker, db, store)
	broadcaster := NewBroadcaster()

	s := &Server{
		db:          db,
		cfg:         cfg,
		registry:    registry,
		broadcaster: broadcaster,
		workerPool:  NewWorkerPool(db, orch, cfg.MaxWorkers, broadcaster, archiver),
		metrics:     store,
		archiver:    archiver,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/document", s.handleGetDocument)
	mux.HandleFunc("/api/document/update", s.handleUpdateDocument)
	mux.HandleFunc("/api/personas", s.handlePersonas)
	mux.HandleFunc("/api/persona/active", s.handlePersonaActive)
	mux.HandleFunc("/api/enqueue", s.handleEnqueue)
	mux.HandleFunc("/api/jobs", s.handleListJobs)
	mux.HandleFunc("/api/job/cancel", s.handleCancelJob)
	mux.HandleFunc("/api/review", s.handleGetReview)
	mux.HandleFunc("/api/reviews", s.handleListReviews)
	mux.HandleFunc("/api/stream/events", s.handleStreamEvents)

	s.httpServer = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: mux,
	}
	return s, nil
}

// newGenerator builds the configured provider backend.
func newGenerator(cfg *config.Config) (provider.Generator, error) {
	switch cfg.Provider {
	case "", "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (set anthropic_api_key or ANTHROPIC_API_KEY)")
		}
		return provider.NewAnthropic(cfg.AnthropicAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Broadcaster exposes the event broadcaster.
func (s *Server) Broadcaster() Broadcaster {
	return s.broadcaster
}

// Start resets stale jobs, starts the worker pool, and serves HTTP
// until the server is stopped.
func (s *Server) Start() error {
	if n, err := s.db.ResetStaleJobs(); err != nil {
		log.Printf("Warning: failed to reset stale jobs: %v", err)
	} else if n > 0 {
		log.Printf("Re-queued %d stale job(s)", n)
	}

	s.workerPool.Start()

	log.Printf("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		s.workerPool.Stop()
		return err
	}
	return nil
}

// Stop gracefully shuts down the server and worker pool.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	s.workerPool.Stop()
	if s.archiver != nil {
		s.archiver.Close()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// httpStatus maps storage errors onto response codes.
func httpStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.CountJobsByStatus()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        version.Version,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"active_workers": s.workerPool.ActiveWorkers(),
		"max_workers":    s.workerPool.MaxWorkers(),
		"jobs":           counts,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.db.ListDocuments()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})

	case http.MethodPost:
		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Content     string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		doc, err := s.db.CreateDocument(req.Title, req.Description, req.Content)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, doc)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	doc, err := s.db.GetDocument(id)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	versions, err := s.db.ListDocumentVersions(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"versions": versions,
	})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := s.db.UpdateDocument(req.ID, req.Content, req.Message)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var (
			personas []storage.Persona
			err      error
		)
		if r.URL.Query().Get("all") == "1" {
			personas, err = s.registry.List()
		} else {
			personas, err = s.registry.ListActive()
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"personas": personas})

	case http.MethodPost:
		var p storage.Persona
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.db.SavePersona(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, p)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePersonaActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.registry.SetActive(req.ID, req.Active); err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		DocumentID string   `json:"document_id"`
		PersonaIDs []string `json:"persona_ids"`
		Trigger    string   `json:"trigger"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "Missing document_id", http.StatusBadRequest)
		return
	}

	// Reject unknown personas at enqueue time rather than when a worker
	// picks the job up.
	if _, err := s.registry.Resolve(req.PersonaIDs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.db.EnqueueJob(req.DocumentID, req.PersonaIDs,
		s.cfg.Provider, s.cfg.Model, storage.Trigger(req.Trigger))
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	jobs, err := s.db.ListJobs(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Flip the row first so a not-yet-claimed job never runs, then
	// interrupt the worker if one already claimed it.
	changed, err := s.db.CancelJob(req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	interrupted := s.workerPool.CancelJob(req.ID)
	if !changed && !interrupted {
		http.Error(w, "Job not found or already finished", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	rev, err := s.db.GetReview(id)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	comments, err := s.db.GetComments(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metaComments, err := s.db.GetMetaComments(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"review":        rev,
		"comments":      comments,
		"meta_comments": metaComments,
	})
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		http.Error(w, "Missing document_id parameter", http.StatusBadRequest)
		return
	}
	limit := 0
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	reviews, err := s.db.ListReviews(documentID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

// handleStreamEvents streams review events as newline-delimited JSON
// until the client disconnects.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	documentID := r.URL.Query().Get("document_id")
	id, ch := s.broadcaster.Subscribe(documentID)
	defer s.broadcaster.Unsubscribe(id)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
