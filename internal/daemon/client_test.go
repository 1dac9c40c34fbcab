package daemon

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/storage"
)

func testClient(t *testing.T) (*Client, *Server, *storage.DB) {
	t.Helper()
	s, db := testServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return NewClient(strings.TrimPrefix(ts.URL, "http://")), s, db
}

func TestClientRoundTrip(t *testing.T) {
	c, _, _ := testClient(t)

	if !c.IsAlive() {
		t.Fatal("IsAlive = false against running server")
	}

	doc, err := c.CreateDocument("Doc", "desc", "one\ntwo\n")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.LineCount != 2 {
		t.Errorf("doc = %+v", doc)
	}

	docs, err := c.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("docs = %+v", docs)
	}

	updated, err := c.UpdateDocument(doc.ID, "one\ntwo\nthree\n", "more")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}

	got, versions, err := c.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Version != 2 || len(versions) != 2 {
		t.Errorf("doc=%+v versions=%+v", got, versions)
	}

	personas, err := c.ListPersonas(false)
	if err != nil {
		t.Fatalf("ListPersonas: %v", err)
	}
	if len(personas) != 3 {
		t.Errorf("got %d personas, want 3 defaults", len(personas))
	}

	job, err := c.Enqueue(doc.ID, []string{personas[0].ID}, storage.TriggerManual)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != storage.JobStatusQueued {
		t.Errorf("job = %+v", job)
	}

	jobs, err := c.ListJobs(10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("jobs = %+v", jobs)
	}

	if err := c.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	st, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Jobs[storage.JobStatusCanceled] != 1 {
		t.Errorf("status = %+v", st)
	}

	if _, err := c.GetMetrics(); err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
}

func TestClientErrorsCarryServerMessage(t *testing.T) {
	c, _, _ := testClient(t)
	_, _, err := c.GetDocument("missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want server message", err)
	}
}

func TestClientIsAliveWhenDown(t *testing.T) {
	c := NewClient("127.0.0.1:1") // nothing listens here
	if c.IsAlive() {
		t.Error("IsAlive = true against dead address")
	}
}

func TestClientStreamEvents(t *testing.T) {
	c, s, _ := testClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.StreamEvents(ctx, "", func(e Event) {
			select {
			case got <- e:
			default:
			}
		})
	}()

	// Wait for the subscription to land before broadcasting.
	deadline := time.Now().Add(5 * time.Second)
	for s.Broadcaster().SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Broadcaster().Broadcast(Event{
		Type:       EventReviewCompleted,
		TS:         time.Now(),
		JobID:      "j1",
		DocumentID: "d1",
		Verdict:    "ship_it",
	})

	select {
	case e := <-got:
		if e.Type != EventReviewCompleted || e.Verdict != "ship_it" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("streamed event never arrived")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			// A closed connection is also an acceptable way out.
			t.Logf("stream ended with: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
}
