package buffer

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func newTestServer(t *testing.T, capacity int) (*httptest.Server, *ReplayBuffer) {
	t.Helper()
	rb, err := NewReplayBuffer(capacity, "fifo")
	if err != nil {
		t.Fatal(err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := httptest.NewServer(NewHandler(rb, logger))
	t.Cleanup(srv.Close)
	return srv, rb
}

func post(t *testing.T, url string, payload any) int {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestHandlerEnqueueDequeue(t *testing.T) {
	srv, rb := newTestServer(t, 2)

	status := post(t, srv.URL+"/enqueue", EnqueueRequest{Trajectories: []Trajectory{traj("a"), traj("b")}})
	if status != http.StatusAccepted {
		t.Fatalf("enqueue status %d", status)
	}
	status = post(t, srv.URL+"/enqueue", EnqueueRequest{Trajectories: []Trajectory{traj("c")}})
	if status != http.StatusTooManyRequests {
		t.Fatalf("enqueue into full queue: status %d", status)
	}
	if rb.Size() != 2 {
		t.Fatalf("size = %d", rb.Size())
	}

	resp, err := http.Get(srv.URL + "/dequeue?batch_size=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got DequeueResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := DequeueResponse{Trajectories: []Trajectory{traj("a"), traj("b")}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	empty, err := http.Get(srv.URL + "/dequeue")
	if err != nil {
		t.Fatal(err)
	}
	empty.Body.Close()
	if empty.StatusCode != http.StatusNoContent {
		t.Errorf("empty dequeue status %d", empty.StatusCode)
	}
}

func TestHandlerConfigAndStats(t *testing.T) {
	srv, _ := newTestServer(t, 4)

	if status := post(t, srv.URL+"/config", map[string]string{"policy": "freshness"}); status != http.StatusNoContent {
		t.Fatalf("config status %d", status)
	}
	if status := post(t, srv.URL+"/config", map[string]string{"policy": "nope"}); status != http.StatusBadRequest {
		t.Fatalf("bad config status %d", status)
	}

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Stats{Capacity: 4, Policy: PolicyFreshness}, stats); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestHandlerMethodsAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	resp, err := http.Get(srv.URL + "/enqueue")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /enqueue status %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/enqueue", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed enqueue status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dreamer_buffer_queue_length") {
		t.Error("metrics output lacks the queue length gauge")
	}
}
