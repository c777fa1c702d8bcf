package buffer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/metrics"
)

// maxDequeueBatch bounds batch_size on /dequeue.
const maxDequeueBatch = 256

type configRequest struct {
	Policy *string `json:"policy"`
}

// NewHandler exposes replay over HTTP:
//
//	GET  /healthz
//	GET  /stats
//	GET  /config, POST /config {"policy": "fifo"|"freshness"}
//	POST /enqueue  EnqueueRequest   → 202, or 429 if anything was dropped
//	GET  /dequeue?batch_size=n      → DequeueResponse, or 204 when empty
//	GET  /metrics
func NewHandler(replay *ReplayBuffer, logger *logrus.Logger) http.Handler {
	if logger == nil {
		logger = logrus.New()
	}
	h := &handler{replay: replay, log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", h.stats)
	mux.HandleFunc("/config", h.config)
	mux.HandleFunc("/enqueue", h.enqueue)
	mux.HandleFunc("/dequeue", h.dequeue)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type handler struct {
	replay *ReplayBuffer
	log    *logrus.Logger
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.replay.Stats())
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{
			"policy":   h.replay.Policy(),
			"capacity": h.replay.Capacity(),
		})
	case http.MethodPost:
		var req configRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Policy != nil {
			if err := h.replay.SetPolicy(*req.Policy); err != nil {
				h.log.WithError(err).Warn("rejected policy change")
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			h.log.WithField("policy", *req.Policy).Info("dequeue policy changed")
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	now := time.Now()

	var dropped int
	for _, traj := range req.Trajectories {
		if err := h.replay.Enqueue(Item{Trajectory: traj, EnqueuedAt: now}); err != nil {
			dropped++
			continue
		}
		metrics.Enqueued.Inc()
	}
	metrics.QueueLength.Set(float64(h.replay.Size()))

	if dropped > 0 {
		metrics.Dropped.Add(float64(dropped))
		h.log.WithFields(logrus.Fields{
			"dropped":  dropped,
			"received": len(req.Trajectories),
		}).Warn("replay queue full")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) dequeue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	batchSize := 1
	if value := r.URL.Query().Get("batch_size"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			batchSize = parsed
		}
	}
	if batchSize > maxDequeueBatch {
		batchSize = maxDequeueBatch
	}

	items, err := h.replay.DequeueBatch(batchSize)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	metrics.Dequeued.Add(float64(len(items)))
	metrics.QueueLength.Set(float64(h.replay.Size()))

	response := DequeueResponse{Trajectories: make([]Trajectory, 0, len(items))}
	for _, item := range items {
		response.Trajectories = append(response.Trajectories, item.Trajectory)
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
