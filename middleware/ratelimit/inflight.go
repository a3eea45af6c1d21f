package ratelimit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"vault-gateway/middleware/ratelimit/domain"
)

type inFlightRequest struct {
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Start   time.Time `json:"start"`
	Elapsed string    `json:"elapsed"`
}

type inFlightResponse struct {
	Capacity int               `json:"capacity"`
	InFlight []inFlightRequest `json:"in_flight"`
}

type evictResponse struct {
	Evicted int `json:"evicted"`
}

// InFlightHandler expõe as vagas ocupadas do limite de concorrência. log pode
// ser o valor zero.
//
//	GET            lista as requisições em andamento
//	DELETE ?key=K  libera todas as vagas da chave K
func InFlightHandler(tracker domain.InFlightTracker, log logr.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			now := time.Now()
			reqs := tracker.InFlight()
			resp := inFlightResponse{
				Capacity: tracker.Capacity(),
				InFlight: make([]inFlightRequest, 0, len(reqs)),
			}
			for _, req := range reqs {
				resp.InFlight = append(resp.InFlight, inFlightRequest{
					ID:      req.ID,
					Key:     string(req.Key),
					Method:  req.Method,
					Path:    req.Path,
					Start:   req.Start,
					Elapsed: now.Sub(req.Start).Round(time.Millisecond).String(),
				})
			}
			writeJSON(w, http.StatusOK, resp, log)

		case http.MethodDelete:
			key := strings.TrimSpace(r.URL.Query().Get("key"))
			if key == "" {
				http.Error(w, "missing key", http.StatusBadRequest)
				return
			}
			n := tracker.Evict(domain.Key(key))
			writeJSON(w, http.StatusOK, evictResponse{Evicted: n}, log)

		default:
			w.Header().Set("Allow", "GET, DELETE")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any, log logr.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "failed to write admin response")
	}
}
