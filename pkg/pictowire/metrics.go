package pictowire

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/pictowire/pictowire/pkg/journal"
)

// ServeMetrics starts a local HTTP server exposing process and protocol
// counters at /metrics in Prometheus text format, plus, if j is non-nil, a
// /debug/journal endpoint listing recent journal rows as JSON. It runs
// until ctx is done.
func ServeMetrics(ctx context.Context, addr string, j *journal.DB) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-cache, no-store")
		metrics.WriteProcessMetrics(w)
		metrics.WritePrometheus(w, false)
	})

	if j != nil {
		mux.HandleFunc("/debug/journal", func(w http.ResponseWriter, r *http.Request) {
			recs, err := j.Recent(r.Context(), 100)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(recs)
		})
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
