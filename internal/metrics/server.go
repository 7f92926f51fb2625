package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edvin/backupd/internal/model"
)

// StaleLister returns the containers whose backups are stale.
// *backup.StatusTracker satisfies this interface.
type StaleLister interface {
	ListStale(ctx context.Context) ([]model.BackupStatusEntry, error)
}

// NewServer creates an HTTP server serving /metrics (Prometheus) and /healthz.
// When stale is non-nil it also serves /healthz/backups, which answers 200
// with an empty list or 503 with the stale entries. b may be nil.
func NewServer(addr string, stale StaleLister, b *Backup) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if stale != nil {
		mux.Handle("/healthz/backups", BackupHealthHandler(stale, b))
	}

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

// BackupHealthHandler reports stale container backups as JSON.
func BackupHealthHandler(stale StaleLister, b *Backup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := stale.ListStale(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []model.BackupStatusEntry{}
		}
		if b != nil {
			b.SetStaleContainers(len(entries))
		}

		w.Header().Set("Content-Type", "application/json")
		if len(entries) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(entries)
	})
}
