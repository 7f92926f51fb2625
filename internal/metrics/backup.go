package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/edvin/backupd/internal/model"
)

// Backup exports nightly backup, retention and verification outcomes.
type Backup struct {
	containerResults    *prometheus.CounterVec
	archiveSize         prometheus.Histogram
	retentionObjects    *prometheus.CounterVec
	retentionErrors     prometheus.Counter
	verificationResults *prometheus.CounterVec
	staleContainers     prometheus.Gauge
}

// NewBackup registers the backup collectors on reg.
func NewBackup(reg prometheus.Registerer) *Backup {
	f := promauto.With(reg)
	return &Backup{
		containerResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backup_container_results_total",
			Help: "Container backup attempts by result",
		}, []string{"result"}),
		archiveSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "backup_archive_size_megabytes",
			Help:    "Size of uploaded backup archives in megabytes",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		retentionObjects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backup_retention_objects_total",
			Help: "Remote backup objects evaluated by retention, by action",
		}, []string{"action"}),
		retentionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "backup_retention_errors_total",
			Help: "Errors encountered while enforcing retention",
		}),
		verificationResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "backup_verification_results_total",
			Help: "Verified backup archives by result",
		}, []string{"result"}),
		staleContainers: f.NewGauge(prometheus.GaugeOpts{
			Name: "backup_stale_containers",
			Help: "Containers without a successful backup in the last 24 hours",
		}),
	}
}

func (b *Backup) ObserveBackup(r model.BackupResult) {
	if !r.Success {
		b.containerResults.WithLabelValues("failure").Inc()
		return
	}
	b.containerResults.WithLabelValues("success").Inc()
	b.archiveSize.Observe(r.SizeMB)
}

func (b *Backup) ObserveRetention(r model.RetentionResult) {
	b.retentionObjects.WithLabelValues("kept").Add(float64(len(r.Kept)))
	b.retentionObjects.WithLabelValues("deleted").Add(float64(len(r.Deleted)))
	b.retentionErrors.Add(float64(len(r.Errors)))
}

func (b *Backup) ObserveVerification(r model.VerificationReport) {
	b.verificationResults.WithLabelValues("passed").Add(float64(r.Passed))
	b.verificationResults.WithLabelValues("failed").Add(float64(r.Failed))
}

// SetStaleContainers records the current number of stale containers.
func (b *Backup) SetStaleContainers(n int) {
	b.staleContainers.Set(float64(n))
}
