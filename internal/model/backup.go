package model

import "time"

// BackupResult is the outcome of one container's backup attempt within a run.
type BackupResult struct {
	Container  string  `json:"container"`
	Success    bool    `json:"success"`
	SizeMB     float64 `json:"sizeMb,omitempty"`
	RemotePath string  `json:"remotePath,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NightlyBackupReport aggregates one orchestrator run on a node. Exported and
// Failed are projections of Results and are only filled by NewNightlyBackupReport.
type NightlyBackupReport struct {
	NodeID      string         `json:"nodeId"`
	Date        string         `json:"date"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Results     []BackupResult `json:"results"`
	Exported    []string       `json:"exported"`
	Failed      []string       `json:"failed"`
}

// NewNightlyBackupReport builds a report and derives the exported/failed name lists.
func NewNightlyBackupReport(nodeID, date string, startedAt, completedAt time.Time, results []BackupResult) NightlyBackupReport {
	r := NightlyBackupReport{
		NodeID:      nodeID,
		Date:        date,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Results:     results,
		Exported:    []string{},
		Failed:      []string{},
	}
	if r.Results == nil {
		r.Results = []BackupResult{}
	}
	for _, res := range r.Results {
		if res.Success {
			r.Exported = append(r.Exported, res.Container)
		} else {
			r.Failed = append(r.Failed, res.Container)
		}
	}
	return r
}

// SpacesObject describes a remote object. Date is the logical backup date.
type SpacesObject struct {
	Path string    `json:"path"`
	Size int64     `json:"size"`
	Date time.Time `json:"date"`
}

// RetentionConfig holds the daily/weekly retention policy parameters.
// Objects younger than MinAge are never deleted.
type RetentionConfig struct {
	DailyCount  int           `json:"dailyCount"`
	WeeklyCount int           `json:"weeklyCount"`
	MinAge      time.Duration `json:"minAge,omitempty"`
}

// DefaultRetentionMinAge is the deployed safety margin. It covers one full
// nightly run, so retention never removes an archive from a run still in progress.
const DefaultRetentionMinAge = 24 * time.Hour

// DefaultRetentionConfig returns the 7 daily + 4 weekly policy without a margin.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{DailyCount: 7, WeeklyCount: 4}
}

// RetentionResult is the output of one retention pass over a container prefix.
type RetentionResult struct {
	Kept    []string `json:"kept"`
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors"`
}

// BackupStatusEntry is the latest backup status of a container. IsStale is
// derived at read time and never stored.
type BackupStatusEntry struct {
	ContainerID       string     `json:"containerId"`
	NodeID            string     `json:"nodeId"`
	LastBackupAt      *time.Time `json:"lastBackupAt"`
	LastBackupSizeMB  *float64   `json:"lastBackupSizeMb"`
	LastBackupPath    *string    `json:"lastBackupPath"`
	LastBackupSuccess bool       `json:"lastBackupSuccess"`
	LastBackupError   *string    `json:"lastBackupError"`
	TotalBackups      int        `json:"totalBackups"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	IsStale           bool       `json:"isStale"`
}

// VerificationResult is the outcome of verifying one remote object.
type VerificationResult struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// VerificationReport aggregates one verification pass.
type VerificationReport struct {
	TotalChecked int                  `json:"totalChecked"`
	Passed       int                  `json:"passed"`
	Failed       int                  `json:"failed"`
	Results      []VerificationResult `json:"results"`
}
