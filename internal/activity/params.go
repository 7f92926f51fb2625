package activity

import (
	"time"

	"github.com/edvin/backupd/internal/model"
)

// EnforceRetentionParams holds parameters for one retention pass over a
// container prefix. Now is supplied by the workflow so replays see the same time.
type EnforceRetentionParams struct {
	Prefix string
	Config model.RetentionConfig
	Now    time.Time
}

// VerifyBackupsParams holds parameters for a verification pass.
type VerifyBackupsParams struct {
	Prefix string
	Limit  int
}
