package config

import "time"

const (
	DefaultTimeZone = "Asia/Manila"

	// Commit chunk sizes. Recipients are inserted in small chunks so a
	// mid-commit failure loses little; disbursements are cheap rows and
	// flush in larger batches.
	RecipientChunkSize    = 100
	DisbursementChunkSize = 500

	// Upload sessions idle out after this long without a commit.
	SessionTTL = 2 * time.Hour

	// Housekeeping schedules.
	DefaultSessionSweepSchedule = "*/15 * * * *"
	DefaultBatchPruneSchedule   = "0 3 * * *"

	// Import batch audit rows older than this are pruned by the nightly job.
	BatchRetentionDays = 180
)
