package sync

import "errors"

var (
	ErrUnknownEntityType     = errors.New("unknown entity type")
	ErrMissingRequiredFields = errors.New("Missing required fields")
	ErrUnresolvedParent      = errors.New("job_id or valid job_external_id required")

	ErrStagingDisabled = errors.New("staging ingestion is not enabled")
	ErrFeedRunning     = errors.New("sync is already running")
	ErrSnapshotRunning = errors.New("snapshot import already in progress")
)
