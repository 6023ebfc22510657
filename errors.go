package copydesk

import (
	"errors"
	"fmt"
)

// ErrDeployInProgress is returned by Deployer.Deploy when another deploy is
// already running. The caller retries after the running deploy resolves; the
// request is never queued behind the in-flight one.
var ErrDeployInProgress = errors.New("deploy already in progress")

// CommitError wraps a failed repository write. The queue is left untouched
// so the operator can retry the whole batch.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit files: %v", e.Err) }
func (e *CommitError) Unwrap() error { return e.Err }

// BuildTriggerError wraps a failed build request issued after a successful
// commit. The commit already landed, so the queue is cleared; the operator
// must redeploy manually.
type BuildTriggerError struct {
	Err error
}

func (e *BuildTriggerError) Error() string { return fmt.Sprintf("trigger build: %v", e.Err) }
func (e *BuildTriggerError) Unwrap() error { return e.Err }
