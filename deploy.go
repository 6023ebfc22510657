package copydesk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// SkippedChange reports a record that was excluded from a commit because its
// payload could not be turned into a file write. One bad record never blocks
// the rest of the batch.
type SkippedChange struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// DeployResult reports the outcome of one deploy.
type DeployResult struct {
	FilesCommitted int             `json:"filesCommitted"`
	CommitRef      string          `json:"commitRef,omitempty"`
	CommitMessage  string          `json:"commitMessage,omitempty"`
	BuildTriggered bool            `json:"buildTriggered"`
	BuildID        string          `json:"buildId,omitempty"`
	Skipped        []SkippedChange `json:"skipped,omitempty"`
}

// Deployer flushes the change queue as exactly one commit followed by
// exactly one build request. At most one deploy may be in flight at a time;
// a second call fails immediately with ErrDeployInProgress instead of
// waiting or merging into the running one.
type Deployer struct {
	queue   *ChangeQueue
	repo    RepoWriter
	builder BuildTrigger
	timeout time.Duration

	mu sync.Mutex // single-flight lock, held for the whole deploy
}

// NewDeployer wires a Deployer. builder may be nil when no hosting hook is
// configured; the commit still happens and the result reports no build.
func NewDeployer(queue *ChangeQueue, repo RepoWriter, builder BuildTrigger, timeout time.Duration) *Deployer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Deployer{queue: queue, repo: repo, builder: builder, timeout: timeout}
}

// Deploy snapshots the queue, commits the snapshot as one change set, and
// triggers one build.
//
// Failure semantics: a commit failure leaves the queue untouched (retry the
// whole batch); a build-trigger failure after a successful commit still
// clears the snapshot, because the durable side effect already landed, and
// returns a BuildTriggerError alongside the partially filled result.
// Records enqueued while the deploy runs always survive.
func (d *Deployer) Deploy(ctx context.Context) (DeployResult, error) {
	if !d.mu.TryLock() {
		return DeployResult{}, ErrDeployInProgress
	}
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	snapshot := d.queue.List()
	if len(snapshot) == 0 {
		return DeployResult{}, fmt.Errorf("deploy: no pending changes")
	}

	files, committedIDs, skipped := renderChanges(snapshot)
	result := DeployResult{Skipped: skipped}
	if len(files) == 0 {
		// Everything was malformed; report without committing. The records
		// stay queued so the operator can inspect and discard them.
		return result, fmt.Errorf("deploy: no valid changes in %d queued records", len(snapshot))
	}

	message := commitMessage(snapshot, skipped)
	commit, err := d.repo.CommitFiles(ctx, files, message)
	if err != nil {
		return result, &CommitError{Err: err}
	}
	result.FilesCommitted = commit.FilesCommitted
	result.CommitRef = commit.Ref
	result.CommitMessage = message

	// The commit landed: from here on the committed records are cleared no
	// matter what the build trigger does. Only ids captured at snapshot time
	// are removed, so edits enqueued since the snapshot survive.
	defer d.queue.Remove(committedIDs)

	if d.builder == nil {
		return result, nil
	}
	build, err := d.builder.TriggerBuild(ctx)
	if err != nil {
		log.Printf("copydesk: build trigger failed after commit %s: %v", commit.Ref, err)
		return result, &BuildTriggerError{Err: err}
	}
	result.BuildTriggered = true
	result.BuildID = build.ID
	return result, nil
}

// DeployOne commits a single record immediately, bypassing the queue. Edit
// surfaces use this path when smart deploy is disabled.
func (d *Deployer) DeployOne(ctx context.Context, record ChangeRecord) (DeployResult, error) {
	if !d.mu.TryLock() {
		return DeployResult{}, ErrDeployInProgress
	}
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	file, err := renderChange(record)
	if err != nil {
		return DeployResult{}, fmt.Errorf("deploy %s: %w", record.ID, err)
	}
	message := record.Label
	if message == "" {
		message = fmt.Sprintf("Update %s", record.TargetKey)
	}
	commit, err := d.repo.CommitFiles(ctx, []FileChange{file}, message)
	if err != nil {
		return DeployResult{}, &CommitError{Err: err}
	}
	result := DeployResult{
		FilesCommitted: commit.FilesCommitted,
		CommitRef:      commit.Ref,
		CommitMessage:  message,
	}
	if d.builder == nil {
		return result, nil
	}
	build, err := d.builder.TriggerBuild(ctx)
	if err != nil {
		return result, &BuildTriggerError{Err: err}
	}
	result.BuildTriggered = true
	result.BuildID = build.ID
	return result, nil
}

// renderChanges translates a queue snapshot into file writes. Malformed
// records are reported as skipped and stay in the queue; committedIDs holds
// only the ids that made it into the file set.
func renderChanges(snapshot []ChangeRecord) (files []FileChange, committedIDs []string, skipped []SkippedChange) {
	for _, r := range snapshot {
		file, err := renderChange(r)
		if err != nil {
			skipped = append(skipped, SkippedChange{ID: r.ID, Label: r.Label, Reason: err.Error()})
			continue
		}
		files = append(files, file)
		committedIDs = append(committedIDs, r.ID)
	}
	return files, committedIDs, skipped
}

// renderChange turns one record into its file write.
func renderChange(r ChangeRecord) (FileChange, error) {
	var p filePayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return FileChange{}, fmt.Errorf("decode payload: %w", err)
	}
	path := p.Path
	if path == "" {
		path = defaultPath(r.Kind, r.TargetKey)
	}
	var content []byte
	switch p.Encoding {
	case "":
		content = []byte(p.Content)
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(p.Content)
		if err != nil {
			return FileChange{}, fmt.Errorf("decode base64 content: %w", err)
		}
		content = decoded
	default:
		return FileChange{}, fmt.Errorf("unknown payload encoding %q", p.Encoding)
	}
	return FileChange{Path: path, Content: content}, nil
}

// commitMessage synthesizes a summary like "Publish 2 posts, 1 image, theme"
// from the committed records. Single-instance categories (theme, seo,
// settings) are named without a count.
func commitMessage(snapshot []ChangeRecord, skipped []SkippedChange) string {
	skip := make(map[string]struct{}, len(skipped))
	for _, s := range skipped {
		skip[s.ID] = struct{}{}
	}
	counts := make(map[Category]int)
	for _, r := range snapshot {
		if _, bad := skip[r.ID]; bad {
			continue
		}
		counts[r.Kind.Category()]++
	}

	var parts []string
	for _, c := range []Category{CategoryPost, CategoryImage, CategoryTheme, CategorySEO, CategorySettings} {
		n := counts[c]
		if n == 0 {
			continue
		}
		switch c {
		case CategoryPost, CategoryImage:
			unit := string(c)
			if n != 1 {
				unit += "s"
			}
			parts = append(parts, fmt.Sprintf("%d %s", n, unit))
		case CategoryTheme, CategorySEO, CategorySettings:
			parts = append(parts, string(c))
		}
	}
	if len(parts) == 0 {
		return "Publish site updates"
	}
	return "Publish " + strings.Join(parts, ", ")
}
