package copydesk

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileChange is one file write inside a commit.
type FileChange struct {
	Path    string
	Content []byte
}

// CommitResult reports a completed repository write.
type CommitResult struct {
	Ref            string
	FilesCommitted int
}

// BuildHandle identifies a build request accepted by the hosting platform.
// Polling build status is handled elsewhere; the coordinator fires and
// forgets.
type BuildHandle struct {
	ID          string
	RequestedAt time.Time
}

// RepoWriter commits a set of file writes to the content repository as one
// logical commit. Implementations wrap whatever forge or filesystem holds
// the site source.
type RepoWriter interface {
	CommitFiles(ctx context.Context, changes []FileChange, message string) (CommitResult, error)
}

// BuildTrigger asks the hosting platform for a rebuild of the site.
type BuildTrigger interface {
	TriggerBuild(ctx context.Context) (BuildHandle, error)
}

// DirRepo is a RepoWriter that writes into a local working tree. It stands
// in for a forge client during development and tests; the "commit ref" is a
// digest of the written paths and contents.
type DirRepo struct {
	Root string
}

// CommitFiles writes every change under Root, creating directories as
// needed. Paths are cleaned and must stay inside Root.
func (r *DirRepo) CommitFiles(ctx context.Context, changes []FileChange, message string) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	sum := sha1.New()
	for _, ch := range changes {
		rel := filepath.Clean(filepath.FromSlash(ch.Path))
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return CommitResult{}, fmt.Errorf("commit files: path %q escapes repository root", ch.Path)
		}
		dst := filepath.Join(r.Root, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return CommitResult{}, fmt.Errorf("commit files: create dir: %w", err)
		}
		if err := os.WriteFile(dst, ch.Content, 0o644); err != nil {
			return CommitResult{}, fmt.Errorf("commit files: write %s: %w", rel, err)
		}
		sum.Write([]byte(ch.Path))
		sum.Write(ch.Content)
	}
	sum.Write([]byte(message))
	return CommitResult{
		Ref:            hex.EncodeToString(sum.Sum(nil))[:12],
		FilesCommitted: len(changes),
	}, nil
}

// WebhookBuild triggers builds by POSTing to a deploy-hook URL, the contract
// hosting platforms expose for "rebuild on demand".
type WebhookBuild struct {
	URL    string
	Client *http.Client
}

// TriggerBuild POSTs to the hook URL with no body. Any non-2xx status is a
// failure.
func (w *WebhookBuild) TriggerBuild(ctx context.Context) (BuildHandle, error) {
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, nil)
	if err != nil {
		return BuildHandle{}, fmt.Errorf("build hook request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return BuildHandle{}, fmt.Errorf("call build hook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return BuildHandle{}, fmt.Errorf("build hook returned %s", resp.Status)
	}
	return BuildHandle{
		ID:          resp.Header.Get("X-Request-Id"),
		RequestedAt: time.Now().UTC(),
	}, nil
}
