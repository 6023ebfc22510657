package copydesk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRepo records commits and can fail or block on demand.
type fakeRepo struct {
	commits  [][]FileChange
	messages []string
	failWith error
	started  chan struct{} // closed-ish signal per commit, optional
	release  chan struct{} // block until closed, optional
}

func (f *fakeRepo) CommitFiles(ctx context.Context, changes []FileChange, message string) (CommitResult, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.failWith != nil {
		return CommitResult{}, f.failWith
	}
	f.commits = append(f.commits, changes)
	f.messages = append(f.messages, message)
	return CommitResult{Ref: fmt.Sprintf("ref-%d", len(f.commits)), FilesCommitted: len(changes)}, nil
}

// fakeBuilder counts build requests and can fail on demand.
type fakeBuilder struct {
	calls    int
	failWith error
}

func (f *fakeBuilder) TriggerBuild(ctx context.Context) (BuildHandle, error) {
	f.calls++
	if f.failWith != nil {
		return BuildHandle{}, f.failWith
	}
	return BuildHandle{ID: fmt.Sprintf("build-%d", f.calls), RequestedAt: time.Now()}, nil
}

func deployRecord(t *testing.T, kind ChangeKind, target, content string) ChangeRecord {
	t.Helper()
	payload, err := json.Marshal(filePayload{Content: content})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	r, err := NewChangeRecord(kind, target, payload, "Edit "+target)
	if err != nil {
		t.Fatalf("NewChangeRecord failed: %v", err)
	}
	return r
}

func TestDeployCommitsQueueAndClearsIt(t *testing.T) {
	q := NewChangeQueue(nil)
	q.Enqueue(deployRecord(t, KindPostUpdate, "hello-world", "# Hello"))
	q.Enqueue(deployRecord(t, KindImageUpdate, "hero.jpg", "img-bytes"))

	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	d := NewDeployer(q, repo, builder, time.Minute)

	result, err := d.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	if result.FilesCommitted != 2 {
		t.Errorf("FilesCommitted = %d, want 2", result.FilesCommitted)
	}
	if !result.BuildTriggered || builder.calls != 1 {
		t.Errorf("expected exactly one triggered build, got triggered=%v calls=%d", result.BuildTriggered, builder.calls)
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty after deploy, has %d", q.Len())
	}
	if len(repo.commits) != 1 {
		t.Fatalf("expected one commit, got %d", len(repo.commits))
	}
	msg := repo.messages[0]
	if !strings.Contains(msg, "1 post") || !strings.Contains(msg, "1 image") {
		t.Errorf("commit message %q should mention 1 post and 1 image", msg)
	}
	paths := []string{repo.commits[0][0].Path, repo.commits[0][1].Path}
	wantPaths := []string{"content/posts/hello-world.md", "public/uploads/hero.jpg"}
	for i, want := range wantPaths {
		if paths[i] != want {
			t.Errorf("commit path[%d] = %q, want %q", i, paths[i], want)
		}
	}
}

func TestDeploySingleFlight(t *testing.T) {
	q := NewChangeQueue(nil)
	q.Enqueue(deployRecord(t, KindPostUpdate, "slow-post", "body"))

	repo := &fakeRepo{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := NewDeployer(q, repo, &fakeBuilder{}, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := d.Deploy(context.Background())
		done <- err
	}()

	<-repo.started // the first deploy holds the lock inside CommitFiles

	_, err := d.Deploy(context.Background())
	if !errors.Is(err, ErrDeployInProgress) {
		t.Errorf("concurrent deploy error = %v, want ErrDeployInProgress", err)
	}
	if q.Len() != 1 {
		t.Errorf("rejected deploy mutated the queue: len = %d, want 1", q.Len())
	}

	close(repo.release)
	if err := <-done; err != nil {
		t.Fatalf("first deploy failed: %v", err)
	}

	// The lock is released after completion; a retry succeeds (with nothing
	// queued it reports no pending changes rather than DeployInProgress).
	_, err = d.Deploy(context.Background())
	if errors.Is(err, ErrDeployInProgress) {
		t.Error("lock should be released after deploy completes")
	}
}

func TestDeployRemovesOnlySnapshot(t *testing.T) {
	q := NewChangeQueue(nil)
	q.Enqueue(deployRecord(t, KindPostUpdate, "snapshotted", "v1"))

	repo := &fakeRepo{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := NewDeployer(q, repo, &fakeBuilder{}, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := d.Deploy(context.Background())
		done <- err
	}()

	<-repo.started
	// Arrives after the snapshot was taken; it must survive the flush.
	q.Enqueue(deployRecord(t, KindThemeUpdate, "site-theme", "late"))
	close(repo.release)

	if err := <-done; err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}

	got := q.List()
	if len(got) != 1 || got[0].ID != "theme_update:site-theme" {
		t.Fatalf("queue after deploy = %v, want only the late theme change", got)
	}
}

func TestDeployCommitFailurePreservesQueue(t *testing.T) {
	q := NewChangeQueue(nil)
	q.Enqueue(deployRecord(t, KindPostUpdate, "hello-world", "body"))

	repo := &fakeRepo{failWith: errors.New("remote refused")}
	builder := &fakeBuilder{}
	d := NewDeployer(q, repo, builder, time.Minute)

	_, err := d.Deploy(context.Background())
	var commitErr *CommitError
	if !errors.As(err, &commitErr) {
		t.Fatalf("error = %v, want CommitError", err)
	}
	if q.Len() != 1 {
		t.Errorf("queue len = %d after failed commit, want 1 (preserved for retry)", q.Len())
	}
	if builder.calls != 0 {
		t.Errorf("build must not be triggered after a failed commit, got %d calls", builder.calls)
	}
}

func TestDeployBuildFailureStillClearsQueue(t *testing.T) {
	q := NewChangeQueue(nil)
	q.Enqueue(deployRecord(t, KindPostUpdate, "hello-world", "body"))

	repo := &fakeRepo{}
	builder := &fakeBuilder{failWith: errors.New("hook returned 500")}
	d := NewDeployer(q, repo, builder, time.Minute)

	result, err := d.Deploy(context.Background())
	var buildErr *BuildTriggerError
	if !errors.As(err, &buildErr) {
		t.Fatalf("error = %v, want BuildTriggerError", err)
	}
	if result.FilesCommitted != 1 || result.CommitRef == "" {
		t.Errorf("result should report the landed commit, got %+v", result)
	}
	if result.BuildTriggered {
		t.Error("BuildTriggered should be false when the hook fails")
	}
	if q.Len() != 0 {
		t.Errorf("queue len = %d, want 0 (the commit already landed)", q.Len())
	}
}

func TestDeploySkipsMalformedRecords(t *testing.T) {
	q := NewChangeQueue(nil)
	bad, err := NewChangeRecord(KindSEOUpdate, "site-seo", json.RawMessage(`{not json`), "Broken record")
	if err != nil {
		t.Fatalf("NewChangeRecord failed: %v", err)
	}
	q.Enqueue(bad)
	q.Enqueue(deployRecord(t, KindPostUpdate, "good-post", "body"))

	repo := &fakeRepo{}
	d := NewDeployer(q, repo, &fakeBuilder{}, time.Minute)

	result, err := d.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if result.FilesCommitted != 1 {
		t.Errorf("FilesCommitted = %d, want 1 (bad record skipped)", result.FilesCommitted)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].ID != bad.ID {
		t.Errorf("Skipped = %v, want the malformed record", result.Skipped)
	}
	// The skipped record stays queued for inspection; the good one is gone.
	got := q.List()
	if len(got) != 1 || got[0].ID != bad.ID {
		t.Errorf("queue after deploy = %v, want only the malformed record", got)
	}
}

func TestDeployEmptyQueue(t *testing.T) {
	d := NewDeployer(NewChangeQueue(nil), &fakeRepo{}, nil, time.Minute)
	if _, err := d.Deploy(context.Background()); err == nil {
		t.Fatal("expected error for empty queue")
	}
}

func TestDeployOneBypassesQueue(t *testing.T) {
	q := NewChangeQueue(nil)
	q.Enqueue(deployRecord(t, KindThemeUpdate, "site-theme", "queued"))

	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	d := NewDeployer(q, repo, builder, time.Minute)

	result, err := d.DeployOne(context.Background(), deployRecord(t, KindPostUpdate, "direct", "body"))
	if err != nil {
		t.Fatalf("DeployOne failed: %v", err)
	}
	if result.FilesCommitted != 1 {
		t.Errorf("FilesCommitted = %d, want 1", result.FilesCommitted)
	}
	if q.Len() != 1 {
		t.Errorf("queued records must be untouched by DeployOne, len = %d", q.Len())
	}
	if builder.calls != 1 {
		t.Errorf("builder calls = %d, want 1", builder.calls)
	}
}

func TestCommitMessageWording(t *testing.T) {
	tests := []struct {
		name    string
		records []ChangeRecord
		want    string
	}{
		{
			name: "plural posts single image",
			records: []ChangeRecord{
				{ID: "a", Kind: KindPostCreate},
				{ID: "b", Kind: KindPostUpdate},
				{ID: "c", Kind: KindImageUpdate},
			},
			want: "Publish 2 posts, 1 image",
		},
		{
			name: "singleton categories named without counts",
			records: []ChangeRecord{
				{ID: "a", Kind: KindThemeUpdate},
				{ID: "b", Kind: KindSEOUpdate},
				{ID: "c", Kind: KindSettingsUpdate},
			},
			want: "Publish theme, seo, settings",
		},
		{
			name: "mixed",
			records: []ChangeRecord{
				{ID: "a", Kind: KindPostUpdate},
				{ID: "b", Kind: KindImageUpdate},
				{ID: "c", Kind: KindImageUpdate},
				{ID: "d", Kind: KindThemeUpdate},
			},
			want: "Publish 1 post, 2 images, theme",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commitMessage(tt.records, nil)
			if got != tt.want {
				t.Errorf("commitMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderChangeBase64Payload(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0x00, 0x01}
	payload, err := json.Marshal(filePayload{
		Path:     "public/uploads/pic.jpg",
		Content:  base64.StdEncoding.EncodeToString(raw),
		Encoding: "base64",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	r, err := NewChangeRecord(KindImageUpdate, "pic.jpg", payload, "")
	if err != nil {
		t.Fatalf("NewChangeRecord failed: %v", err)
	}

	file, err := renderChange(r)
	if err != nil {
		t.Fatalf("renderChange failed: %v", err)
	}
	if file.Path != "public/uploads/pic.jpg" {
		t.Errorf("Path = %q", file.Path)
	}
	if string(file.Content) != string(raw) {
		t.Errorf("Content = %v, want decoded bytes %v", file.Content, raw)
	}

	// Unknown encodings are malformed, not silently passed through.
	payload, _ = json.Marshal(filePayload{Content: "x", Encoding: "hex"})
	r.Payload = payload
	if _, err := renderChange(r); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestDirRepoWritesWorkingTree(t *testing.T) {
	root := t.TempDir()
	repo := &DirRepo{Root: root}

	result, err := repo.CommitFiles(context.Background(), []FileChange{
		{Path: "content/posts/hello.md", Content: []byte("# Hello")},
		{Path: "theme.json", Content: []byte(`{"color":"blue"}`)},
	}, "Publish 1 post, theme")
	if err != nil {
		t.Fatalf("CommitFiles failed: %v", err)
	}
	if result.FilesCommitted != 2 || result.Ref == "" {
		t.Errorf("result = %+v, want 2 files and a ref", result)
	}

	body, err := os.ReadFile(filepath.Join(root, "content", "posts", "hello.md"))
	if err != nil {
		t.Fatalf("read committed file: %v", err)
	}
	if string(body) != "# Hello" {
		t.Errorf("committed content = %q", body)
	}
}

func TestDirRepoRejectsEscapingPaths(t *testing.T) {
	repo := &DirRepo{Root: t.TempDir()}
	_, err := repo.CommitFiles(context.Background(), []FileChange{
		{Path: "../outside.txt", Content: []byte("nope")},
	}, "escape attempt")
	if err == nil {
		t.Fatal("expected error for path escaping the root")
	}
}
