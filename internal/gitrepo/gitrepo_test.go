package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	r := New(t.TempDir(), Identity{
		Name:          "Test Agent",
		Email:         "test@example.com",
		DefaultBranch: "main",
	}, zap.NewNop())
	if err := r.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return r
}

func writeFile(t *testing.T, r *Repo, rel, content string) {
	t.Helper()
	path := filepath.Join(r.Root(), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	// A second Ensure must not fail or add history.
	head1, err := r.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if err := r.Ensure(ctx); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	head2, _ := r.Head(ctx)
	if head1 != head2 {
		t.Errorf("Ensure moved HEAD: %s -> %s", head1, head2)
	}

	branch, err := r.CurrentBranch(ctx)
	if err != nil || branch != "main" {
		t.Errorf("CurrentBranch = %q, %v", branch, err)
	}
}

func TestStageAndCommit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, r, "main.md", "# GCC Roadmap\n")
	rev, err := r.StageAndCommit(ctx, []string{"main.md"}, "first")
	if err != nil {
		t.Fatalf("StageAndCommit: %v", err)
	}
	if len(rev) != 40 {
		t.Errorf("revision = %q, want 40-char hash", rev)
	}

	// Unchanged content must not create a revision.
	rev2, err := r.StageAndCommit(ctx, []string{"main.md"}, "noop")
	if err != nil {
		t.Fatalf("StageAndCommit (noop): %v", err)
	}
	if rev2 != "" {
		t.Errorf("no-op commit produced revision %q", rev2)
	}
	head, _ := r.Head(ctx)
	if head != rev {
		t.Errorf("HEAD moved on no-op: %s -> %s", rev, head)
	}
}

func TestLog_NewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	var revs []string
	for _, msg := range []string{"one", "two", "three"} {
		writeFile(t, r, "main.md", msg+"\n")
		rev, err := r.StageAndCommit(ctx, []string{"main.md"}, msg)
		if err != nil {
			t.Fatalf("StageAndCommit(%s): %v", msg, err)
		}
		revs = append(revs, rev)
	}

	commits, err := r.Log(ctx, "", 10)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	// init commit + three content commits
	if len(commits) != 4 {
		t.Fatalf("Log returned %d commits, want 4", len(commits))
	}
	if commits[0].Revision != revs[2] || commits[0].Subject != "three" {
		t.Errorf("newest = %s %q, want %s three", commits[0].Revision, commits[0].Subject, revs[2])
	}
	if commits[2].Subject != "one" {
		t.Errorf("order wrong: %v", commits)
	}

	limited, err := r.Log(ctx, "", 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("Log with limit = %d commits, %v", len(limited), err)
	}
}

func TestShowAndDiff(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, r, "main.md", "version one\n")
	rev1, _ := r.StageAndCommit(ctx, []string{"main.md"}, "v1")
	writeFile(t, r, "main.md", "version two\n")
	rev2, _ := r.StageAndCommit(ctx, []string{"main.md"}, "v2")

	content, err := r.Show(ctx, rev1, "main.md")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if content != "version one" {
		t.Errorf("Show at rev1 = %q", content)
	}

	diff, err := r.Diff(ctx, rev1, rev2)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(diff, "-version one") || !strings.Contains(diff, "+version two") {
		t.Errorf("diff missing expected hunks:\n%s", diff)
	}
}

func TestCheckoutAndMerge(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, r, "main.md", "base\n")
	if _, err := r.StageAndCommit(ctx, []string{"main.md"}, "base"); err != nil {
		t.Fatalf("StageAndCommit: %v", err)
	}

	if err := r.CheckoutBranch(ctx, "f1"); err != nil {
		t.Fatalf("CheckoutBranch: %v", err)
	}
	writeFile(t, r, "branches/f1/commit.md", "work\n")
	if _, err := r.StageAndCommit(ctx, []string{"branches/f1/commit.md"}, "work"); err != nil {
		t.Fatalf("StageAndCommit on f1: %v", err)
	}

	if err := r.CheckoutBranch(ctx, "main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}
	rev, err := r.Merge(ctx, "f1", "merge f1")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if rev == "" {
		t.Error("merge produced no revision")
	}
	if _, err := os.Stat(filepath.Join(r.Root(), "branches", "f1", "commit.md")); err != nil {
		t.Error("merged file missing on main")
	}
}

func TestMerge_ConflictAborts(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, r, "main.md", "base\n")
	if _, err := r.StageAndCommit(ctx, []string{"main.md"}, "base"); err != nil {
		t.Fatalf("StageAndCommit: %v", err)
	}

	if err := r.CheckoutBranch(ctx, "f1"); err != nil {
		t.Fatalf("checkout f1: %v", err)
	}
	writeFile(t, r, "main.md", "from f1\n")
	if _, err := r.StageAndCommit(ctx, []string{"main.md"}, "f1 change"); err != nil {
		t.Fatalf("commit on f1: %v", err)
	}

	if err := r.CheckoutBranch(ctx, "main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}
	writeFile(t, r, "main.md", "from main\n")
	preMerge, err := r.StageAndCommit(ctx, []string{"main.md"}, "main change")
	if err != nil {
		t.Fatalf("commit on main: %v", err)
	}

	if _, err := r.Merge(ctx, "f1", "conflicting merge"); err == nil {
		t.Fatal("conflicting merge succeeded, want error")
	} else if !memerr.IsKind(err, memerr.KindRepository) {
		t.Errorf("error kind = %s, want RepositoryError", memerr.KindOf(err))
	}

	// Pre-merge state restored: HEAD unchanged, file content intact.
	head, _ := r.Head(ctx)
	if head != preMerge {
		t.Errorf("HEAD after aborted merge = %s, want %s", head, preMerge)
	}
	data, _ := os.ReadFile(filepath.Join(r.Root(), "main.md"))
	if string(data) != "from main\n" {
		t.Errorf("working tree after aborted merge = %q", data)
	}
}

func TestReset_HardRestoresContent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, r, "main.md", "first\n")
	rev1, _ := r.StageAndCommit(ctx, []string{"main.md"}, "first")
	writeFile(t, r, "main.md", "second\n")
	if _, err := r.StageAndCommit(ctx, []string{"main.md"}, "second"); err != nil {
		t.Fatalf("StageAndCommit: %v", err)
	}

	if err := r.Reset(ctx, rev1, "hard"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(r.Root(), "main.md"))
	if string(data) != "first\n" {
		t.Errorf("content after hard reset = %q, want first", data)
	}
	head, _ := r.Head(ctx)
	if head != rev1 {
		t.Errorf("HEAD after reset = %s, want %s", head, rev1)
	}
}

func TestGuard_RejectsOptionLikeArgs(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.CheckoutBranch(ctx, "--force"); !memerr.IsKind(err, memerr.KindValidation) {
		t.Errorf("option-like branch: kind = %s, want ValidationError", memerr.KindOf(err))
	}
	if _, err := r.Show(ctx, "-D", ""); !memerr.IsKind(err, memerr.KindValidation) {
		t.Errorf("option-like ref: kind = %s, want ValidationError", memerr.KindOf(err))
	}
	if _, err := r.Diff(ctx, "main", "--exec=evil"); !memerr.IsKind(err, memerr.KindValidation) {
		t.Errorf("option-like to ref: kind = %s, want ValidationError", memerr.KindOf(err))
	}
}

func TestRepositoryError_HidesStderr(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.Show(context.Background(), "deadbeef", "missing.md")
	if err == nil {
		t.Fatal("Show of missing ref succeeded")
	}
	if msg := err.Error(); strings.Contains(msg, r.Root()) || strings.Contains(strings.ToLower(msg), "fatal") {
		t.Errorf("error message leaks git detail: %q", msg)
	}
}

func TestOpLog_RecordsInvocations(t *testing.T) {
	r := newTestRepo(t)

	data, err := os.ReadFile(filepath.Join(r.Root(), "git.log"))
	if err != nil {
		t.Fatalf("git.log missing: %v", err)
	}
	if !strings.Contains(string(data), "git init") && !strings.Contains(string(data), "exit=0") {
		t.Errorf("git.log lacks invocation records:\n%s", data)
	}
}
