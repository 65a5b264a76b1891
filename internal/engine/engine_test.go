package engine

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ZUENS2020/gcc-mem-system/internal/config"
	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	cfg := config.Default()
	cfg.DataRoot = t.TempDir()
	cfg.LockTimeout = 5 * time.Second
	return New(cfg, zap.NewNop())
}

func mustInit(t *testing.T, e *Engine, session string) string {
	t.Helper()
	res, err := e.Init(context.Background(), InitParams{
		SessionID: session,
		Goal:      "ship the feature",
		Todo:      []string{"design", "implement"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return res.SessionID
}

func mustBranch(t *testing.T, e *Engine, session, branch, purpose string) {
	t.Helper()
	if _, err := e.Branch(context.Background(), BranchParams{
		SessionID: session, Branch: branch, Purpose: purpose,
	}); err != nil {
		t.Fatalf("branch %s: %v", branch, err)
	}
}

func mustCommit(t *testing.T, e *Engine, p CommitParams) *CommitResult {
	t.Helper()
	res, err := e.Commit(context.Background(), p)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return res
}

func TestInitGeneratesSessionID(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Init(context.Background(), InitParams{Goal: "explore"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.HasPrefix(res.SessionID, "sess-") {
		t.Fatalf("generated session id = %q, want sess- prefix", res.SessionID)
	}
	if !e.Store().SessionExists(res.SessionID) {
		t.Fatal("session directory was not created")
	}
	if res.RevisionID == "" {
		t.Fatal("init with a goal should produce a revision")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "feature-x", "Build feature X")

	res, err := e.Init(context.Background(), InitParams{
		SessionID: session, Goal: "ship the feature v2",
	})
	if err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if res.SessionID != session {
		t.Fatalf("re-init session = %q, want %q", res.SessionID, session)
	}

	cctx, err := e.Context(context.Background(), ContextParams{SessionID: session})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if cctx.Overview.Goal != "ship the feature v2" {
		t.Fatalf("goal = %q, want updated goal", cctx.Overview.Goal)
	}
	found := false
	for _, b := range cctx.Overview.Branches {
		if b == "feature-x" {
			found = true
		}
	}
	if !found {
		t.Fatalf("re-init dropped branch feature-x: %v", cctx.Overview.Branches)
	}
}

func TestBranchSamePurposeIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")

	first, err := e.Branch(context.Background(), BranchParams{
		SessionID: session, Branch: "f1", Purpose: "Try approach one",
	})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if !first.Created {
		t.Fatal("first call should create the branch")
	}

	again, err := e.Branch(context.Background(), BranchParams{
		SessionID: session, Branch: "f1", Purpose: "Try approach one",
	})
	if err != nil {
		t.Fatalf("same-purpose branch: %v", err)
	}
	if again.Created || again.RevisionID != "" {
		t.Fatalf("same-purpose branch should be a no-op, got %+v", again)
	}

	_, err = e.Branch(context.Background(), BranchParams{
		SessionID: session, Branch: "f1", Purpose: "Something else",
	})
	if !memerr.IsKind(err, memerr.KindConflict) {
		t.Fatalf("different-purpose branch: got %v, want ConflictError", err)
	}
}

func TestBranchMissingSession(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Branch(context.Background(), BranchParams{
		SessionID: "ghost", Branch: "f1", Purpose: "anything",
	})
	if !memerr.IsKind(err, memerr.KindSessionNotFound) {
		t.Fatalf("got %v, want SessionNotFoundError", err)
	}
}

func TestCommitRecordsCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	first := mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1",
		Contribution: "Implemented the parser",
		LogEntries:   []string{"wrote parser", "added cases"},
	})
	if first.CheckpointID == "" || first.RevisionID == "" {
		t.Fatalf("commit result incomplete: %+v", first)
	}

	second := mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1",
		Contribution: "Wired the parser into the pipeline",
	})
	if second.CheckpointID == first.CheckpointID {
		t.Fatal("checkpoint ids must be unique")
	}

	cctx, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "f1",
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	view := cctx.Branch
	if view.Purpose != "Try approach one" {
		t.Fatalf("purpose = %q", view.Purpose)
	}
	if len(view.Checkpoints) != 2 {
		t.Fatalf("checkpoints = %d, want 2", len(view.Checkpoints))
	}
	if got := view.Checkpoints[1].PrevProgress; !strings.Contains(got, "Implemented the parser") {
		t.Fatalf("second checkpoint's progress snapshot = %q, want first contribution folded in", got)
	}
}

func TestCommitMissingBranch(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	_, err := e.Commit(context.Background(), CommitParams{
		SessionID: session, Branch: "nope", Contribution: "anything",
	})
	if !memerr.IsKind(err, memerr.KindBranchNotFound) {
		t.Fatalf("got %v, want BranchNotFoundError", err)
	}
	details := memerr.DetailsOf(err)
	available, _ := details["available_branches"].([]string)
	if len(available) == 0 {
		t.Fatalf("error should list available branches, details = %v", details)
	}
}

func TestCommitSubjectTruncatesOnRuneBoundary(t *testing.T) {
	subject := commitSubject("f1", strings.Repeat("日", 80))
	if !utf8.ValidString(subject) {
		t.Fatalf("subject contains invalid UTF-8: %q", subject)
	}
	trimmed := strings.TrimPrefix(subject, "GCC commit f1: ")
	if n := utf8.RuneCountInString(trimmed); n != 60 {
		t.Errorf("truncated subject has %d runes, want 60", n)
	}
}

func TestCommitMetadataDeepMerge(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "set owner",
		MetadataUpdates: map[string]any{
			"owner": map[string]any{"team": "infra", "oncall": "alice"},
		},
	})
	mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "rotate oncall",
		MetadataUpdates: map[string]any{
			"owner": map[string]any{"oncall": "bob"},
		},
	})

	cctx, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "f1", MetadataSegment: "owner",
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if !cctx.Metadata.Found {
		t.Fatal("owner segment not found")
	}
	owner, ok := cctx.Metadata.Value.(map[string]any)
	if !ok {
		t.Fatalf("owner = %T, want map", cctx.Metadata.Value)
	}
	if owner["team"] != "infra" || owner["oncall"] != "bob" {
		t.Fatalf("merge lost keys: %v", owner)
	}
}

func TestLogEmptyEntriesProducesNoRevision(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	before, err := e.History(context.Background(), session, "", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	res, err := e.Log(context.Background(), LogParams{
		SessionID: session, Branch: "f1", Entries: nil,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if res.RevisionID != "" {
		t.Fatalf("empty log produced revision %q", res.RevisionID)
	}
	after, err := e.History(context.Background(), session, "", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(after.Commits) != len(before.Commits) {
		t.Fatalf("history grew from %d to %d", len(before.Commits), len(after.Commits))
	}
}

func TestLogAppendsEntries(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	res, err := e.Log(context.Background(), LogParams{
		SessionID: session, Branch: "f1",
		Entries: []string{"reproduced the flaky test", "found the race"},
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if res.Entries != 2 || res.RevisionID == "" {
		t.Fatalf("log result = %+v", res)
	}

	cctx, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "f1", LogTail: 10,
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	joined := strings.Join(cctx.LogTail, "\n")
	if !strings.Contains(joined, "found the race") {
		t.Fatalf("log tail missing entry: %q", joined)
	}
}

func TestHistoryNewestFirstBoundedByLimit(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")
	for _, c := range []string{"step one", "step two", "step three"} {
		mustCommit(t, e, CommitParams{SessionID: session, Branch: "f1", Contribution: c})
	}

	res, err := e.History(context.Background(), session, "f1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(res.Commits) != 2 {
		t.Fatalf("len = %d, want 2", len(res.Commits))
	}
	if res.Commits[0].Timestamp < res.Commits[1].Timestamp {
		t.Fatal("history is not newest first")
	}
	if !strings.Contains(res.Commits[0].Subject, "step three") {
		t.Fatalf("newest subject = %q", res.Commits[0].Subject)
	}
}

func TestContextSelectorsRequireBranch(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")

	for name, p := range map[string]ContextParams{
		"commit_id": {SessionID: session, CommitID: "abcd1234"},
		"log_tail":  {SessionID: session, LogTail: 5},
		"metadata":  {SessionID: session, MetadataSegment: "owner"},
	} {
		if _, err := e.Context(context.Background(), p); !memerr.IsKind(err, memerr.KindValidation) {
			t.Errorf("%s without branch: got %v, want ValidationError", name, err)
		}
	}
}

func TestContextCheckpointByID(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")
	first := mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "laid groundwork",
	})
	mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "built on top",
	})

	cctx, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "f1", CommitID: first.CheckpointID,
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if cctx.Checkpoint.Record.ID != first.CheckpointID {
		t.Fatalf("record id = %q, want %q", cctx.Checkpoint.Record.ID, first.CheckpointID)
	}
	if !strings.Contains(cctx.Checkpoint.Raw, "laid groundwork") {
		t.Fatalf("raw record = %q", cctx.Checkpoint.Raw)
	}

	_, err = e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "f1", CommitID: "ffffffff",
	})
	if !memerr.IsKind(err, memerr.KindValidation) {
		t.Fatalf("unknown checkpoint id: got %v, want ValidationError", err)
	}
}

func TestMergeFoldsSourceIntoTarget(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")
	mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1",
		Contribution:    "finished approach one",
		MetadataUpdates: map[string]any{"result": "success"},
	})

	res, err := e.Merge(context.Background(), MergeParams{
		SessionID: session, SourceBranch: "f1", Summary: "approach one works",
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.TargetBranch != "main" || res.RevisionID == "" {
		t.Fatalf("merge result = %+v", res)
	}

	cctx, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "main",
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	found := false
	for _, rec := range cctx.Branch.Checkpoints {
		if strings.Contains(rec.Contribution, "finished approach one") {
			found = true
		}
	}
	if !found {
		t.Fatal("source checkpoints were not folded into the target")
	}

	seg, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "main", MetadataSegment: "merged_from.f1.result",
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if !seg.Metadata.Found || seg.Metadata.Value != "success" {
		t.Fatalf("merged_from.f1.result = %+v", seg.Metadata)
	}
}

func TestMergeRepeatIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")
	mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "finished approach one",
	})

	first, err := e.Merge(context.Background(), MergeParams{
		SessionID: session, SourceBranch: "f1",
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	second, err := e.Merge(context.Background(), MergeParams{
		SessionID: session, SourceBranch: "f1",
	})
	if err != nil {
		t.Fatalf("repeat merge: %v", err)
	}
	if second.RevisionID != first.RevisionID {
		t.Errorf("repeat merge created revision %s, want %s unchanged",
			second.RevisionID, first.RevisionID)
	}

	show, err := e.Show(context.Background(), session, "main", "branches/main/commit.md")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if n := strings.Count(show.Content, "== Merge from f1 =="); n != 1 {
		t.Errorf("fold banner appears %d times, want 1", n)
	}
}

func TestMergeIntoSelfRejected(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	_, err := e.Merge(context.Background(), MergeParams{
		SessionID: session, SourceBranch: "f1", TargetBranch: "f1",
	})
	if !memerr.IsKind(err, memerr.KindValidation) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestResetHardRestoresFiles(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")
	first := mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "good state",
	})
	wanted, err := os.ReadFile(e.Store().CheckpointPath(session, "f1"))
	if err != nil {
		t.Fatalf("read commit.md: %v", err)
	}
	mustCommit(t, e, CommitParams{
		SessionID: session, Branch: "f1", Contribution: "regretted state",
	})

	_, err = e.Reset(context.Background(), ResetParams{
		SessionID: session, Ref: first.RevisionID, Mode: "hard", Confirm: false,
	})
	if !memerr.IsKind(err, memerr.KindValidation) {
		t.Fatalf("unconfirmed reset: got %v, want ValidationError", err)
	}

	res, err := e.Reset(context.Background(), ResetParams{
		SessionID: session, Ref: first.RevisionID, Mode: "hard", Confirm: true,
	})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !res.OK {
		t.Fatalf("reset result = %+v", res)
	}
	got, err := os.ReadFile(e.Store().CheckpointPath(session, "f1"))
	if err != nil {
		t.Fatalf("read commit.md: %v", err)
	}
	if string(got) != string(wanted) {
		t.Fatal("hard reset did not restore the checkpoint file byte for byte")
	}
}

func TestConcurrentCommitsSerialize(t *testing.T) {
	e := newTestEngine(t)
	session := mustInit(t, e, "proj")
	mustBranch(t, e, session, "f1", "Try approach one")

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Commit(context.Background(), CommitParams{
				SessionID: session, Branch: "f1",
				Contribution: "concurrent work",
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	cctx, err := e.Context(context.Background(), ContextParams{
		SessionID: session, Branch: "f1",
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(cctx.Branch.Checkpoints) != workers {
		t.Fatalf("checkpoints = %d, want %d", len(cctx.Branch.Checkpoints), workers)
	}
}
