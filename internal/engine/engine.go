// Package engine implements the memory commands on top of the storage,
// lock, and version-control layers.
//
// Every mutating operation follows the same shape: validate inputs, acquire
// the session lock, apply file changes, then stage and commit them as one
// revision. Read operations never take the lock; they resolve a revision up
// front and read all files relative to it.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZUENS2020/gcc-mem-system/internal/checkpoint"
	"github.com/ZUENS2020/gcc-mem-system/internal/config"
	"github.com/ZUENS2020/gcc-mem-system/internal/gitrepo"
	"github.com/ZUENS2020/gcc-mem-system/internal/lock"
	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"github.com/ZUENS2020/gcc-mem-system/internal/storage"
	"github.com/ZUENS2020/gcc-mem-system/internal/validate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHistoryLimit is the number of revisions History returns when the
// caller does not ask for a specific count.
const DefaultHistoryLimit = 20

// Engine executes memory commands against one data root.
type Engine struct {
	cfg    *config.Config
	store  *storage.Store
	locks  *lock.Manager
	limits validate.Limits
	logger *zap.Logger
}

// New wires an Engine from configuration. logger may not be nil; pass
// zap.NewNop() to discard.
func New(cfg *config.Config, logger *zap.Logger) *Engine {
	store := storage.New(cfg.DataRoot)
	return &Engine{
		cfg:    cfg,
		store:  store,
		locks:  lock.NewManager(store.SessionDir(""), cfg.LockTimeout),
		limits: cfg.Limits(),
		logger: logger,
	}
}

// Store exposes the storage layer, mainly for tests.
func (e *Engine) Store() *storage.Store { return e.store }

func (e *Engine) repo(session string) *gitrepo.Repo {
	identity := gitrepo.Identity{
		Name:          e.cfg.Git.Name,
		Email:         e.cfg.Git.Email,
		DefaultBranch: e.cfg.Git.DefaultBranch,
	}
	return gitrepo.New(e.store.SessionDir(session), identity, e.logger)
}

// requireSession validates the session id and checks the session has been
// initialized.
func (e *Engine) requireSession(id string) (string, error) {
	session, err := e.limits.SessionID(id)
	if err != nil {
		return "", err
	}
	// The roadmap is the initialization marker; a bare directory (e.g. one
	// created only by a lock file) is not an initialized session.
	if !e.store.RoadmapExists(session) {
		return "", memerr.SessionNotFound(session)
	}
	return session, nil
}

// requireBranch checks that the branch exists in the session repository and
// returns the other branch names for the error payload when it does not.
func (e *Engine) requireBranch(ctx context.Context, repo *gitrepo.Repo, branch string) error {
	exists, err := repo.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	available, err := repo.Branches(ctx)
	if err != nil {
		available = nil
	}
	return memerr.BranchNotFound(branch, available)
}

// newSessionID generates a session id when the caller did not supply one.
func newSessionID() string {
	return "sess-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Init creates or updates a session. It is idempotent: an existing session
// keeps its branches, and its roadmap goal and checklist are only replaced
// when the call supplies them.
func (e *Engine) Init(ctx context.Context, p InitParams) (*InitResult, error) {
	session := p.SessionID
	if session == "" {
		session = newSessionID()
	}
	session, err := e.limits.SessionID(session)
	if err != nil {
		return nil, err
	}
	goal, err := e.limits.Text("goal", p.Goal)
	if err != nil {
		return nil, err
	}
	todo := make([]string, 0, len(p.Todo))
	for _, item := range p.Todo {
		item, err := e.limits.Text("todo", item)
		if err != nil {
			return nil, err
		}
		if item = strings.TrimSpace(item); item != "" {
			todo = append(todo, item)
		}
	}

	token, err := e.locks.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(token)

	// The lock file's directory doubles as the session directory, so plain
	// existence is true by now; the roadmap marks real initialization.
	existed := e.store.RoadmapExists(session)
	if err := e.store.EnsureSession(session, goal, todo); err != nil {
		return nil, err
	}
	if existed && (goal != "" || len(todo) > 0) {
		roadmap, _, err := e.store.ReadRoadmap(session)
		if err != nil {
			return nil, err
		}
		if goal != "" {
			roadmap.Goal = goal
		}
		if len(todo) > 0 {
			roadmap.Todo = nil
			for _, item := range todo {
				roadmap.Todo = append(roadmap.Todo, storage.TodoItem{Text: item})
			}
		}
		if err := e.store.WriteRoadmap(session, roadmap); err != nil {
			return nil, err
		}
	}

	repo := e.repo(session)
	if err := repo.Ensure(ctx); err != nil {
		return nil, err
	}
	revision, err := repo.StageAndCommit(ctx, []string{storage.RelRoadmap()},
		"GCC init "+session)
	if err != nil {
		return nil, err
	}
	e.logger.Info("session initialized",
		zap.String("session", session), zap.Bool("existed", existed))
	return &InitResult{SessionID: session, RevisionID: revision}, nil
}

// Branch creates a branch with a purpose. Creating an existing branch with
// the same purpose is a no-op; with a different purpose it is a conflict.
func (e *Engine) Branch(ctx context.Context, p BranchParams) (*BranchResult, error) {
	branch, err := e.limits.BranchName(p.Branch)
	if err != nil {
		return nil, err
	}
	purpose, err := e.limits.RequiredText("purpose", p.Purpose)
	if err != nil {
		return nil, err
	}
	session, err := e.requireSession(p.SessionID)
	if err != nil {
		return nil, err
	}

	token, err := e.locks.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(token)

	repo := e.repo(session)
	exists, err := repo.BranchExists(ctx, branch)
	if err != nil {
		return nil, err
	}
	if exists {
		existing, err := e.branchPurpose(ctx, repo, session, branch)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(existing) == strings.TrimSpace(purpose) {
			return &BranchResult{
				SessionID: session, Branch: branch, Purpose: existing,
			}, nil
		}
		return nil, memerr.Conflict(
			fmt.Sprintf("branch %q already exists with a different purpose", branch),
			map[string]any{"branch": branch, "existing_purpose": existing},
		)
	}

	if err := repo.CheckoutBranch(ctx, branch); err != nil {
		return nil, err
	}
	if err := e.store.EnsureBranch(session, branch, purpose); err != nil {
		return nil, err
	}
	revision, err := repo.StageAndCommit(ctx, []string{
		storage.RelCheckpoint(branch),
		storage.RelLog(branch),
		storage.RelMetadata(branch),
	}, "GCC branch "+branch)
	if err != nil {
		return nil, err
	}
	e.logger.Info("branch created",
		zap.String("session", session), zap.String("branch", branch))
	return &BranchResult{
		SessionID: session, Branch: branch, Purpose: purpose,
		Created: true, RevisionID: revision,
	}, nil
}

// branchPurpose reads a branch's purpose from its committed checkpoint file
// header, falling back to the working tree when the branch tip has none.
func (e *Engine) branchPurpose(ctx context.Context, repo *gitrepo.Repo, session, branch string) (string, error) {
	if text, err := repo.Show(ctx, branch, storage.RelCheckpoint(branch)); err == nil {
		if purpose := checkpoint.HeaderPurpose(text); purpose != "" {
			return purpose, nil
		}
	}
	return e.store.BranchPurpose(session, branch)
}

// Commit records a checkpoint on a branch: appends the record to commit.md,
// appends any log entries, folds metadata updates, and optionally appends a
// roadmap note, all committed as one revision.
func (e *Engine) Commit(ctx context.Context, p CommitParams) (*CommitResult, error) {
	branch, err := e.limits.BranchName(p.Branch)
	if err != nil {
		return nil, err
	}
	contribution, err := e.limits.RequiredText("contribution", p.Contribution)
	if err != nil {
		return nil, err
	}
	updateMain, err := e.limits.Text("update_main", p.UpdateMain)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(p.LogEntries))
	for _, entry := range p.LogEntries {
		entry, err := e.limits.Text("log_entries", entry)
		if err != nil {
			return nil, err
		}
		if entry = e.limits.SanitizeLogEntry(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	session, err := e.requireSession(p.SessionID)
	if err != nil {
		return nil, err
	}

	token, err := e.locks.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(token)

	repo := e.repo(session)
	if err := e.requireBranch(ctx, repo, branch); err != nil {
		return nil, err
	}
	if err := repo.CheckoutBranch(ctx, branch); err != nil {
		return nil, err
	}

	purpose, err := e.store.BranchPurpose(session, branch)
	if err != nil {
		return nil, err
	}
	existing, err := e.store.ReadCheckpointFile(session, branch)
	if err != nil {
		return nil, err
	}
	rec := checkpoint.Record{
		ID:           checkpoint.NewID(),
		Timestamp:    checkpoint.Now(),
		Purpose:      purpose,
		PrevProgress: progressSnapshot(existing),
		Contribution: contribution,
	}
	if err := e.store.AppendCheckpoint(session, branch, rec); err != nil {
		return nil, err
	}
	if err := e.store.AppendLog(session, branch, entries); err != nil {
		return nil, err
	}
	if len(p.MetadataUpdates) > 0 {
		if _, err := e.store.MergeMetadata(session, branch, p.MetadataUpdates); err != nil {
			return nil, err
		}
	}
	if updateMain != "" {
		if err := e.store.AppendRoadmap(session, updateMain); err != nil {
			return nil, err
		}
	}

	revision, err := repo.StageAndCommit(ctx, []string{
		storage.RelCheckpoint(branch),
		storage.RelLog(branch),
		storage.RelMetadata(branch),
		storage.RelRoadmap(),
	}, commitSubject(branch, contribution))
	if err != nil {
		return nil, err
	}
	e.logger.Info("checkpoint committed",
		zap.String("session", session), zap.String("branch", branch),
		zap.String("commit_id", rec.ID))
	return &CommitResult{
		SessionID: session, Branch: branch,
		CheckpointID: rec.ID, RevisionID: revision,
	}, nil
}

// progressSnapshot summarizes work so far from the latest existing record:
// its own snapshot plus its contribution.
func progressSnapshot(checkpointFile string) string {
	records := checkpoint.Decode(checkpointFile)
	if len(records) == 0 {
		return ""
	}
	last := records[len(records)-1]
	parts := make([]string, 0, 2)
	if last.PrevProgress != "" {
		parts = append(parts, last.PrevProgress)
	}
	if last.Contribution != "" {
		parts = append(parts, last.Contribution)
	}
	return strings.Join(parts, "\n\n")
}

func commitSubject(branch, contribution string) string {
	subject := strings.SplitN(strings.TrimSpace(contribution), "\n", 2)[0]
	// Truncate on a rune boundary so a multi-byte character is never split.
	if runes := []rune(subject); len(runes) > 60 {
		subject = string(runes[:60])
	}
	return fmt.Sprintf("GCC commit %s: %s", branch, subject)
}

// Log appends timestamped entries to a branch's log file and commits them.
// An empty entry list changes nothing and produces no revision.
func (e *Engine) Log(ctx context.Context, p LogParams) (*LogResult, error) {
	branch, err := e.limits.BranchName(p.Branch)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(p.Entries))
	for _, entry := range p.Entries {
		entry, err := e.limits.Text("entries", entry)
		if err != nil {
			return nil, err
		}
		if entry = e.limits.SanitizeLogEntry(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	session, err := e.requireSession(p.SessionID)
	if err != nil {
		return nil, err
	}

	token, err := e.locks.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(token)

	repo := e.repo(session)
	if err := e.requireBranch(ctx, repo, branch); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &LogResult{SessionID: session, Branch: branch}, nil
	}
	if err := repo.CheckoutBranch(ctx, branch); err != nil {
		return nil, err
	}
	if err := e.store.AppendLog(session, branch, entries); err != nil {
		return nil, err
	}
	revision, err := repo.StageAndCommit(ctx,
		[]string{storage.RelLog(branch)}, "GCC log "+branch)
	if err != nil {
		return nil, err
	}
	return &LogResult{
		SessionID: session, Branch: branch,
		Entries: len(entries), RevisionID: revision,
	}, nil
}

// Merge folds a source branch into a target branch as a single merge
// revision: the version-control merge is staged without committing, the
// source's checkpoints, log, and metadata are folded into the target's
// files, and everything is committed together. On conflict the merge is
// aborted and both branches keep their pre-merge state.
func (e *Engine) Merge(ctx context.Context, p MergeParams) (*MergeResult, error) {
	source, err := e.limits.BranchName(p.SourceBranch)
	if err != nil {
		return nil, err
	}
	target := p.TargetBranch
	if target == "" {
		target = e.cfg.Git.DefaultBranch
	}
	target, err = e.limits.BranchName(target)
	if err != nil {
		return nil, err
	}
	if source == target {
		return nil, memerr.Validation("target_branch", "cannot merge a branch into itself")
	}
	summary, err := e.limits.Text("summary", p.Summary)
	if err != nil {
		return nil, err
	}
	session, err := e.requireSession(p.SessionID)
	if err != nil {
		return nil, err
	}

	token, err := e.locks.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(token)

	repo := e.repo(session)
	if err := e.requireBranch(ctx, repo, source); err != nil {
		return nil, err
	}

	// Fold content is read from the source branch tip before anything moves.
	sourceCheckpoints, err := repo.Show(ctx, source, storage.RelCheckpoint(source))
	if err != nil {
		return nil, err
	}
	sourceLog, _ := repo.Show(ctx, source, storage.RelLog(source))
	sourceMeta := map[string]any{}
	if raw, err := repo.Show(ctx, source, storage.RelMetadata(source)); err == nil {
		sourceMeta = storage.ParseMetadata(raw)
	}

	if err := repo.CheckoutBranch(ctx, target); err != nil {
		return nil, err
	}
	merged, err := repo.MergeNoCommit(ctx, source)
	if err != nil {
		return nil, err
	}
	if !merged {
		// The source is already part of the target. Folding again would
		// duplicate its checkpoints and log, so repeating a merge is a
		// no-op that reports the current target revision.
		revision, err := repo.ResolveRef(ctx, target)
		if err != nil {
			return nil, err
		}
		return &MergeResult{
			SessionID: session, SourceBranch: source, TargetBranch: target,
			RevisionID: revision,
		}, nil
	}
	if !e.store.BranchExists(session, target) {
		purpose := fmt.Sprintf("Merged work from %s", source)
		if err := e.store.EnsureBranch(session, target, purpose); err != nil {
			return nil, err
		}
	}

	banner := mergeBanner(source, summary)
	if strings.TrimSpace(stripHeader(sourceCheckpoints)) != "" {
		if err := e.store.AppendText(session,
			storage.RelCheckpoint(target), banner+stripHeader(sourceCheckpoints)); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(sourceLog) != "" {
		if err := e.store.AppendText(session, storage.RelLog(target), banner+sourceLog); err != nil {
			return nil, err
		}
	}
	if _, err := e.store.MergeMetadata(session, target, map[string]any{
		"merged_from": map[string]any{source: sourceMeta},
	}); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("Merged %s into %s", source, target)
	if summary != "" {
		note += ": " + summary
	}
	if err := e.store.AppendRoadmap(session, note); err != nil {
		return nil, err
	}

	revision, err := repo.StageAndCommit(ctx, []string{
		storage.RelCheckpoint(target),
		storage.RelLog(target),
		storage.RelMetadata(target),
		storage.RelRoadmap(),
	}, "GCC merge "+source+" -> "+target)
	if err != nil {
		return nil, err
	}
	e.logger.Info("branches merged",
		zap.String("session", session), zap.String("source", source),
		zap.String("target", target))
	return &MergeResult{
		SessionID: session, SourceBranch: source, TargetBranch: target,
		RevisionID: revision,
	}, nil
}

func mergeBanner(source, summary string) string {
	banner := fmt.Sprintf("== Merge from %s ==\n", source)
	if summary != "" {
		banner += summary + "\n"
	}
	return banner + "\n"
}

// stripHeader drops a checkpoint file's "# Branch:" header so folding does
// not duplicate it inside the target file.
func stripHeader(text string) string {
	idx := strings.Index(text, checkpoint.Delimiter)
	if idx < 0 {
		return ""
	}
	return text[idx:]
}

// History returns recent revisions, newest first. branch may be empty for
// the session's current branch. limit 0 means DefaultHistoryLimit.
func (e *Engine) History(ctx context.Context, sessionID, branch string, limit int) (*HistoryResult, error) {
	session, err := e.requireSession(sessionID)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	limit, err = e.limits.HistoryLimit(limit)
	if err != nil {
		return nil, err
	}
	repo := e.repo(session)
	if branch != "" {
		if branch, err = e.limits.BranchName(branch); err != nil {
			return nil, err
		}
		if err := e.requireBranch(ctx, repo, branch); err != nil {
			return nil, err
		}
	}
	commits, err := repo.Log(ctx, branch, limit)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{SessionID: session, Branch: branch, Commits: commits}, nil
}

// Diff returns the change summary between two refs, or between a ref and
// the working tree when to is empty.
func (e *Engine) Diff(ctx context.Context, sessionID, from, to string) (*DiffResult, error) {
	session, err := e.requireSession(sessionID)
	if err != nil {
		return nil, err
	}
	if from, err = e.limits.Ref(from); err != nil {
		return nil, err
	}
	if to != "" {
		if to, err = e.limits.Ref(to); err != nil {
			return nil, err
		}
	}
	diff, err := e.repo(session).Diff(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &DiffResult{SessionID: session, Diff: diff}, nil
}

// Show returns a memory file's content at a revision, or the whole revision
// when path is empty.
func (e *Engine) Show(ctx context.Context, sessionID, ref, path string) (*ShowResult, error) {
	session, err := e.requireSession(sessionID)
	if err != nil {
		return nil, err
	}
	if ref, err = e.limits.Ref(ref); err != nil {
		return nil, err
	}
	if path != "" {
		if path, err = e.limits.RelPath(path); err != nil {
			return nil, err
		}
		root := e.store.SessionDir(session)
		if err := validate.WithinRoot(root, filepath.Join(root, path)); err != nil {
			return nil, err
		}
	}
	content, err := e.repo(session).Show(ctx, ref, path)
	if err != nil {
		return nil, err
	}
	return &ShowResult{SessionID: session, Content: content}, nil
}

// Reset moves the session history to ref. Confirm must be set explicitly;
// it is checked immediately before the adapter call so no outer layer can
// default it to true.
func (e *Engine) Reset(ctx context.Context, p ResetParams) (*ResetResult, error) {
	mode, err := validate.ResetMode(p.Mode)
	if err != nil {
		return nil, err
	}
	ref, err := e.limits.Ref(p.Ref)
	if err != nil {
		return nil, err
	}
	session, err := e.requireSession(p.SessionID)
	if err != nil {
		return nil, err
	}

	token, err := e.locks.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(token)

	if !p.Confirm {
		return nil, memerr.Validation("confirm",
			"reset requires confirm=true; nothing was changed")
	}
	if err := e.repo(session).Reset(ctx, ref, mode); err != nil {
		return nil, err
	}
	e.logger.Info("history reset",
		zap.String("session", session), zap.String("ref", ref),
		zap.String("mode", mode))
	return &ResetResult{SessionID: session, Ref: ref, Mode: mode, OK: true}, nil
}
