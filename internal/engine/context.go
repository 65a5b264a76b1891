package engine

import (
	"context"
	"strings"

	"github.com/ZUENS2020/gcc-mem-system/internal/checkpoint"
	"github.com/ZUENS2020/gcc-mem-system/internal/gitrepo"
	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"github.com/ZUENS2020/gcc-mem-system/internal/storage"
)

// Context resolves one retrieval granularity, most specific first: a single
// checkpoint, a log tail, a metadata segment, a branch view, or the session
// overview. The narrowing selectors all require a branch; asking for one
// without it is a validation error. Branch-scoped views read every file at
// the branch tip revision so a concurrent commit can never produce a mixed
// snapshot.
func (e *Engine) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	session, err := e.requireSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	if p.LogTail < 0 {
		return nil, memerr.Validation("log_tail", "log_tail cannot be negative")
	}
	narrowing := p.CommitID != "" || p.LogTail > 0 || p.MetadataSegment != ""
	if narrowing && p.Branch == "" {
		return nil, memerr.Validation("branch",
			"commit_id, log_tail, and metadata_segment require a branch")
	}

	repo := e.repo(session)
	result := &ContextResult{SessionID: session}

	if p.Branch == "" {
		overview, err := e.overviewView(ctx, repo, session)
		if err != nil {
			return nil, err
		}
		result.Overview = overview
		return result, nil
	}

	branch, err := e.limits.BranchName(p.Branch)
	if err != nil {
		return nil, err
	}
	if err := e.requireBranch(ctx, repo, branch); err != nil {
		return nil, err
	}
	rev, err := repo.ResolveRef(ctx, branch)
	if err != nil {
		return nil, err
	}

	switch {
	case p.CommitID != "":
		view, err := e.checkpointView(ctx, repo, rev, branch, p.CommitID)
		if err != nil {
			return nil, err
		}
		result.Checkpoint = view
	case p.LogTail > 0:
		n, err := e.limits.HistoryLimit(p.LogTail)
		if err != nil {
			return nil, err
		}
		text, _ := repo.Show(ctx, rev, storage.RelLog(branch))
		result.LogTail = tailLines(text, n)
	case p.MetadataSegment != "":
		view, err := e.metadataView(ctx, repo, rev, branch, p.MetadataSegment)
		if err != nil {
			return nil, err
		}
		result.Metadata = view
	default:
		view, err := e.branchView(ctx, repo, rev, branch)
		if err != nil {
			return nil, err
		}
		result.Branch = view
	}
	return result, nil
}

// overviewView is the widest granularity: roadmap goal and checklist plus
// the branch names.
func (e *Engine) overviewView(ctx context.Context, repo *gitrepo.Repo, session string) (*OverviewView, error) {
	roadmap, _, err := e.store.ReadRoadmap(session)
	if err != nil {
		return nil, err
	}
	branches, err := repo.Branches(ctx)
	if err != nil {
		return nil, err
	}
	view := &OverviewView{Goal: roadmap.Goal, Branches: branches}
	for _, item := range roadmap.Todo {
		view.Todo = append(view.Todo, TodoView{Text: item.Text, Done: item.Done})
	}
	return view, nil
}

func (e *Engine) branchView(ctx context.Context, repo *gitrepo.Repo, rev, branch string) (*BranchView, error) {
	text, err := repo.Show(ctx, rev, storage.RelCheckpoint(branch))
	if err != nil {
		return nil, err
	}
	meta := map[string]any{}
	if raw, err := repo.Show(ctx, rev, storage.RelMetadata(branch)); err == nil {
		meta = storage.ParseMetadata(raw)
	}
	return &BranchView{
		Name:        branch,
		Purpose:     checkpoint.HeaderPurpose(text),
		Checkpoints: checkpoint.Decode(text),
		Metadata:    meta,
		RevisionID:  rev,
	}, nil
}

// checkpointView finds one record by checkpoint id at the branch tip. When
// the id also resolves as a revision, the record is looked up in the file
// as of that revision first.
func (e *Engine) checkpointView(ctx context.Context, repo *gitrepo.Repo, rev, branch, commitID string) (*CheckpointView, error) {
	commitID = strings.TrimSpace(commitID)
	if _, err := e.limits.Ref(commitID); err != nil {
		return nil, err
	}
	if oldRev, err := repo.ResolveRef(ctx, commitID); err == nil {
		if text, err := repo.Show(ctx, oldRev, storage.RelCheckpoint(branch)); err == nil {
			if rec, ok := checkpoint.Find(text, commitID); ok {
				return &CheckpointView{Record: rec, Raw: checkpoint.Encode(rec)}, nil
			}
			// A revision snapshot without a matching id: take the newest
			// record the snapshot contains.
			if records := checkpoint.Decode(text); len(records) > 0 {
				rec := records[len(records)-1]
				return &CheckpointView{Record: rec, Raw: checkpoint.Encode(rec)}, nil
			}
		}
	}
	text, err := repo.Show(ctx, rev, storage.RelCheckpoint(branch))
	if err != nil {
		return nil, err
	}
	rec, ok := checkpoint.Find(text, commitID)
	if !ok {
		return nil, memerr.Validation("commit_id",
			"no checkpoint with id "+commitID+" on branch "+branch)
	}
	return &CheckpointView{Record: rec, Raw: checkpoint.Encode(rec)}, nil
}

func (e *Engine) metadataView(ctx context.Context, repo *gitrepo.Repo, rev, branch, key string) (*MetadataView, error) {
	meta := map[string]any{}
	if raw, err := repo.Show(ctx, rev, storage.RelMetadata(branch)); err == nil {
		meta = storage.ParseMetadata(raw)
	}
	value, found := lookupSegment(meta, key)
	return &MetadataView{Key: key, Value: value, Found: found}, nil
}

// lookupSegment resolves a dotted key path through nested metadata maps.
func lookupSegment(meta map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var current any = meta
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// tailLines returns the last n lines of text, ignoring a trailing newline.
func tailLines(text string, n int) []string {
	trimmed := strings.TrimRight(text, "\n")
	if trimmed == "" {
		return nil
	}
	lines := strings.Split(trimmed, "\n")
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return lines
}
