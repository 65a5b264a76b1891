package engine

import (
	"github.com/ZUENS2020/gcc-mem-system/internal/checkpoint"
	"github.com/ZUENS2020/gcc-mem-system/internal/gitrepo"
)

// InitParams configures session initialization. An empty SessionID asks the
// engine to generate one.
type InitParams struct {
	SessionID string   `json:"session_id,omitempty"`
	Goal      string   `json:"goal,omitempty"`
	Todo      []string `json:"todo,omitempty"`
}

// InitResult reports the (possibly generated) session id and the revision
// created, if any.
type InitResult struct {
	SessionID  string `json:"session_id"`
	RevisionID string `json:"revision_id,omitempty"`
}

// BranchParams configures branch creation.
type BranchParams struct {
	SessionID string `json:"session_id,omitempty"`
	Branch    string `json:"branch"`
	Purpose   string `json:"purpose"`
}

// BranchResult reports the created (or already existing) branch.
type BranchResult struct {
	SessionID  string `json:"session_id"`
	Branch     string `json:"branch"`
	Purpose    string `json:"purpose"`
	Created    bool   `json:"created"`
	RevisionID string `json:"revision_id,omitempty"`
}

// CommitParams configures a checkpoint commit.
type CommitParams struct {
	SessionID       string         `json:"session_id,omitempty"`
	Branch          string         `json:"branch"`
	Contribution    string         `json:"contribution"`
	LogEntries      []string       `json:"log_entries,omitempty"`
	MetadataUpdates map[string]any `json:"metadata_updates,omitempty"`
	UpdateMain      string         `json:"update_main,omitempty"`
}

// CommitResult reports the new checkpoint and its revision.
type CommitResult struct {
	SessionID    string `json:"session_id"`
	Branch       string `json:"branch"`
	CheckpointID string `json:"commit_id"`
	RevisionID   string `json:"revision_id"`
}

// LogParams configures a log append.
type LogParams struct {
	SessionID string   `json:"session_id,omitempty"`
	Branch    string   `json:"branch"`
	Entries   []string `json:"entries"`
}

// LogResult reports the appended entries and the revision, if one was made.
type LogResult struct {
	SessionID  string `json:"session_id"`
	Branch     string `json:"branch"`
	Entries    int    `json:"entries"`
	RevisionID string `json:"revision_id,omitempty"`
}

// MergeParams configures a branch merge. An empty TargetBranch merges into
// the session's default branch.
type MergeParams struct {
	SessionID    string `json:"session_id,omitempty"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// MergeResult reports the merge revision.
type MergeResult struct {
	SessionID    string `json:"session_id"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	RevisionID   string `json:"revision_id"`
}

// ContextParams selects a retrieval granularity. Exactly one view is
// returned: commit id, log tail, metadata segment, branch detail, or the
// session overview, in decreasing specificity.
type ContextParams struct {
	SessionID       string `json:"session_id,omitempty"`
	Branch          string `json:"branch,omitempty"`
	CommitID        string `json:"commit_id,omitempty"`
	LogTail         int    `json:"log_tail,omitempty"`
	MetadataSegment string `json:"metadata_segment,omitempty"`
}

// ContextResult is the structured view produced by Context. Exactly one of
// the view fields is populated.
type ContextResult struct {
	SessionID string `json:"session_id"`

	Overview   *OverviewView   `json:"overview,omitempty"`
	Branch     *BranchView     `json:"branch,omitempty"`
	Checkpoint *CheckpointView `json:"checkpoint,omitempty"`
	LogTail    []string        `json:"log_tail,omitempty"`
	Metadata   *MetadataView   `json:"metadata,omitempty"`
}

// OverviewView is the session-level granularity: goal, todo, branch names.
type OverviewView struct {
	Goal     string     `json:"goal"`
	Todo     []TodoView `json:"todo"`
	Branches []string   `json:"branches"`
}

// TodoView is one roadmap checklist entry.
type TodoView struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// BranchView is the branch granularity: purpose, full checkpoint list, and
// current metadata, read from one consistent revision.
type BranchView struct {
	Name        string              `json:"name"`
	Purpose     string              `json:"purpose"`
	Checkpoints []checkpoint.Record `json:"checkpoints"`
	Metadata    map[string]any      `json:"metadata"`
	RevisionID  string              `json:"revision_id"`
}

// CheckpointView is the single-checkpoint granularity.
type CheckpointView struct {
	Record checkpoint.Record `json:"record"`
	Raw    string            `json:"raw"`
}

// MetadataView is the metadata-segment granularity.
type MetadataView struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// HistoryResult is an ordered slice of revisions, newest first.
type HistoryResult struct {
	SessionID string           `json:"session_id"`
	Branch    string           `json:"branch,omitempty"`
	Commits   []gitrepo.Commit `json:"commits"`
}

// DiffResult carries a textual change summary between two refs.
type DiffResult struct {
	SessionID string `json:"session_id"`
	Diff      string `json:"diff"`
}

// ShowResult carries file content at a revision.
type ShowResult struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// ResetParams configures a history reset. Confirm must be true; Hard mode
// additionally discards uncommitted changes.
type ResetParams struct {
	SessionID string `json:"session_id,omitempty"`
	Ref       string `json:"ref"`
	Mode      string `json:"mode"`
	Confirm   bool   `json:"confirm"`
}

// ResetResult reports a completed reset.
type ResetResult struct {
	SessionID string `json:"session_id"`
	Ref       string `json:"ref"`
	Mode      string `json:"mode"`
	OK        bool   `json:"ok"`
}
