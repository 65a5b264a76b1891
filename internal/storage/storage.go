// Package storage owns the on-disk representation of sessions and branches.
//
// Layout under the data root:
//
//	sessions/<session>/main.md                     roadmap (goal + checklist)
//	sessions/<session>/branches/<b>/commit.md      delimited checkpoint records
//	sessions/<session>/branches/<b>/log.md         chronological log entries
//	sessions/<session>/branches/<b>/metadata.yaml  key-value mapping
//
// Storage knows nothing about locking or version control; it only reads and
// writes files. Whole-file writes go to a temporary path and are renamed
// into place so a failure never leaves a half-written file. Checkpoint and
// log files are append-only.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZUENS2020/gcc-mem-system/internal/checkpoint"
	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"gopkg.in/yaml.v3"
)

const (
	// SessionsDir is the subdirectory of the data root holding all sessions.
	SessionsDir = "sessions"
	// BranchesDir is the subdirectory of a session holding its branches.
	BranchesDir = "branches"
	// RoadmapFile is the session roadmap filename.
	RoadmapFile = "main.md"
	// CheckpointFile is the per-branch checkpoint filename.
	CheckpointFile = "commit.md"
	// LogFile is the per-branch log filename.
	LogFile = "log.md"
	// MetadataFile is the per-branch metadata filename.
	MetadataFile = "metadata.yaml"
)

// Store reads and writes the four memory-file kinds under a data root.
type Store struct {
	root string
}

// New creates a Store rooted at the given data directory.
func New(root string) *Store {
	return &Store{root: root}
}

// --- Path layout ---

// SessionDir returns the absolute directory of a session; it is also the
// session's version-control repository root.
func (s *Store) SessionDir(session string) string {
	return filepath.Join(s.root, SessionsDir, session)
}

func (s *Store) branchesDir(session string) string {
	return filepath.Join(s.SessionDir(session), BranchesDir)
}

// BranchDir returns the absolute directory of a branch.
func (s *Store) BranchDir(session, branch string) string {
	return filepath.Join(s.branchesDir(session), branch)
}

// RoadmapPath returns the absolute path of a session's main.md.
func (s *Store) RoadmapPath(session string) string {
	return filepath.Join(s.SessionDir(session), RoadmapFile)
}

// CheckpointPath returns the absolute path of a branch's commit.md.
func (s *Store) CheckpointPath(session, branch string) string {
	return filepath.Join(s.BranchDir(session, branch), CheckpointFile)
}

// LogPath returns the absolute path of a branch's log.md.
func (s *Store) LogPath(session, branch string) string {
	return filepath.Join(s.BranchDir(session, branch), LogFile)
}

// MetadataPath returns the absolute path of a branch's metadata.yaml.
func (s *Store) MetadataPath(session, branch string) string {
	return filepath.Join(s.BranchDir(session, branch), MetadataFile)
}

// Repo-relative paths, used when staging files with the version-control
// adapter (whose root is the session directory).

// RelRoadmap is the roadmap path relative to the session repository.
func RelRoadmap() string { return RoadmapFile }

// RelCheckpoint is a branch's checkpoint path relative to the session repository.
func RelCheckpoint(branch string) string {
	return filepath.ToSlash(filepath.Join(BranchesDir, branch, CheckpointFile))
}

// RelLog is a branch's log path relative to the session repository.
func RelLog(branch string) string {
	return filepath.ToSlash(filepath.Join(BranchesDir, branch, LogFile))
}

// RelMetadata is a branch's metadata path relative to the session repository.
func RelMetadata(branch string) string {
	return filepath.ToSlash(filepath.Join(BranchesDir, branch, MetadataFile))
}

// --- Session lifecycle ---

// SessionExists reports whether the session directory has been initialized.
func (s *Store) SessionExists(session string) bool {
	info, err := os.Stat(s.SessionDir(session))
	return err == nil && info.IsDir()
}

// EnsureSession creates the session directory tree and, if main.md does not
// exist yet, writes the initial roadmap. Existing roadmaps are left alone.
func (s *Store) EnsureSession(session string, goal string, todo []string) error {
	if err := os.MkdirAll(s.branchesDir(session), 0o755); err != nil {
		return memerr.Storage("ensure session", err)
	}
	if _, err := os.Stat(s.RoadmapPath(session)); err == nil {
		return nil
	}
	roadmap := Roadmap{Goal: goal}
	for _, item := range todo {
		roadmap.Todo = append(roadmap.Todo, TodoItem{Text: item})
	}
	return s.WriteRoadmap(session, roadmap)
}

// --- Branches ---

// BranchExists reports whether the branch directory exists.
func (s *Store) BranchExists(session, branch string) bool {
	info, err := os.Stat(s.BranchDir(session, branch))
	return err == nil && info.IsDir()
}

// ListBranches returns the session's branch names, sorted. A session with
// no branches directory yields an empty list.
func (s *Store) ListBranches(session string) ([]string, error) {
	entries, err := os.ReadDir(s.branchesDir(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, memerr.Storage("list branches", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// EnsureBranch creates the branch directory and its three files if absent:
// commit.md with the branch/purpose header, an empty log.md, and an empty
// metadata.yaml mapping.
func (s *Store) EnsureBranch(session, branch, purpose string) error {
	dir := s.BranchDir(session, branch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return memerr.Storage("ensure branch", err)
	}
	cp := s.CheckpointPath(session, branch)
	if _, err := os.Stat(cp); os.IsNotExist(err) {
		if err := s.writeAtomic(cp, checkpoint.Header(branch, purpose)); err != nil {
			return err
		}
	}
	lp := s.LogPath(session, branch)
	if _, err := os.Stat(lp); os.IsNotExist(err) {
		if err := s.writeAtomic(lp, ""); err != nil {
			return err
		}
	}
	mp := s.MetadataPath(session, branch)
	if _, err := os.Stat(mp); os.IsNotExist(err) {
		if err := s.writeAtomic(mp, "{}\n"); err != nil {
			return err
		}
	}
	return nil
}

// BranchPurpose reads the purpose recorded in a branch's commit.md header.
func (s *Store) BranchPurpose(session, branch string) (string, error) {
	text, err := s.ReadCheckpointFile(session, branch)
	if err != nil {
		return "", err
	}
	return checkpoint.HeaderPurpose(text), nil
}

// --- Checkpoints ---

// ReadCheckpointFile returns the raw commit.md content. A missing file
// reads as empty.
func (s *Store) ReadCheckpointFile(session, branch string) (string, error) {
	data, err := os.ReadFile(s.CheckpointPath(session, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", memerr.Storage("read checkpoints", err)
	}
	return string(data), nil
}

// AppendCheckpoint appends one encoded record to a branch's commit.md.
// Existing records are never rewritten.
func (s *Store) AppendCheckpoint(session, branch string, rec checkpoint.Record) error {
	return s.appendText(s.CheckpointPath(session, branch), checkpoint.Encode(rec), "append checkpoint")
}

// --- Logs ---

// AppendLog appends a timestamped block of log entries to a branch's
// log.md. Zero entries is a no-op.
func (s *Store) AppendLog(session, branch string, entries []string) error {
	if len(entries) == 0 {
		return nil
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	lines := make([]string, 0, len(entries)+2)
	lines = append(lines, fmt.Sprintf("[%s]", stamp))
	for _, e := range entries {
		lines = append(lines, "- "+e)
	}
	lines = append(lines, "", "")
	return s.appendText(s.LogPath(session, branch), strings.Join(lines, "\n"), "append log")
}

// ReadLogTail returns the last n lines of a branch's log.md. A missing
// file reads as empty; n <= 0 yields nothing.
func (s *Store) ReadLogTail(session, branch string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	data, err := os.ReadFile(s.LogPath(session, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, memerr.Storage("read log", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// --- Metadata ---

// ReadMetadata returns a branch's metadata mapping. A missing or empty
// file reads as an empty map.
func (s *Store) ReadMetadata(session, branch string) (map[string]any, error) {
	data, err := os.ReadFile(s.MetadataPath(session, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, memerr.Storage("read metadata", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, memerr.Storage("parse metadata", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// MergeMetadata deep-merges updates into a branch's metadata and writes the
// result back in full. Returns the merged mapping.
func (s *Store) MergeMetadata(session, branch string, updates map[string]any) (map[string]any, error) {
	current, err := s.ReadMetadata(session, branch)
	if err != nil {
		return nil, err
	}
	merged := DeepMerge(current, updates)
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, memerr.Storage("encode metadata", err)
	}
	if err := s.writeAtomic(s.MetadataPath(session, branch), string(data)); err != nil {
		return nil, err
	}
	return merged, nil
}

// ParseMetadata decodes a metadata document. Unparseable or empty input
// yields an empty map.
func ParseMetadata(text string) map[string]any {
	out := map[string]any{}
	if err := yaml.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// --- File primitives ---

// AppendText appends raw content to a session-relative file, creating it if
// needed.
func (s *Store) AppendText(session, rel, content string) error {
	return s.appendText(filepath.Join(s.SessionDir(session), rel), content, "append file")
}

func (s *Store) writeAtomic(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return memerr.Storage("write file", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return memerr.Storage("write file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return memerr.Storage("write file", err)
	}
	return nil
}

func (s *Store) appendText(path, content, op string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return memerr.Storage(op, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return memerr.Storage(op, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return memerr.Storage(op, err)
	}
	return nil
}
