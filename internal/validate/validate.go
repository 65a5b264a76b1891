// Package validate holds the pure input validators applied before any lock
// is taken or file is touched.
//
// Identifier rules are strict because session ids and branch names are later
// used both as directory path segments and as version-control ref names: the
// charset alone already excludes path and shell metacharacters, and the
// explicit traversal checks are kept anyway as defense in depth.
package validate

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
)

// DefaultSession is the session id substituted for an empty one.
const DefaultSession = "default"

var (
	branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	sessionIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	refPattern        = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_./~^-]*$`)
	controlChars      = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// reservedRefNames are special git names a branch must never shadow.
var reservedRefNames = map[string]bool{
	"HEAD":       true,
	"ORIG_HEAD":  true,
	"FETCH_HEAD": true,
	"MERGE_HEAD": true,
}

// Limits carries the configured bounds the validators enforce.
type Limits struct {
	MaxIDLength     int
	MaxStringLength int
	MinLimit        int
	MaxLimit        int
}

// SessionID validates and normalizes a session identifier. An empty id
// normalizes to DefaultSession.
func (l Limits) SessionID(id string) (string, error) {
	if id == "" {
		return DefaultSession, nil
	}
	if err := l.identifier("session_id", id); err != nil {
		return "", err
	}
	return id, nil
}

// BranchName validates a branch name. Unlike session ids there is no
// default: an empty name is an error.
func (l Limits) BranchName(name string) (string, error) {
	if name == "" {
		return "", memerr.Validation("branch", "branch name cannot be empty")
	}
	if err := l.identifier("branch", name); err != nil {
		return "", err
	}
	if reservedRefNames[name] {
		return "", memerr.Validation("branch", "branch name is reserved by git")
	}
	return name, nil
}

func (l Limits) identifier(field, value string) error {
	if hasTraversal(value) {
		return memerr.Validation(field, "path traversal sequences are not allowed")
	}
	if len(value) > l.MaxIDLength {
		return memerr.Validation(field, "identifier too long")
	}
	pattern := sessionIDPattern
	if field == "branch" {
		pattern = branchNamePattern
	}
	if !pattern.MatchString(value) {
		return memerr.Validation(field,
			"must start with an alphanumeric character and contain only alphanumerics, '-' or '_'")
	}
	return nil
}

// Ref validates a version-control reference (revision id, branch name,
// relative ref like main~2).
func (l Limits) Ref(ref string) (string, error) {
	if ref == "" {
		return "", memerr.Validation("ref", "ref cannot be empty")
	}
	if len(ref) > 1000 {
		return "", memerr.Validation("ref", "ref too long")
	}
	if hasTraversal(ref) {
		return "", memerr.Validation("ref", "path traversal sequences are not allowed")
	}
	if !refPattern.MatchString(ref) {
		return "", memerr.Validation("ref", "ref contains invalid characters")
	}
	return ref, nil
}

// RelPath validates a repo-relative file path passed to show.
func (l Limits) RelPath(path string) (string, error) {
	if path == "" {
		return "", memerr.Validation("path", "path cannot be empty")
	}
	if len(path) > l.MaxStringLength {
		return "", memerr.Validation("path", "path too long")
	}
	if strings.HasPrefix(path, "/") || hasTraversal(path) {
		return "", memerr.Validation("path", "path must be relative and contain no traversal sequences")
	}
	return filepath.ToSlash(filepath.Clean(path)), nil
}

// HistoryLimit validates a history/tail limit parameter against the
// configured [MinLimit, MaxLimit] range.
func (l Limits) HistoryLimit(n int) (int, error) {
	if n < l.MinLimit {
		return 0, memerr.Validation("limit", "limit below minimum")
	}
	if n > l.MaxLimit {
		return 0, memerr.Validation("limit", "limit above maximum")
	}
	return n, nil
}

// Text validates a free-text field. Only length is bounded; content is
// unrestricted.
func (l Limits) Text(field, value string) (string, error) {
	if len(value) > l.MaxStringLength {
		return "", memerr.Validation(field, "value too long")
	}
	return value, nil
}

// RequiredText validates a free-text field that must be non-empty.
func (l Limits) RequiredText(field, value string) (string, error) {
	if value == "" {
		return "", memerr.Validation(field, field+" cannot be empty")
	}
	return l.Text(field, value)
}

// SanitizeLogEntry strips control characters (keeping tabs and newlines)
// and truncates to the configured maximum. Log entries are sanitized rather
// than rejected so a noisy caller cannot lose an otherwise valid batch.
func (l Limits) SanitizeLogEntry(entry string) string {
	clean := controlChars.ReplaceAllString(entry, "")
	if len(clean) > l.MaxStringLength {
		clean = clean[:l.MaxStringLength]
	}
	return clean
}

// ResetMode validates a reset mode.
func ResetMode(mode string) (string, error) {
	switch mode {
	case "soft", "mixed", "hard":
		return mode, nil
	}
	return "", memerr.Validation("mode", "reset mode must be 'soft', 'mixed', or 'hard'")
}

// WithinRoot re-verifies that path, once resolved, is a descendant of root.
// Callers use it after the syntactic checks above; both must hold.
func WithinRoot(root, path string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return memerr.Validation("path", "invalid data root")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return memerr.Validation("path", "invalid path")
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return memerr.Validation("path", "path escapes the data root")
	}
	return nil
}

func hasTraversal(s string) bool {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "\\") {
		return true
	}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return strings.Contains(s, "~/")
}
