// Package gitrepo wraps the external git binary as the version-control
// adapter for session repositories.
//
// Every invocation's arguments, exit status, and output are captured and
// appended to a git.log file inside the repository (best effort) and to the
// service logger. Failures surface as RepositoryError carrying only the
// operation name; raw stderr never leaves this package.
//
// All ref and branch arguments must already have passed validation. As a
// second line of defense, any user-derived argument beginning with "-" is
// rejected here so it can never be parsed as a git option.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"go.uber.org/zap"
)

// Identity is the committer identity and default branch for a repository.
type Identity struct {
	Name          string
	Email         string
	DefaultBranch string
}

// Commit is one entry of the revision history, newest first in Log results.
type Commit struct {
	Revision  string `json:"revision_id"`
	Timestamp int64  `json:"timestamp"`
	Subject   string `json:"message"`
}

// Repo is the adapter for one repository root (a session directory).
type Repo struct {
	root     string
	identity Identity
	logger   *zap.Logger
}

// New creates an adapter for the repository at root. logger may not be nil;
// pass zap.NewNop() to discard.
func New(root string, identity Identity, logger *zap.Logger) *Repo {
	return &Repo{root: root, identity: identity, logger: logger}
}

// Root returns the repository root directory.
func (r *Repo) Root() string { return r.root }

// Ensure initializes the repository if needed: git init on the default
// branch, committer identity, and an initial empty commit so refs exist.
func (r *Repo) Ensure(ctx context.Context) error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return memerr.Storage("ensure repository", err)
	}
	if _, err := os.Stat(filepath.Join(r.root, ".git")); os.IsNotExist(err) {
		if _, err := r.run(ctx, "init", "init", "-b", r.identity.DefaultBranch); err != nil {
			return err
		}
	}
	if err := r.ensureIdentity(ctx); err != nil {
		return err
	}
	return r.ensureInitialCommit(ctx)
}

func (r *Repo) ensureIdentity(ctx context.Context) error {
	if name, _ := r.run(ctx, "config", "config", "--get", "user.name"); name == "" {
		if _, err := r.run(ctx, "config", "config", "user.name", r.identity.Name); err != nil {
			return err
		}
	}
	if email, _ := r.run(ctx, "config", "config", "--get", "user.email"); email == "" {
		if _, err := r.run(ctx, "config", "config", "user.email", r.identity.Email); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) ensureInitialCommit(ctx context.Context) error {
	if head, _ := r.run(ctx, "init", "rev-parse", "--verify", "HEAD"); head != "" {
		return nil
	}
	// Nothing is staged here: memory files are always committed by explicit
	// path, so the lock file and git.log stay untracked.
	_, err := r.run(ctx, "init", "commit", "--allow-empty", "-m", "GCC init")
	return err
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "branch", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "" {
		return r.identity.DefaultBranch, nil
	}
	return out, nil
}

// BranchExists reports whether the named branch exists.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	if err := guard(name); err != nil {
		return false, err
	}
	out, err := r.run(ctx, "branch", "branch", "--list", "--format=%(refname:short)", name)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Branches returns all local branch names, sorted by git's default order.
func (r *Repo) Branches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "branch", "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ResolveRef resolves a ref (branch name, revision id, HEAD expression) to a
// full revision id.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, error) {
	if err := guard(ref); err != nil {
		return "", err
	}
	return r.run(ctx, "rev-parse", "rev-parse", "--verify", ref+"^{commit}")
}

// CheckoutBranch switches to the branch, creating it from the current HEAD
// if it does not exist yet. An existing branch is never reset.
func (r *Repo) CheckoutBranch(ctx context.Context, name string) error {
	if err := guard(name); err != nil {
		return err
	}
	if _, err := r.run(ctx, "checkout", "checkout", name); err == nil {
		return nil
	}
	_, err := r.run(ctx, "checkout", "checkout", "-b", name)
	return err
}

// StageAndCommit stages the given repo-relative paths and commits them as
// one revision, returning the new revision id. If the staged diff is empty
// no commit is created and the returned revision is "" — an intentional
// no-op, not an error.
func (r *Repo) StageAndCommit(ctx context.Context, paths []string, message string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := r.run(ctx, "stage", args...); err != nil {
		return "", err
	}
	// diff --cached --quiet exits 1 when there is something to commit.
	if _, err := r.run(ctx, "stage", "diff", "--cached", "--quiet"); err == nil {
		return "", nil
	}
	if _, err := r.run(ctx, "commit", "commit", "-m", message); err != nil {
		return "", err
	}
	return r.Head(ctx)
}

// Head resolves the current HEAD revision id.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "rev-parse", "HEAD")
}

// Log returns up to limit commits, newest first. branch may be "" for the
// current branch.
func (r *Repo) Log(ctx context.Context, branch string, limit int) ([]Commit, error) {
	args := []string{"log", "-n" + strconv.Itoa(limit), "--pretty=format:%H|%ct|%s"}
	if branch != "" {
		if err := guard(branch); err != nil {
			return nil, err
		}
		args = append(args, branch)
	}
	args = append(args, "--")
	out, err := r.run(ctx, "log", args...)
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		ts, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{Revision: parts[0], Timestamp: ts, Subject: parts[2]})
	}
	return commits, nil
}

// Diff returns the textual diff between two refs. to may be "" to diff
// from against the working tree.
func (r *Repo) Diff(ctx context.Context, from, to string) (string, error) {
	if err := guard(from, to); err != nil {
		return "", err
	}
	args := []string{"diff"}
	if to != "" {
		args = append(args, from+".."+to)
	} else {
		args = append(args, from)
	}
	return r.run(ctx, "diff", args...)
}

// Show returns a file's content at a revision, or the whole revision when
// path is "".
func (r *Repo) Show(ctx context.Context, ref, path string) (string, error) {
	if err := guard(ref, path); err != nil {
		return "", err
	}
	spec := ref
	if path != "" {
		spec = ref + ":" + path
	}
	return r.run(ctx, "show", "show", spec)
}

// Merge merges source into the currently checked-out branch with --no-ff
// and returns the merge revision. On failure the merge is aborted so both
// branches keep their pre-merge state.
func (r *Repo) Merge(ctx context.Context, source, message string) (string, error) {
	if err := guard(source); err != nil {
		return "", err
	}
	if _, err := r.run(ctx, "merge", "merge", "--no-ff", source, "-m", message); err != nil {
		r.run(ctx, "merge", "merge", "--abort") //nolint:errcheck // best-effort rollback
		return "", err
	}
	return r.Head(ctx)
}

// MergeNoCommit merges source into the currently checked-out branch with
// --no-ff --no-commit, leaving the merge staged so additional content can join
// the merge revision. On conflict the merge is aborted and both branches keep
// their pre-merge state. A merge with nothing to do is not an error; it
// returns false so callers can skip follow-up work.
func (r *Repo) MergeNoCommit(ctx context.Context, source string) (bool, error) {
	if err := guard(source); err != nil {
		return false, err
	}
	if _, err := r.run(ctx, "merge", "merge", "--no-ff", "--no-commit", source); err != nil {
		r.run(ctx, "merge", "merge", "--abort") //nolint:errcheck // best-effort rollback
		return false, err
	}
	// An up-to-date merge exits cleanly without leaving MERGE_HEAD behind.
	if _, err := os.Stat(filepath.Join(r.root, ".git", "MERGE_HEAD")); err != nil {
		return false, nil
	}
	return true, nil
}

// Reset moves the history pointer to ref. mode is soft, mixed, or hard;
// hard also discards uncommitted file changes.
func (r *Repo) Reset(ctx context.Context, ref, mode string) error {
	if err := guard(ref); err != nil {
		return err
	}
	switch mode {
	case "soft", "mixed", "hard":
	default:
		return memerr.Validation("mode", "invalid reset mode")
	}
	_, err := r.run(ctx, "reset", "reset", "--"+mode, ref)
	return err
}

// guard rejects user-derived arguments that could be parsed as options.
func guard(args ...string) error {
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			return memerr.Validation("ref", "argument may not begin with '-'")
		}
	}
	return nil
}

// run executes git with the given arguments in the repository root. op names
// the adapter operation for error reporting. Trailing whitespace is trimmed
// from stdout.
func (r *Repo) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exit := 0
	if err != nil {
		exit = -1
		if ee, ok := err.(*exec.ExitError); ok {
			exit = ee.ExitCode()
		}
	}
	r.appendOpLog(args, exit, stdout.String(), stderr.String())
	r.logger.Debug("git invocation",
		zap.Strings("args", args),
		zap.Int("exit", exit),
		zap.String("repo", r.root),
	)

	if err != nil {
		cause := fmt.Errorf("git %s (exit %d): %s", strings.Join(args, " "), exit,
			strings.TrimSpace(stderr.String()))
		return "", memerr.Repository(op, cause)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// appendOpLog records the invocation in the repository's git.log. Logging
// failures never disturb the operation itself.
func (r *Repo) appendOpLog(args []string, exit int, stdout, stderr string) {
	lines := []string{
		fmt.Sprintf("[%s] git %s", time.Now().UTC().Format(time.RFC3339), strings.Join(args, " ")),
		fmt.Sprintf("exit=%d", exit),
	}
	if stdout != "" {
		lines = append(lines, "stdout:", strings.TrimRight(stdout, "\n"))
	}
	if stderr != "" {
		lines = append(lines, "stderr:", strings.TrimRight(stderr, "\n"))
	}
	lines = append(lines, "", "")

	f, err := os.OpenFile(filepath.Join(r.root, "git.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.logger.Warn("git.log append failed", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n")); err != nil {
		r.logger.Warn("git.log append failed", zap.Error(err))
	}
}
