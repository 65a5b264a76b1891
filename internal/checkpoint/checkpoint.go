// Package checkpoint encodes and decodes the delimited checkpoint records
// stored in a branch's commit.md.
//
// The file is append-only: a header naming the branch and its purpose,
// followed by zero or more records each introduced by the Delimiter line.
// Records are immutable once written; Decode reconstructs them in file
// order so callers can rebuild the exact append sequence.
package checkpoint

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Delimiter introduces each checkpoint record inside commit.md.
const Delimiter = "=== Commit ==="

const noneBlock = "(none)"

// Field labels inside a record. Commit ID and Timestamp are single-line;
// the rest are multi-line blocks running until the next label or record.
const (
	labelID           = "Commit ID:"
	labelTimestamp    = "Timestamp:"
	labelPurpose      = "Branch Purpose:"
	labelPrevProgress = "Previous Progress Summary:"
	labelContribution = "This Commit's Contribution:"
)

// Record is one immutable unit of contributed work.
type Record struct {
	ID           string `json:"commit_id"`     // engine-assigned, stable across resets
	Timestamp    string `json:"timestamp"`     // RFC3339 UTC
	Purpose      string `json:"purpose"`       // branch purpose at creation time, denormalized
	PrevProgress string `json:"prev_progress"` // snapshot of preceding progress, may be empty
	Contribution string `json:"contribution"`
}

// NewID returns a fresh checkpoint id (8 hex characters).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Now returns the canonical timestamp format for new records.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Header renders the file header for a new branch's commit.md.
func Header(branch, purpose string) string {
	return "# Branch: " + branch + "\n# Purpose: " + purpose + "\n\n"
}

// HeaderPurpose extracts the branch purpose from a commit.md header.
// Returns "" if the header is absent.
func HeaderPurpose(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(line, "# Purpose:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// Encode renders a record, including its leading delimiter and a trailing
// blank line. An empty PrevProgress encodes as "(none)".
func Encode(r Record) string {
	prev := r.PrevProgress
	if prev == "" {
		prev = noneBlock
	}
	lines := []string{
		Delimiter,
		labelID + " " + r.ID,
		labelTimestamp + " " + r.Timestamp,
		labelPurpose,
		r.Purpose,
		labelPrevProgress,
		prev,
		labelContribution,
		r.Contribution,
		"",
	}
	return strings.Join(lines, "\n")
}

// Decode parses every record in a commit.md body, in file order. Content
// before the first delimiter (the header) is ignored. Malformed fragments
// decode to partially filled records rather than failing: the file is
// caller-appended and must stay readable even after an interrupted write.
func Decode(text string) []Record {
	var records []Record
	parts := splitRecords(text)
	for _, part := range parts {
		records = append(records, decodeOne(part))
	}
	return records
}

// Find returns the record with the given id and true, or a zero Record and
// false.
func Find(text, id string) (Record, bool) {
	for _, r := range Decode(text) {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

func splitRecords(text string) []string {
	var parts []string
	var current []string
	inRecord := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimRight(line, " \t") == Delimiter {
			if inRecord {
				parts = append(parts, strings.Join(current, "\n"))
			}
			inRecord = true
			current = current[:0]
			continue
		}
		if inRecord {
			current = append(current, line)
		}
	}
	if inRecord {
		parts = append(parts, strings.Join(current, "\n"))
	}
	return parts
}

func decodeOne(part string) Record {
	var r Record
	var block *string
	var buf []string

	flush := func() {
		if block != nil {
			*block = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(part, "\n") {
		switch {
		case strings.HasPrefix(line, labelID):
			flush()
			block = nil
			r.ID = strings.TrimSpace(line[len(labelID):])
		case strings.HasPrefix(line, labelTimestamp):
			flush()
			block = nil
			r.Timestamp = strings.TrimSpace(line[len(labelTimestamp):])
		case strings.TrimRight(line, " \t") == labelPurpose:
			flush()
			block = &r.Purpose
		case strings.TrimRight(line, " \t") == labelPrevProgress:
			flush()
			block = &r.PrevProgress
		case strings.TrimRight(line, " \t") == labelContribution:
			flush()
			block = &r.Contribution
		default:
			if block != nil {
				buf = append(buf, line)
			}
		}
	}
	flush()

	if r.PrevProgress == noneBlock {
		r.PrevProgress = ""
	}
	return r
}
