package storage

import (
	"os"
	"strings"

	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
)

// Roadmap is the parsed form of a session's main.md: a goal heading and an
// ordered checklist.
type Roadmap struct {
	Goal  string
	Todo  []TodoItem
	Notes []string // milestone paragraphs appended below the checklist
}

// TodoItem is one checklist entry.
type TodoItem struct {
	Text string
	Done bool
}

const (
	roadmapTitle   = "# GCC Roadmap"
	goalHeading    = "## Goal"
	todoHeading    = "## Todo"
	unsetGoal      = "(unset)"
	emptyTodoEntry = "- (none)"
)

// RoadmapExists reports whether the session has a main.md.
func (s *Store) RoadmapExists(session string) bool {
	_, err := os.Stat(s.RoadmapPath(session))
	return err == nil
}

// ReadRoadmap parses a session's main.md. A missing file returns a zero
// Roadmap and found=false; the caller decides whether an uninitialized
// session is fatal.
func (s *Store) ReadRoadmap(session string) (Roadmap, bool, error) {
	data, err := os.ReadFile(s.RoadmapPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return Roadmap{}, false, nil
		}
		return Roadmap{}, false, memerr.Storage("read roadmap", err)
	}
	return ParseRoadmap(string(data)), true, nil
}

// WriteRoadmap serializes and atomically replaces a session's main.md.
func (s *Store) WriteRoadmap(session string, r Roadmap) error {
	return s.writeAtomic(s.RoadmapPath(session), SerializeRoadmap(r))
}

// AppendRoadmap appends a milestone paragraph below the existing roadmap
// content, creating the file if the session never wrote one.
func (s *Store) AppendRoadmap(session, text string) error {
	r, found, err := s.ReadRoadmap(session)
	if err != nil {
		return err
	}
	if !found {
		r = Roadmap{}
	}
	r.Notes = append(r.Notes, strings.TrimSpace(text))
	return s.WriteRoadmap(session, r)
}

// ParseRoadmap parses main.md content. It accepts both checkbox entries
// ("- [ ] x", "- [x] x") and bare entries ("- x") for compatibility with
// hand-edited files.
func ParseRoadmap(text string) Roadmap {
	var r Roadmap
	section := ""
	var noteBuf []string

	flushNote := func() {
		note := strings.TrimSpace(strings.Join(noteBuf, "\n"))
		if note != "" {
			r.Notes = append(r.Notes, note)
		}
		noteBuf = noteBuf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == roadmapTitle:
			continue
		case trimmed == goalHeading:
			section = "goal"
		case trimmed == todoHeading:
			section = "todo"
		case strings.HasPrefix(trimmed, "## "):
			section = "notes"
		default:
			switch section {
			case "goal":
				if trimmed != "" && r.Goal == "" && trimmed != unsetGoal {
					r.Goal = trimmed
				}
			case "todo":
				if trimmed == emptyTodoEntry {
					continue
				}
				if item, ok := parseTodoLine(trimmed); ok {
					r.Todo = append(r.Todo, item)
				} else if trimmed != "" {
					// First non-list paragraph ends the checklist.
					section = "notes"
					noteBuf = append(noteBuf, line)
				}
			case "notes":
				if trimmed == "" {
					flushNote()
				} else {
					noteBuf = append(noteBuf, line)
				}
			}
		}
	}
	flushNote()
	return r
}

func parseTodoLine(line string) (TodoItem, bool) {
	if line == emptyTodoEntry {
		return TodoItem{}, false
	}
	if rest, ok := strings.CutPrefix(line, "- [x] "); ok {
		return TodoItem{Text: rest, Done: true}, true
	}
	if rest, ok := strings.CutPrefix(line, "- [ ] "); ok {
		return TodoItem{Text: rest}, true
	}
	if rest, ok := strings.CutPrefix(line, "- "); ok {
		return TodoItem{Text: rest}, true
	}
	return TodoItem{}, false
}

// SerializeRoadmap renders a Roadmap back to main.md form.
func SerializeRoadmap(r Roadmap) string {
	goal := r.Goal
	if goal == "" {
		goal = unsetGoal
	}
	lines := []string{roadmapTitle, "", goalHeading, goal, "", todoHeading}
	if len(r.Todo) == 0 {
		lines = append(lines, emptyTodoEntry)
	}
	for _, item := range r.Todo {
		box := "[ ]"
		if item.Done {
			box = "[x]"
		}
		lines = append(lines, "- "+box+" "+item.Text)
	}
	for _, note := range r.Notes {
		lines = append(lines, "", note)
	}
	return strings.Join(lines, "\n") + "\n"
}
