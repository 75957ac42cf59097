// Package diff compares two snapshots of the same entity line by line.
package diff

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/models"
)

// DefaultContext is the number of unchanged lines shown around a change
const DefaultContext = 3

var (
	ErrIncomparableRevisions = errors.New("revisions belong to different entities")
	ErrSnapshotUnavailable   = errors.New("snapshot unavailable")
)

// CompareError carries both sides of a failed comparison
type CompareError struct {
	From models.Revision
	To   models.Revision
	Err  error
}

func (e *CompareError) Error() string {
	return fmt.Sprintf("cannot compare %s@%s with %s@%s: %v",
		e.From.Entity, e.From.Identifier, e.To.Entity, e.To.Identifier, e.Err)
}

func (e *CompareError) Unwrap() error {
	return e.Err
}

// Source opens the snapshot content of a revision
type Source interface {
	Open(rev models.Revision) (io.ReadCloser, error)
}

// Engine produces unified diffs between revisions
type Engine struct {
	source  Source
	context int
	logger  *zap.Logger
}

// NewEngine creates an engine reading snapshots from source. A negative
// contextLines selects DefaultContext.
func NewEngine(source Source, contextLines int, logger *zap.Logger) *Engine {
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, context: contextLines, logger: logger}
}

// Line is one line of a hunk
type Line struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Hunk is a contiguous region of change with surrounding context.
// Starts are 1-based; a side with zero lines reports the line before it.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Lines    []Line `json:"lines"`
}

// Header renders the @@ line of the hunk
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%s +%s @@", hunkRange(h.OldStart, h.OldLines), hunkRange(h.NewStart, h.NewLines))
}

func hunkRange(start, lines int) string {
	if lines == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, lines)
}

// Result is the comparison of two revisions
type Result struct {
	From      models.Revision `json:"from"`
	To        models.Revision `json:"to"`
	Hunks     []Hunk          `json:"hunks"`
	Added     int             `json:"added"`
	Removed   int             `json:"removed"`
	Unchanged int             `json:"unchanged"`
	Unified   string          `json:"unified"`
}

// Identical reports whether both snapshots have the same lines
func (r *Result) Identical() bool {
	return r.Added == 0 && r.Removed == 0
}

// AddedLines returns the text of every inserted line
func (r *Result) AddedLines() []string {
	return r.linesOf(Insert)
}

// RemovedLines returns the text of every deleted line
func (r *Result) RemovedLines() []string {
	return r.linesOf(Delete)
}

func (r *Result) linesOf(kind Kind) []string {
	var lines []string
	for _, h := range r.Hunks {
		for _, l := range h.Lines {
			if l.Kind == kind {
				lines = append(lines, l.Text)
			}
		}
	}
	return lines
}

// Compare diffs the snapshot of from against the snapshot of to. Both
// revisions must belong to the same entity.
func (e *Engine) Compare(ctx context.Context, from, to models.Revision) (*Result, error) {
	if from.Entity != to.Entity {
		return nil, &CompareError{From: from, To: to, Err: ErrIncomparableRevisions}
	}

	in := newInterner()
	oldLines, err := e.load(ctx, from, in)
	if err != nil {
		return nil, &CompareError{From: from, To: to, Err: err}
	}
	newLines, err := e.load(ctx, to, in)
	if err != nil {
		return nil, &CompareError{From: from, To: to, Err: err}
	}

	result, err := compute(ctx, in, oldLines, newLines, e.context, label(from), label(to))
	if err != nil {
		return nil, &CompareError{From: from, To: to, Err: err}
	}
	result.From = from
	result.To = to

	e.logger.Debug("Compared revisions",
		zap.String("entity", from.Entity.Key()),
		zap.String("from", from.Identifier),
		zap.String("to", to.Identifier),
		zap.Int("added", result.Added),
		zap.Int("removed", result.Removed),
	)
	return result, nil
}

func label(rev models.Revision) string {
	name := rev.EntityName
	if name == "" {
		name = rev.Entity.Name
	}
	return name + "@" + rev.Identifier
}

func (e *Engine) load(ctx context.Context, rev models.Revision, in *interner) ([]int, error) {
	rc, err := e.source.Open(rev)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s@%s: %w", ErrSnapshotUnavailable, rev.Entity, rev.Identifier, err)
		}
		return nil, err
	}
	defer rc.Close()

	return readLines(ctx, rc, in)
}

// interner maps distinct lines to small integers so each distinct line is
// held once regardless of how often it occurs in either snapshot
type interner struct {
	ids   map[string]int
	lines []string
}

func newInterner() *interner {
	return &interner{ids: make(map[string]int)}
}

func (in *interner) id(line string) int {
	if id, ok := in.ids[line]; ok {
		return id
	}
	id := len(in.lines)
	in.ids[line] = id
	in.lines = append(in.lines, line)
	return id
}

func (in *interner) text(id int) string {
	return in.lines[id]
}

const cancelCheckInterval = 4096

// readLines streams r line by line. Line terminators are not part of the
// compared text, so a missing final newline is not a difference.
func readLines(ctx context.Context, r io.Reader, in *interner) ([]int, error) {
	br := bufio.NewReader(r)
	var ids []int
	for {
		if len(ids)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			ids = append(ids, in.id(line))
		}
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
	}
}

// CompareReaders diffs two arbitrary streams; oldName and newName label the
// unified headers
func CompareReaders(ctx context.Context, oldName, newName string, oldR, newR io.Reader, contextLines int) (*Result, error) {
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	in := newInterner()
	oldLines, err := readLines(ctx, oldR, in)
	if err != nil {
		return nil, err
	}
	newLines, err := readLines(ctx, newR, in)
	if err != nil {
		return nil, err
	}
	return compute(ctx, in, oldLines, newLines, contextLines, oldName, newName)
}

func compute(ctx context.Context, in *interner, oldLines, newLines []int, contextLines int, oldName, newName string) (*Result, error) {
	script, err := editScript(ctx, oldLines, newLines)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, ed := range script {
		switch ed.Kind {
		case Equal:
			result.Unchanged++
		case Delete:
			result.Removed++
		case Insert:
			result.Added++
		}
	}
	result.Hunks = buildHunks(script, in, oldLines, newLines, contextLines)
	if !result.Identical() {
		result.Unified = renderUnified(oldName, newName, result.Hunks)
	}
	return result, nil
}
