package diff

import (
	"strings"
)

func (k Kind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	default:
		return "equal"
	}
}

// MarshalText renders the kind by name in JSON output
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// buildHunks groups the edit script into hunks. Changes separated by at most
// 2*context unchanged lines share a hunk.
func buildHunks(script []edit, in *interner, oldLines, newLines []int, context int) []Hunk {
	var hunks []Hunk
	n := len(script)
	i := 0
	for {
		for i < n && script[i].Kind == Equal {
			i++
		}
		if i >= n {
			return hunks
		}

		start := max(i-context, 0)
		end := i
		j := i
		for j < n {
			if script[j].Kind != Equal {
				j++
				end = j
				continue
			}
			run := j
			for run < n && script[run].Kind == Equal {
				run++
			}
			if run == n || run-j > 2*context {
				break
			}
			j = run
		}
		stop := min(end+context, n)

		hunks = append(hunks, makeHunk(script[start:stop], in, oldLines, newLines))
		i = stop
	}
}

func makeHunk(edits []edit, in *interner, oldLines, newLines []int) Hunk {
	h := Hunk{
		OldStart: edits[0].OldPos,
		NewStart: edits[0].NewPos,
		Lines:    make([]Line, 0, len(edits)),
	}
	for _, e := range edits {
		var text string
		switch e.Kind {
		case Equal:
			h.OldLines++
			h.NewLines++
			text = in.text(oldLines[e.OldPos])
		case Delete:
			h.OldLines++
			text = in.text(oldLines[e.OldPos])
		case Insert:
			h.NewLines++
			text = in.text(newLines[e.NewPos])
		}
		h.Lines = append(h.Lines, Line{Kind: e.Kind, Text: text})
	}
	if h.OldLines > 0 {
		h.OldStart++
	}
	if h.NewLines > 0 {
		h.NewStart++
	}
	return h
}

func renderUnified(oldName, newName string, hunks []Hunk) string {
	var b strings.Builder
	b.WriteString("--- " + oldName + "\n")
	b.WriteString("+++ " + newName + "\n")
	for _, h := range hunks {
		b.WriteString(h.Header())
		b.WriteByte('\n')
		for _, l := range h.Lines {
			b.WriteByte(l.Kind.prefix())
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
