package diff

import "context"

// Kind is the role of a line in an edit script
type Kind int

const (
	Equal Kind = iota
	Delete
	Insert
)

func (k Kind) prefix() byte {
	switch k {
	case Delete:
		return '-'
	case Insert:
		return '+'
	default:
		return ' '
	}
}

// edit is one step of an edit script. OldPos and NewPos count the lines of
// each side consumed before this step.
type edit struct {
	Kind   Kind
	OldPos int
	NewPos int
}

// editScript aligns a and b and returns the full edit script, including the
// common prefix and suffix
func editScript(ctx context.Context, a, b []int) ([]edit, error) {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]

	script := make([]edit, 0, len(a)+len(b)-prefix-suffix)
	for i := 0; i < prefix; i++ {
		script = append(script, edit{Kind: Equal, OldPos: i, NewPos: i})
	}

	middle, err := myers(ctx, midA, midB)
	if err != nil {
		return nil, err
	}
	for _, e := range middle {
		e.OldPos += prefix
		e.NewPos += prefix
		script = append(script, e)
	}

	for i := 0; i < suffix; i++ {
		script = append(script, edit{
			Kind:   Equal,
			OldPos: len(a) - suffix + i,
			NewPos: len(b) - suffix + i,
		})
	}
	return script, nil
}

// myers computes a shortest edit script for a and b in linear space. Each
// step searches from both ends at once until the paths overlap, splits the
// problem at the overlap and solves the halves separately, so only two
// diagonal vectors of len(a)+len(b) ints are held at any time.
func myers(ctx context.Context, a, b []int) ([]edit, error) {
	size := len(a) + len(b) + 3
	s := &bisector{
		ctx:      ctx,
		a:        a,
		b:        b,
		forward:  make([]int, size),
		backward: make([]int, size),
		script:   make([]edit, 0, len(a)+len(b)),
	}
	if err := s.diff(0, len(a), 0, len(b)); err != nil {
		return nil, err
	}
	return s.script, nil
}

type bisector struct {
	ctx      context.Context
	a, b     []int
	forward  []int
	backward []int
	script   []edit
}

// diff appends the edit script of a[aLo:aHi] against b[bLo:bHi]
func (s *bisector) diff(aLo, aHi, bLo, bHi int) error {
	for aLo < aHi && bLo < bHi && s.a[aLo] == s.b[bLo] {
		s.script = append(s.script, edit{Kind: Equal, OldPos: aLo, NewPos: bLo})
		aLo++
		bLo++
	}
	suffix := 0
	for aHi-suffix > aLo && bHi-suffix > bLo && s.a[aHi-1-suffix] == s.b[bHi-1-suffix] {
		suffix++
	}
	aEnd, bEnd := aHi-suffix, bHi-suffix

	switch {
	case aLo == aEnd:
		s.insert(aLo, bLo, bEnd)
	case bLo == bEnd:
		s.delete(aLo, aEnd, bLo)
	default:
		x, y, ok, err := s.split(aLo, aEnd, bLo, bEnd)
		if err != nil {
			return err
		}
		if !ok {
			s.delete(aLo, aEnd, bLo)
			s.insert(aEnd, bLo, bEnd)
			break
		}
		if err := s.diff(aLo, x, bLo, y); err != nil {
			return err
		}
		if err := s.diff(x, aEnd, y, bEnd); err != nil {
			return err
		}
	}

	for i := 0; i < suffix; i++ {
		s.script = append(s.script, edit{Kind: Equal, OldPos: aEnd + i, NewPos: bEnd + i})
	}
	return nil
}

func (s *bisector) delete(aLo, aHi, newPos int) {
	for i := aLo; i < aHi; i++ {
		s.script = append(s.script, edit{Kind: Delete, OldPos: i, NewPos: newPos})
	}
}

func (s *bisector) insert(oldPos, bLo, bHi int) {
	for j := bLo; j < bHi; j++ {
		s.script = append(s.script, edit{Kind: Insert, OldPos: oldPos, NewPos: j})
	}
}

// split finds a point on a shortest path through a[aLo:aHi] x b[bLo:bHi]
// by running the greedy search forwards from the start and backwards from
// the end, one edit distance per round, until the two meet. Both ranges must
// be non-empty and differ in their first and last lines. ok is false when
// the ranges share no line.
func (s *bisector) split(aLo, aHi, bLo, bHi int) (x, y int, ok bool, err error) {
	n, m := aHi-aLo, bHi-bLo
	maxD := (n + m + 1) / 2
	offset := maxD
	length := 2*maxD + 2

	vf := s.forward[:length]
	vb := s.backward[:length]
	for i := range vf {
		vf[i] = -1
		vb[i] = -1
	}
	vf[offset+1] = 0
	vb[offset+1] = 0

	delta := n - m
	// With an odd delta the paths can only meet on a forward step
	front := delta%2 != 0

	// Diagonals that ran off the edit graph are skipped in later rounds
	var fLow, fHigh, bLow, bHigh int

	for d := 0; d < maxD; d++ {
		if err := s.ctx.Err(); err != nil {
			return 0, 0, false, err
		}

		for k := -d + fLow; k <= d-fHigh; k += 2 {
			i := offset + k
			var fx int
			if k == -d || (k != d && vf[i-1] < vf[i+1]) {
				fx = vf[i+1]
			} else {
				fx = vf[i-1] + 1
			}
			fy := fx - k
			for fx < n && fy < m && s.a[aLo+fx] == s.b[bLo+fy] {
				fx++
				fy++
			}
			vf[i] = fx

			switch {
			case fx > n:
				fHigh += 2
			case fy > m:
				fLow += 2
			case front:
				j := offset + delta - k
				if j >= 0 && j < length && vb[j] != -1 && fx >= n-vb[j] {
					return s.splitAt(aLo, bLo, fx, fy, n, m)
				}
			}
		}

		for k := -d + bLow; k <= d-bHigh; k += 2 {
			i := offset + k
			var bx int
			if k == -d || (k != d && vb[i-1] < vb[i+1]) {
				bx = vb[i+1]
			} else {
				bx = vb[i-1] + 1
			}
			by := bx - k
			for bx < n && by < m && s.a[aHi-1-bx] == s.b[bHi-1-by] {
				bx++
				by++
			}
			vb[i] = bx

			switch {
			case bx > n:
				bHigh += 2
			case by > m:
				bLow += 2
			case !front:
				j := offset + delta - k
				if j >= 0 && j < length && vf[j] != -1 {
					fx := vf[j]
					fy := fx - (j - offset)
					if fx >= n-bx {
						return s.splitAt(aLo, bLo, fx, fy, n, m)
					}
				}
			}
		}
	}
	return 0, 0, false, nil
}

// splitAt converts a meeting point to absolute positions. A point at either
// corner would not shrink the problem and is reported as no split.
func (s *bisector) splitAt(aLo, bLo, x, y, n, m int) (int, int, bool, error) {
	if (x == 0 && y == 0) || (x == n && y == m) {
		return 0, 0, false, nil
	}
	return aLo + x, bLo + y, true, nil
}
