// Package align scores how well a stated reference anchor matches the
// sequence found at a candidate position.
package align

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Op is one step of an alignment transcript.
type Op byte

const (
	Match    Op = '='
	Mismatch Op = 'X'
	Insert   Op = 'I' // base present only in b
	Delete   Op = 'D' // base present only in a
)

// Alignment is the result of aligning a against b.
type Alignment struct {
	Distance int
	Ops      []Op
}

// String renders the operations as a compact string such as "==X=".
func (a Alignment) String() string {
	b := make([]byte, len(a.Ops))
	for i, op := range a.Ops {
		b[i] = byte(op)
	}
	return string(b)
}

// Aligner computes an edit-distance alignment between two sequences.
type Aligner interface {
	Align(ctx context.Context, a, b string) (Alignment, error)
}

// ErrTimeout is returned when an aligner does not answer in time.
var ErrTimeout = errors.New("alignment timed out")

// Levenshtein is a global unit-cost aligner with a full traceback.
type Levenshtein struct{}

// NewLevenshtein returns the native aligner.
func NewLevenshtein() Levenshtein { return Levenshtein{} }

// Align implements Aligner.
func (Levenshtein) Align(ctx context.Context, a, b string) (Alignment, error) {
	if err := ctx.Err(); err != nil {
		return Alignment{}, err
	}
	n, m := len(a), len(b)
	w := m + 1
	d := make([]int, (n+1)*w)
	for i := 0; i <= n; i++ {
		d[i*w] = i
	}
	for j := 0; j <= m; j++ {
		d[j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i*w+j] = min(d[(i-1)*w+j-1]+cost, d[(i-1)*w+j]+1, d[i*w+j-1]+1)
		}
	}

	ops := make([]Op, 0, max(n, m))
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1] && d[i*w+j] == d[(i-1)*w+j-1]:
			ops = append(ops, Match)
			i, j = i-1, j-1
		case i > 0 && j > 0 && d[i*w+j] == d[(i-1)*w+j-1]+1:
			ops = append(ops, Mismatch)
			i, j = i-1, j-1
		case i > 0 && d[i*w+j] == d[(i-1)*w+j]+1:
			ops = append(ops, Delete)
			i--
		default:
			ops = append(ops, Insert)
			j--
		}
	}
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return Alignment{Distance: d[n*w+m], Ops: ops}, nil
}

type timeoutAligner struct {
	inner   Aligner
	timeout time.Duration
}

// WithTimeout bounds every call to inner. A zero or negative timeout
// returns inner unchanged.
func WithTimeout(inner Aligner, timeout time.Duration) Aligner {
	if timeout <= 0 {
		return inner
	}
	return &timeoutAligner{inner: inner, timeout: timeout}
}

func (t *timeoutAligner) Align(ctx context.Context, a, b string) (Alignment, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		aln Alignment
		err error
	}
	done := make(chan result, 1)
	go func() {
		aln, err := t.inner.Align(ctx, a, b)
		done <- result{aln, err}
	}()

	select {
	case r := <-done:
		return r.aln, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Alignment{}, fmt.Errorf("%w after %s", ErrTimeout, t.timeout)
		}
		return Alignment{}, ctx.Err()
	}
}
