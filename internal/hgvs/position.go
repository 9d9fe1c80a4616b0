package hgvs

import (
	"fmt"
	"regexp"
	"strconv"
)

// CPos is a position in HGVS c. notation.
//
// Base is relative to the first base of the CDS: positive inside the CDS,
// negative in the 5'UTR (there is no c.0). When UTR3 is set, Base counts
// bases past the stop codon (c.*6). Offset is the signed intronic distance
// from the exonic base (c.88+1, c.89-2). For non-coding transcripts Base is
// the spliced offset.
type CPos struct {
	Base   int64
	UTR3   bool
	Offset int64
}

var reCPos = regexp.MustCompile(`^(\*)?(-?\d+)([+-]\d+)?$`)

// ParseCPos parses a c. position such as "76", "-14", "*6" or "88+1".
func ParseCPos(s string) (CPos, error) {
	m := reCPos.FindStringSubmatch(s)
	if m == nil {
		return CPos{}, fmt.Errorf("%w: bad position %q", ErrMalformedDescriptor, s)
	}
	base, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return CPos{}, fmt.Errorf("%w: bad position %q", ErrMalformedDescriptor, s)
	}
	p := CPos{Base: base, UTR3: m[1] == "*"}
	if m[3] != "" {
		off, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil || off == 0 {
			return CPos{}, fmt.Errorf("%w: bad intronic offset in %q", ErrMalformedDescriptor, s)
		}
		p.Offset = off
	}
	if p.Base == 0 || (p.UTR3 && p.Base < 0) {
		return CPos{}, fmt.Errorf("%w: position %q does not exist", ErrMalformedDescriptor, s)
	}
	return p, nil
}

// String renders the position in HGVS form.
func (p CPos) String() string {
	buf := make([]byte, 0, 16)
	if p.UTR3 {
		buf = append(buf, '*')
	}
	buf = strconv.AppendInt(buf, p.Base, 10)
	if p.Offset > 0 {
		buf = append(buf, '+')
	}
	if p.Offset != 0 {
		buf = strconv.AppendInt(buf, p.Offset, 10)
	}
	return string(buf)
}

// IsIntronic reports whether the position carries an intronic offset.
func (p CPos) IsIntronic() bool { return p.Offset != 0 }

// Compare orders positions 5' to 3' along the transcript.
func (p CPos) Compare(q CPos) int {
	switch {
	case p.UTR3 != q.UTR3:
		if p.UTR3 {
			return 1
		}
		return -1
	case p.Base != q.Base:
		if p.Base < q.Base {
			return -1
		}
		return 1
	case p.Offset != q.Offset:
		if p.Offset < q.Offset {
			return -1
		}
		return 1
	}
	return 0
}

// Advance moves the position n bases 3' without a transcript, skipping c.0.
// Intronic positions move within the intron.
func (p CPos) Advance(n int64) CPos {
	if p.Offset != 0 {
		p.Offset += n
		return p
	}
	b := p.Base + n
	if !p.UTR3 && p.Base < 0 && b >= 0 {
		b++
	}
	p.Base = b
	return p
}

// span returns the number of bases from p to q inclusive when it can be
// computed without a transcript.
func span(p, q CPos) (int64, bool) {
	switch {
	case p.Offset != 0 || q.Offset != 0:
		if p.UTR3 == q.UTR3 && p.Base == q.Base {
			return q.Offset - p.Offset + 1, true
		}
		return 0, false
	case p.UTR3 != q.UTR3:
		return 0, false
	case !p.UTR3 && p.Base < 0 && q.Base > 0:
		return q.Base - p.Base, true
	}
	return q.Base - p.Base + 1, true
}

// adjacent reports whether q is the base immediately 3' of p. Pairs that
// cannot be decided without a transcript (last CDS base to *1) are accepted.
func adjacent(p, q CPos) bool {
	if p.UTR3 == q.UTR3 && p.Base == q.Base {
		return q.Offset == p.Offset+1
	}
	if p.Offset != 0 || q.Offset != 0 {
		// c.88+5_89-3 style flanks across an intron are not adjacent.
		return false
	}
	if !p.UTR3 && q.UTR3 {
		return q.Base == 1 && p.Base > 0
	}
	return p.Advance(1) == q
}
