package annotate

import (
	"errors"
	"fmt"
)

var (
	// ErrReferenceMismatch is matched by *ReferenceMismatchError.
	ErrReferenceMismatch = errors.New("reference mismatch")
	// ErrUnresolvableVariant is matched by *UnresolvableError.
	ErrUnresolvableVariant = errors.New("unresolvable variant")
	// ErrNoTranscriptOverlap is returned when no transcript can be selected.
	ErrNoTranscriptOverlap = errors.New("no transcript overlaps the variant")
	// ErrUnderSpecified is returned by the engine for descriptors that need
	// reverse annotation, such as protein changes.
	ErrUnderSpecified = errors.New("descriptor does not determine a nucleotide edit")
	// ErrNotCoding is returned for protein work on a non-coding transcript.
	ErrNotCoding = errors.New("transcript is not protein coding")
)

// ReferenceMismatchError reports a stated reference that disagrees with the
// transcript or genome.
type ReferenceMismatchError struct {
	TranscriptID string
	Descriptor   string
	Stated       string
	Actual       string
}

func (e *ReferenceMismatchError) Error() string {
	return fmt.Sprintf("reference mismatch on %s: %s states %s, reference has %s",
		e.TranscriptID, e.Descriptor, e.Stated, e.Actual)
}

// Is matches ErrReferenceMismatch.
func (e *ReferenceMismatchError) Is(target error) bool { return target == ErrReferenceMismatch }

// UnresolvableError reports a reverse annotation that found no candidate.
type UnresolvableError struct {
	TranscriptID string
	Descriptor   string
	Window       int
	Err          error // the mismatch at the stated position, if any
}

func (e *UnresolvableError) Error() string {
	msg := fmt.Sprintf("cannot resolve %s on %s within %d", e.Descriptor, e.TranscriptID, e.Window)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrUnresolvableVariant.
func (e *UnresolvableError) Is(target error) bool { return target == ErrUnresolvableVariant }

func (e *UnresolvableError) Unwrap() error { return e.Err }
