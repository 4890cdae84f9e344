package restable

import (
	"github.com/apex/log"
	"github.com/google/uuid"
)

// CancelFunc is polled between top-level chunks during a decode. Returning
// true requests cooperative cancellation at the next chunk boundary.
type CancelFunc func() bool

// Session carries the per-decode configuration enumerated in spec.md §6.
// It is never shared across decode goroutines (see spec.md §5): construct
// one per decode/emit pass. None of its fields are process-global.
type Session struct {
	// KeepBroken accepts malformed chunks by skipping to the next chunk
	// boundary instead of failing (the "lenient mode" used throughout this
	// package).
	KeepBroken bool

	// AnalysisMode suppresses post-decode mutations such as version-code
	// stripping and package renaming. The core never performs those
	// mutations itself (they are a rebuild-path collaborator concern); this
	// flag is threaded through so collaborators can query it via the
	// Session they were handed.
	AnalysisMode bool

	// SharedLibrary treats the package id as non-standard: a package id
	// field of 256 or more is accepted (keeping its low 8 bits) instead of
	// failing. Ids below 0x7f are accepted with or without it.
	SharedLibrary bool

	// SparseResources hints that the input uses sparse type-chunk encoding,
	// for diagnostic checks only; the decoder detects sparse encoding from
	// the chunk's own flags byte regardless of this hint.
	SparseResources bool

	// Cancel is polled between top-level chunks. May be nil.
	Cancel CancelFunc

	// Log receives warnings and phase markers. Defaults to log.Log (the
	// apex/log global) when nil.
	Log log.Interface

	// id correlates this session's log lines when several sessions run
	// concurrently and share a log sink.
	id string

	diag Diagnostics
}

// NewSession returns a strict-mode Session (KeepBroken=false) with a fresh
// correlation id and the default apex/log sink.
func NewSession() *Session {
	return &Session{
		id:  uuid.NewString(),
		Log: log.Log,
	}
}

func (s *Session) logger() log.Interface {
	if s == nil || s.Log == nil {
		return log.Log
	}
	return s.Log.WithField("session", s.id)
}

func (s *Session) lenient() bool {
	return s != nil && s.KeepBroken
}

func (s *Session) cancelled() bool {
	return s != nil && s.Cancel != nil && s.Cancel()
}

// Diagnostics returns the non-fatal errors recovered by every decode run
// with this session; the collection is never cleared.
func (s *Session) Diagnostics() *Diagnostics {
	if s == nil {
		return &Diagnostics{}
	}
	return &s.diag
}

func (s *Session) warn(err error) {
	if s == nil {
		return
	}
	s.diag.add(err)
	s.logger().WithError(err).Warn("recovered decode error")
}

// Diagnostics collects non-fatal errors recovered during a decode. Errors
// are collected but never abort the pass;
// the first one is surfaced via First() so a caller can signal a non-zero
// exit code, matching spec.md §7's first_error() contract.
type Diagnostics struct {
	errs []error
}

func (d *Diagnostics) add(err error) {
	if err == nil {
		return
	}
	d.errs = append(d.errs, err)
}

// First returns the first non-fatal error observed, or nil if none.
func (d *Diagnostics) First() error {
	if d == nil || len(d.errs) == 0 {
		return nil
	}
	return d.errs[0]
}

// All returns every non-fatal error observed, in observation order.
func (d *Diagnostics) All() []error {
	if d == nil {
		return nil
	}
	return d.errs
}
