// Package replayerr defines the error taxonomy for tape loading, matching,
// recording, and replay. Each kind carries the diagnostic payload a caller
// needs to act on it; load-time Schema errors are recoverable (the offending
// file is skipped, not fatal), everything else propagates.
package replayerr

import "fmt"

// Kind identifies which part of the taxonomy an error belongs to, for
// errors.Is comparisons against the exported sentinels below.
type Kind int

// Error kinds, matching the record-and-replay error taxonomy.
const (
	KindTapeMiss Kind = iota
	KindSchema
	KindRedaction
	KindRecording
	KindPlayback
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTapeMiss:
		return "tape_miss"
	case KindSchema:
		return "schema"
	case KindRedaction:
		return "redaction"
	case KindRecording:
		return "recording"
	case KindPlayback:
		return "playback"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the common shape of every error this package returns.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, replayerr.ErrTapeMiss) style sentinel comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons against a bare kind, ignoring payload.
var (
	ErrTapeMiss  = &Error{Kind: KindTapeMiss}
	ErrSchema    = &Error{Kind: KindSchema}
	ErrRedaction = &Error{Kind: KindRedaction}
	ErrRecording = &Error{Kind: KindRecording}
	ErrPlayback  = &Error{Kind: KindPlayback}
	ErrTimeout   = &Error{Kind: KindTimeout}
)

// TapeMissContext is the diagnostic payload attached to a TapeMiss error.
type TapeMissContext struct {
	Program string
	Args    []string
	Prompt  string
	Input   string
}

// TapeMiss builds a TapeMiss error carrying the lookup context that failed
// to match any recorded exchange.
func TapeMiss(ctx TapeMissContext) error {
	return &Error{
		Kind: KindTapeMiss,
		Msg: fmt.Sprintf("no recorded exchange for program=%q args=%v prompt=%q input=%q",
			ctx.Program, ctx.Args, ctx.Prompt, ctx.Input),
	}
}

// Schema builds a Schema error for a tape file that failed structural or
// JSON-Schema validation at load time.
func Schema(path string, cause error) error {
	return &Error{Kind: KindSchema, Msg: fmt.Sprintf("invalid tape %s", path), Err: cause}
}

// Redaction builds a Redaction error raised when a save must abort because
// secret material was detected and could not be safely scrubbed.
func Redaction(path string, cause error) error {
	return &Error{Kind: KindRedaction, Msg: fmt.Sprintf("redaction failed for %s", path), Err: cause}
}

// Recording builds a Recording error for failures while capturing a live
// session (write interception, exchange finalization, persistence).
func Recording(msg string, cause error) error {
	return &Error{Kind: KindRecording, Msg: msg, Err: cause}
}

// Playback builds a Playback error for failures while streaming a matched
// exchange back to the harness (e.g. a malformed chunk).
func Playback(msg string, cause error) error {
	return &Error{Kind: KindPlayback, Msg: msg, Err: cause}
}

// Timeout builds a Timeout error for an Expect/ExpectExact deadline that
// elapsed before a pattern matched.
func Timeout(pattern string) error {
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf("timed out waiting for pattern %q", pattern)}
}
