// Package policy implements the latency and error-injection policies that
// govern how replayed chunks are paced and how often a synthetic failure is
// injected instead of a clean replay.
package policy

import (
	"math"
	"math/rand"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Context is the information a dynamic (expression or function) policy may
// condition its decision on.
type Context struct {
	Program string
	Args    []string
	Verb    string
	Attempt int
}

// Latency presets for common session-pacing choices.
var (
	LatencyRealistic = Latency{} // zero value: use the recorded per-chunk delay
	LatencyFast      = Latency{Fixed: intPtr(0)}
	LatencySlow      = Latency{Range: &RangeMs{Low: 500, High: 2000}}
)

// RangeMs is an inclusive millisecond range for randomized latency.
type RangeMs struct {
	Low  int
	High int
}

// Latency is a tagged union of the four ways a delay can be resolved:
// a fixed value, a uniform random range, a Go function of context, or a
// compiled expr-lang expression. Exactly one of Fixed/Range/Fn/Expr should
// be set; Fn and Expr are mutually exclusive variants of the same "function
// of context" slot and Fn is preferred when both happen to be set.
type Latency struct {
	Fixed *int
	Range *RangeMs
	Fn    func(Context) int
	Expr  string

	compiled *vm.Program
}

// Compile resolves the Expr field (if set) to a runnable program. It is a
// no-op if Expr is empty or Fn/Fixed/Range is already set. Call once at
// construction time, not per-replay.
func (l *Latency) Compile() error {
	if l.Expr == "" {
		return nil
	}
	program, err := expr.Compile(l.Expr, expr.Env(Context{}))
	if err != nil {
		return err
	}
	l.compiled = program
	return nil
}

// Resolve returns the delay, in milliseconds, recorded delay is the
// delay_ms that was captured when the chunk was originally recorded, used
// when no override applies.
func (l Latency) Resolve(ctx Context, recordedDelayMs int64, rng *rand.Rand) int64 {
	switch {
	case l.Fn != nil:
		return int64(l.Fn(ctx))
	case l.compiled != nil:
		out, err := expr.Run(l.compiled, ctx)
		if err != nil {
			return recordedDelayMs
		}
		if n, ok := toInt(out); ok {
			return n
		}
		return recordedDelayMs
	case l.Range != nil:
		if l.Range.High <= l.Range.Low {
			return int64(l.Range.Low)
		}
		return int64(l.Range.Low + rng.Intn(l.Range.High-l.Range.Low+1))
	case l.Fixed != nil:
		return int64(*l.Fixed)
	default:
		return recordedDelayMs
	}
}

// IsZero reports whether no override is configured at all (the "realistic"
// default, meaning the recorded delay always wins).
func (l Latency) IsZero() bool {
	return l.Fixed == nil && l.Range == nil && l.Fn == nil && l.Expr == "" && l.compiled == nil
}

// Triple is the (global, chunk override, exchange override) latency policy
// stack: per-chunk delay uses the chunk override if set, else the exchange
// override if set, else the global policy, else the recorded delay.
type Triple struct {
	Global           Latency
	ChunkOverride    *Latency
	ExchangeOverride *Latency
}

// Resolve picks the highest-priority configured policy and resolves it.
func (t Triple) Resolve(ctx Context, recordedDelayMs int64, rng *rand.Rand) int64 {
	if t.ChunkOverride != nil {
		return t.ChunkOverride.Resolve(ctx, recordedDelayMs, rng)
	}
	if t.ExchangeOverride != nil {
		return t.ExchangeOverride.Resolve(ctx, recordedDelayMs, rng)
	}
	if !t.Global.IsZero() {
		return t.Global.Resolve(ctx, recordedDelayMs, rng)
	}
	return recordedDelayMs
}

// Error injection presets.
var (
	ErrorNone      = Error{Rate: 0}
	ErrorOccasional = Error{Rate: 5, ExitCode: 1, TruncateAt: 0.5}
	ErrorFrequent  = Error{Rate: 25, ExitCode: 1, TruncateAt: 0.5}
	ErrorHalfway   = Error{Rate: 100, ExitCode: 1, TruncateAt: 0.5}
	ErrorImmediate = Error{Rate: 100, ExitCode: 1, TruncateAt: 0}
)

// Error configures synthetic failure injection during replay.
type Error struct {
	Rate         float64 // percent chance [0,100] per exchange; RateFn overrides if set
	RateFn       func(Context) float64
	ExitCode     int
	Message      string
	TruncateAt   float64 // fraction [0,1] of chunks emitted before the injected failure
	Seed         int64   // 0 = use the shared process-wide source
	deterministic *rand.Rand
}

// Init prepares the policy's deterministic RNG, if Seed is non-zero. Call
// once at construction.
func (e *Error) Init() {
	if e.Seed != 0 {
		e.deterministic = rand.New(rand.NewSource(e.Seed)) //nolint:gosec // deterministic replay, not security-sensitive
	}
}

// ShouldFire rolls the dice for this exchange and reports whether the error
// policy should fire.
func (e *Error) ShouldFire(ctx Context) bool {
	rate := e.Rate
	if e.RateFn != nil {
		rate = e.RateFn(ctx)
	}
	if rate <= 0 {
		return false
	}
	if rate >= 100 {
		return true
	}
	roll := e.roll()
	return roll < rate
}

func (e *Error) roll() float64 {
	if e.deterministic != nil {
		return e.deterministic.Float64() * 100
	}
	return rand.Float64() * 100 //nolint:gosec // replay fidelity, not security-sensitive
}

// TruncatedChunkCount returns how many chunks of totalChunks should be
// emitted before the injected failure cuts the exchange short.
func (e *Error) TruncatedChunkCount(totalChunks int) int {
	n := int(math.Floor(float64(totalChunks) * e.TruncateAt))
	if n < 0 {
		return 0
	}
	if n > totalChunks {
		return totalChunks
	}
	return n
}

func intPtr(v int) *int { return &v }

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
