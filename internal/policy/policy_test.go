package policy

import (
	"math/rand"
	"testing"
)

func TestLatencyFixedOverride(t *testing.T) {
	l := Latency{Fixed: intPtr(250)}
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // test determinism only
	if got := l.Resolve(Context{}, 999, rng); got != 250 {
		t.Errorf("Resolve() = %d, want 250", got)
	}
}

func TestLatencyRealisticFallsBackToRecorded(t *testing.T) {
	l := LatencyRealistic
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // test determinism only
	if got := l.Resolve(Context{}, 123, rng); got != 123 {
		t.Errorf("Resolve() = %d, want 123 (recorded delay)", got)
	}
}

func TestLatencyRangeWithinBounds(t *testing.T) {
	l := Latency{Range: &RangeMs{Low: 10, High: 20}}
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // test determinism only
	for i := 0; i < 50; i++ {
		got := l.Resolve(Context{}, 0, rng)
		if got < 10 || got > 20 {
			t.Fatalf("Resolve() = %d, want in [10,20]", got)
		}
	}
}

func TestLatencyExprCompileAndResolve(t *testing.T) {
	l := Latency{Expr: "100 + attempt"}
	if err := l.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // test determinism only
	got := l.Resolve(Context{Attempt: 5}, 0, rng)
	if got != 105 {
		t.Errorf("Resolve() = %d, want 105", got)
	}
}

func TestTripleResolvesChunkOverrideFirst(t *testing.T) {
	chunk := Latency{Fixed: intPtr(1)}
	exch := Latency{Fixed: intPtr(2)}
	global := Latency{Fixed: intPtr(3)}
	triple := Triple{Global: global, ChunkOverride: &chunk, ExchangeOverride: &exch}
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // test determinism only
	if got := triple.Resolve(Context{}, 0, rng); got != 1 {
		t.Errorf("Resolve() = %d, want 1 (chunk override wins)", got)
	}
}

func TestErrorShouldFireAlwaysAtFullRate(t *testing.T) {
	e := Error{Rate: 100}
	e.Init()
	if !e.ShouldFire(Context{}) {
		t.Fatal("expected rate=100 to always fire")
	}
}

func TestErrorShouldFireNeverAtZeroRate(t *testing.T) {
	e := Error{Rate: 0}
	e.Init()
	if e.ShouldFire(Context{}) {
		t.Fatal("expected rate=0 to never fire")
	}
}

func TestErrorDeterministicWithSeed(t *testing.T) {
	e1 := Error{Rate: 50, Seed: 42}
	e1.Init()
	e2 := Error{Rate: 50, Seed: 42}
	e2.Init()
	for i := 0; i < 20; i++ {
		if e1.ShouldFire(Context{}) != e2.ShouldFire(Context{}) {
			t.Fatal("expected identical sequences for identical seeds")
		}
	}
}

func TestTruncatedChunkCount(t *testing.T) {
	e := Error{TruncateAt: 0.5}
	if got := e.TruncatedChunkCount(10); got != 5 {
		t.Errorf("TruncatedChunkCount(10) = %d, want 5", got)
	}
	if got := e.TruncatedChunkCount(0); got != 0 {
		t.Errorf("TruncatedChunkCount(0) = %d, want 0", got)
	}
}
