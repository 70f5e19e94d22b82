package namegen

import (
	"strings"
	"testing"
)

func baseCtx() Context {
	return Context{
		Root:    "testdata/tapes",
		Program: "/usr/bin/git",
		Args:    []string{"status"},
		Cwd:     "/home/dev/project",
		Input:   "git status\n",
		Tag:     "ci-smoke",
		NowMs:   1700000000000,
	}
}

func TestDefaultGeneratorIsDeterministic(t *testing.T) {
	ctx := baseCtx()
	a := Default{}.Generate(ctx)
	b := Default{}.Generate(ctx)
	if a != b {
		t.Fatalf("expected deterministic output, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "testdata/tapes/git/unnamed-1700000000000-") {
		t.Errorf("unexpected path shape: %q", a)
	}
	if !strings.HasSuffix(a, ".tape") {
		t.Errorf("expected .tape suffix: %q", a)
	}
}

func TestDefaultGeneratorVariesWithInput(t *testing.T) {
	ctx1 := baseCtx()
	ctx2 := baseCtx()
	ctx2.Input = "git status --short\n"
	a := Default{}.Generate(ctx1)
	b := Default{}.Generate(ctx2)
	if a == b {
		t.Fatal("expected different hashes for different input")
	}
}

func TestSemanticGeneratorDerivesVerbFromFirstArg(t *testing.T) {
	ctx := baseCtx()
	p := Semantic{}.Generate(ctx)
	if !strings.Contains(p, "/status/") {
		t.Errorf("expected verb directory derived from args[0]: %q", p)
	}
}

func TestSemanticGeneratorExplicitVerbOverridesArgs(t *testing.T) {
	ctx := baseCtx()
	ctx.Verb = "custom"
	p := Semantic{}.Generate(ctx)
	if !strings.Contains(p, "/custom/") {
		t.Errorf("expected explicit verb to override derivation: %q", p)
	}
}

func TestSemanticGeneratorFallsBackWhenFirstArgIsNotABareWord(t *testing.T) {
	ctx := baseCtx()
	ctx.Args = []string{"--help"}
	p := Semantic{}.Generate(ctx)
	if !strings.Contains(p, "/default/") {
		t.Errorf("expected default verb directory for non-bare-word arg: %q", p)
	}
}

func TestTaggedGeneratorUsesTag(t *testing.T) {
	ctx := baseCtx()
	p := Tagged{}.Generate(ctx)
	if p != "testdata/tapes/git/ci-smoke.tape" {
		t.Errorf("unexpected tagged path: %q", p)
	}
}

func TestSanitizeProgramHandlesWeirdNames(t *testing.T) {
	ctx := baseCtx()
	ctx.Program = "/opt/My Weird App!!.sh"
	p := Default{}.Generate(ctx)
	if strings.Contains(p, " ") || strings.Contains(p, "!") {
		t.Errorf("expected sanitized program segment, got %q", p)
	}
}
