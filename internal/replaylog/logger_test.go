package replaylog

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		" warn ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewGatesByLevel(t *testing.T) {
	l := New("TEST", "warn")
	if l.level != LevelWarn {
		t.Fatalf("expected LevelWarn, got %v", l.level)
	}
	l.SetLevel("debug")
	if l.level != LevelDebug {
		t.Fatalf("SetLevel did not update level")
	}
}
