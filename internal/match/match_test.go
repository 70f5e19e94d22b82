package match

import (
	"testing"

	"github.com/jimmc414/claude-cli-control/internal/tape"
)

func exchange(prompt, input, stateHash string) *tape.Exchange {
	return &tape.Exchange{
		Pre:   tape.Pre{Prompt: prompt, StateHash: stateHash},
		Input: tape.IOInput{Kind: tape.InputLine, DataText: input},
	}
}

func meta(program string, args []string, env map[string]string) *tape.Meta {
	return &tape.Meta{Program: program, Args: args, Env: env}
}

func TestMatchExactMatch(t *testing.T) {
	m := New(Options{})
	rec := exchange("$ ", "git status\n", "")
	ok := m.Match(rec, meta("/usr/bin/git", []string{"status"}, nil),
		Context{Program: "/usr/bin/git", Args: []string{"status"}, Prompt: "$ ", Input: "git status\n"})
	if !ok {
		t.Fatal("expected exact match to succeed")
	}
}

func TestMatchFailsOnDifferentProgram(t *testing.T) {
	m := New(Options{})
	rec := exchange("$ ", "status\n", "")
	ok := m.Match(rec, meta("/usr/bin/git", nil, nil),
		Context{Program: "/usr/bin/hg", Prompt: "$ ", Input: "status\n"})
	if ok {
		t.Fatal("expected mismatch on different program")
	}
}

func TestMatchIgnoresArgsByIndex(t *testing.T) {
	m := New(Options{IgnoreArgs: []string{"1"}})
	rec := exchange("$ ", "", "")
	ok := m.Match(rec, meta("/usr/bin/curl", []string{"get", "http://a.example"}, nil),
		Context{Program: "/usr/bin/curl", Args: []string{"get", "http://b.example"}, Prompt: "$ "})
	if !ok {
		t.Fatal("expected match with ignored arg index")
	}
}

func TestMatchEnvironmentIgnoresDefaultVolatileVars(t *testing.T) {
	m := New(Options{})
	rec := exchange("$ ", "", "")
	recMeta := meta("/usr/bin/git", nil, map[string]string{"PWD": "/a", "CUSTOM": "1"})
	ok := m.Match(rec, recMeta, Context{Program: "/usr/bin/git", Prompt: "$ ", Env: []string{"PWD=/b", "CUSTOM=1"}})
	if !ok {
		t.Fatal("expected PWD difference to be ignored by default")
	}
}

func TestMatchEnvironmentFailsOnDifferentCustomVar(t *testing.T) {
	m := New(Options{})
	rec := exchange("$ ", "", "")
	recMeta := meta("/usr/bin/git", nil, map[string]string{"CUSTOM": "1"})
	ok := m.Match(rec, recMeta, Context{Program: "/usr/bin/git", Prompt: "$ ", Env: []string{"CUSTOM=2"}})
	if ok {
		t.Fatal("expected mismatch on differing non-ignored env var")
	}
}

func TestMatchPromptRegex(t *testing.T) {
	m := New(Options{UseRegex: true})
	rec := exchange(`user@\w+:\S+\$\s*$`, "", "")
	ok := m.Match(rec, meta("/bin/sh", nil, nil),
		Context{Program: "/bin/sh", Prompt: "user@host:~/project$ "})
	if !ok {
		t.Fatal("expected prompt regex to match")
	}
}

func TestMatchPromptExactByDefaultDoesNotTreatAsRegex(t *testing.T) {
	m := New(Options{})
	rec := exchange(`user@\w+:\S+\$\s*$`, "", "")
	ok := m.Match(rec, meta("/bin/sh", nil, nil),
		Context{Program: "/bin/sh", Prompt: "user@host:~/project$ "})
	if ok {
		t.Fatal("expected literal-text comparison without UseRegex")
	}
}

func TestMatchStdinIgnoredWhenConfigured(t *testing.T) {
	m := New(Options{IgnoreStdin: true})
	rec := exchange("$ ", "ls -la\n", "")
	ok := m.Match(rec, meta("/bin/ls", nil, nil), Context{Program: "/bin/ls", Prompt: "$ ", Input: "ls -l\n"})
	if !ok {
		t.Fatal("expected stdin mismatch to be ignored")
	}
}

func TestMatchStateHashAbsentDefersTrue(t *testing.T) {
	m := New(Options{})
	rec := exchange("$ ", "", "somehash")
	ok := m.Match(rec, meta("/bin/sh", nil, nil), Context{Program: "/bin/sh", Prompt: "$ ", StateHash: ""})
	if !ok {
		t.Fatal("expected absent current state hash to defer to true")
	}
}

func TestMatchStateHashMismatchFails(t *testing.T) {
	m := New(Options{})
	rec := exchange("$ ", "", "hash-a")
	ok := m.Match(rec, meta("/bin/sh", nil, nil), Context{Program: "/bin/sh", Prompt: "$ ", StateHash: "hash-b"})
	if ok {
		t.Fatal("expected differing state hashes to fail")
	}
}
