package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jimmc414/claude-cli-control/internal/replaylog"
	"github.com/jimmc414/claude-cli-control/internal/tape"
)

func writeTapeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write tape fixture: %v", err)
	}
	return path
}

const sampleTape = `{
  "meta": {"createdAt": "2026-07-30T00:00:00Z", "program": "/usr/bin/git", "args": ["status"]},
  "session": {"platform": "linux", "version": "1.0", "recordMode": "new"},
  "exchanges": [
    {
      "pre": {"prompt": "$ "},
      "input": {"kind": "line", "dataText": "git status\n"},
      "output": {"chunks": [{"delayMs": 5, "data": "On branch main\n", "isUtf8": true}]},
      "durMs": 12
    }
  ]
}`

func TestLoadAllDiscoversTapes(t *testing.T) {
	dir := t.TempDir()
	writeTapeFile(t, dir, "git/status.tape", sampleTape)

	s := New(dir, "", replaylog.New("STORE", "error"))
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(s.All()) != 1 {
		t.Fatalf("expected 1 tape, got %d", len(s.All()))
	}
}

func TestLoadAllSkipsInvalidTapeWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	writeTapeFile(t, dir, "good/a.tape", sampleTape)
	writeTapeFile(t, dir, "bad/b.tape", `{"not": "a tape"}`)

	s := New(dir, "", replaylog.New("STORE", "error"))
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll should not abort on one bad tape: %v", err)
	}
	if len(s.All()) != 1 {
		t.Fatalf("expected 1 loaded tape (bad one skipped), got %d", len(s.All()))
	}
}

func TestLookupFindsIndexedExchange(t *testing.T) {
	dir := t.TempDir()
	writeTapeFile(t, dir, "git/status.tape", sampleTape)

	s := New(dir, "", replaylog.New("STORE", "error"))
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	key := "git|[status]|$ |git status\n"
	ex, meta, path, ok := s.Lookup(key)
	if !ok {
		t.Fatal("expected index lookup to find the recorded exchange")
	}
	if meta.Program != "/usr/bin/git" {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if ex.DurationMs != 12 {
		t.Errorf("unexpected exchange: %+v", ex)
	}
	if path == "" {
		t.Error("expected non-empty tape path")
	}
}

func TestSaveTapeAtomicWriteAndReload(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "", replaylog.New("STORE", "error"))

	newTape := &tape.Tape{
		Path: filepath.Join(dir, "new", "recorded.tape"),
		Meta: tape.Meta{CreatedAt: "2026-07-30T00:00:00Z", Program: "/bin/echo", Args: []string{"hi"}},
		Session: tape.Session{Platform: "linux", Version: "1.0", RecordMode: "new"},
		Exchanges: []tape.Exchange{
			{
				Pre:        tape.Pre{Prompt: "$ "},
				Input:      tape.IOInput{Kind: tape.InputLine, DataText: "echo hi\n"},
				Output:     tape.IOOutput{Chunks: []tape.Chunk{{DelayMs: 1, Data: []byte("hi\n"), IsUTF8: true}}},
				DurationMs: 3,
			},
		},
	}

	if err := s.SaveTape(newTape); err != nil {
		t.Fatalf("SaveTape: %v", err)
	}
	if _, err := os.Stat(newTape.Path); err != nil {
		t.Fatalf("expected tape file to exist: %v", err)
	}
	if _, err := os.Stat(newTape.Path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away")
	}

	if len(s.All()) != 1 {
		t.Fatalf("expected saved tape to be indexed in-memory, got %d", len(s.All()))
	}
}

func TestUsedAndNewBookkeeping(t *testing.T) {
	s := New(t.TempDir(), "", replaylog.New("STORE", "error"))
	s.MarkUsed("a.tape")
	s.MarkNew("b.tape")

	unused := s.UnusedTapes()
	for _, p := range unused {
		if p == "a.tape" {
			t.Error("a.tape was marked used, should not appear in UnusedTapes")
		}
	}
	newOnes := s.NewTapes()
	if len(newOnes) != 1 || newOnes[0] != "b.tape" {
		t.Errorf("NewTapes() = %v, want [b.tape]", newOnes)
	}
}
