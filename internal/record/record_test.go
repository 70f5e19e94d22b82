package record

import (
	"strings"
	"testing"

	"github.com/jimmc414/claude-cli-control/internal/namegen"
	"github.com/jimmc414/claude-cli-control/internal/replaylog"
	"github.com/jimmc414/claude-cli-control/internal/store"
	"github.com/jimmc414/claude-cli-control/internal/tape"
)

func newTestRecorder(t *testing.T, mode Mode) (*Recorder, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir(), "", replaylog.New("RECORD", "error"))
	meta := tape.Meta{Program: "/bin/echo", Args: []string{"hi"}}
	r := New(mode, meta, s, namegen.Default{}, DecoratorSet{}, replaylog.New("RECORD", "error"))
	return r, s
}

func TestRecorderCapturesOneExchange(t *testing.T) {
	r, _ := newTestRecorder(t, ModeNew)

	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "echo hi\n"})
	if _, err := r.Write([]byte("hi\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.OnExpectComplete(nil)

	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if path == "" {
		t.Fatal("expected a non-empty tape path under ModeNew")
	}
}

func TestRecorderDisabledModeDiscardsExchanges(t *testing.T) {
	r, _ := newTestRecorder(t, ModeDisabled)

	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "echo hi\n"})
	if _, err := r.Write([]byte("hi\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.OnExpectComplete(nil)

	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path under ModeDisabled, got %q", path)
	}
}

func TestRecorderRedactsSecretsBeforeSave(t *testing.T) {
	r, s := newTestRecorder(t, ModeNew)
	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "curl -H 'password=hunter2secret'\n"})
	if _, err := r.Write([]byte("password=hunter2secret accepted\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.OnExpectComplete(nil)

	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	loaded := s.All()
	if len(loaded) != 1 {
		t.Fatalf("expected 1 tape indexed after save, got %d", len(loaded))
	}
	for _, ex := range loaded[0].Exchanges {
		if strings.Contains(ex.Input.Text(), "hunter2secret") {
			t.Error("secret leaked into saved input")
		}
		for _, c := range ex.Output.Chunks {
			if strings.Contains(string(c.Data), "hunter2secret") {
				t.Error("secret leaked into saved output chunk")
			}
		}
		if ex.Annotations["redactionCount"] == "" {
			t.Error("expected a redactionCount annotation recording how many secrets were scrubbed")
		}
	}
	if path == "" {
		t.Fatal("expected non-empty path")
	}
}

func TestRecorderTapeDecoratorRunsBeforeRedaction(t *testing.T) {
	s := store.New(t.TempDir(), "", replaylog.New("RECORD", "error"))
	meta := tape.Meta{Program: "/bin/echo", Args: []string{"hi"}}
	reintroduceSecret := func(t *tape.Tape) *tape.Tape {
		for i := range t.Exchanges {
			for j := range t.Exchanges[i].Output.Chunks {
				c := &t.Exchanges[i].Output.Chunks[j]
				c.Data = append(c.Data, []byte(" password=hunter2secret")...)
			}
		}
		return t
	}
	decorators := DecoratorSet{Tape: reintroduceSecret}
	r := New(ModeNew, meta, s, namegen.Default{}, decorators, replaylog.New("RECORD", "error"))

	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "echo hi\n"})
	if _, err := r.Write([]byte("hi\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.OnExpectComplete(nil)
	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	loaded := s.All()
	if len(loaded) != 1 {
		t.Fatalf("expected 1 tape, got %d", len(loaded))
	}
	for _, c := range loaded[0].Exchanges[0].Output.Chunks {
		if strings.Contains(string(c.Data), "hunter2secret") {
			t.Error("tape decorator reintroduced a secret that the later redaction pass should have caught")
		}
	}
}

func TestRecorderMultipleExchangesFinalizeIndependently(t *testing.T) {
	r, _ := newTestRecorder(t, ModeNew)

	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "one\n"})
	r.Write([]byte("out1\n")) //nolint:errcheck // ChunkSink.Write never errors
	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "two\n"})
	r.Write([]byte("out2\n")) //nolint:errcheck // ChunkSink.Write never errors
	r.OnExpectComplete(nil)

	r.mu.Lock()
	n := len(r.exchanges)
	r.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected 2 finalized exchanges, got %d", n)
	}
}

func TestDecoratorsApplyToRecordedTape(t *testing.T) {
	s := store.New(t.TempDir(), "", replaylog.New("RECORD", "error"))
	meta := tape.Meta{Program: "/bin/echo", Args: []string{"hi"}}
	decorators := DecoratorSet{
		Input: UppercaseInput,
		Tape:  TagAnnotation("source", "test"),
	}
	r := New(ModeNew, meta, s, namegen.Default{}, decorators, replaylog.New("RECORD", "error"))

	r.OnSend("$ ", tape.IOInput{Kind: tape.InputLine, DataText: "echo hi\n"})
	r.OnExpectComplete(nil)
	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	loaded := s.All()
	if len(loaded) != 1 {
		t.Fatalf("expected 1 tape, got %d", len(loaded))
	}
	ex := loaded[0].Exchanges[0]
	if ex.Input.DataText != "ECHO HI\n" {
		t.Errorf("expected uppercased input, got %q", ex.Input.DataText)
	}
	if ex.Annotations["source"] != "test" {
		t.Errorf("expected tape decorator annotation, got %v", ex.Annotations)
	}
}
