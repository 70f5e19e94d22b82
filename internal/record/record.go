// Package record captures a live session's stimulus/response exchanges into
// a tape, intercepting writes to the child process's output stream and
// pairing them with the input that was sent immediately before.
package record

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jimmc414/claude-cli-control/internal/namegen"
	"github.com/jimmc414/claude-cli-control/internal/redact"
	"github.com/jimmc414/claude-cli-control/internal/replaylog"
	"github.com/jimmc414/claude-cli-control/internal/store"
	"github.com/jimmc414/claude-cli-control/internal/tape"
)

// Mode selects how the Recorder treats an in-progress recording relative to
// any existing tape matching the same context.
type Mode string

// Recognized record modes.
const (
	ModeNew       Mode = "new"       // create only if no existing tape matches; otherwise append in-memory
	ModeOverwrite Mode = "overwrite" // replace the on-disk tape on a context match
	ModeDisabled  Mode = "disabled"  // never write; callers should force a fallback on miss
)

// state is the Recorder's internal state machine position.
type state int

const (
	stateIdle state = iota
	stateOpenTape
)

// ChunkSink captures timestamped output chunks written by the live process.
// It is not safe for concurrent writes from multiple goroutines.
type ChunkSink struct {
	mu      sync.Mutex
	chunks  []tape.Chunk
	lastAt  time.Time
	started bool
}

// Write records data as one chunk, stamping it with the elapsed time since
// the previous write (or since Reset, for the first chunk in an exchange).
func (c *ChunkSink) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var delay time.Duration
	if c.started {
		delay = now.Sub(c.lastAt)
	}
	c.lastAt = now
	c.started = true

	buf := make([]byte, len(data))
	copy(buf, data)
	c.chunks = append(c.chunks, tape.Chunk{
		DelayMs: delay.Milliseconds(),
		Data:    buf,
		IsUTF8:  utf8.Valid(buf),
	})
	return len(data), nil
}

// Flush is a no-op; chunks are appended synchronously on Write. It exists so
// ChunkSink satisfies the same Write/Flush shape other sinks in this module
// use.
func (c *ChunkSink) Flush() error { return nil }

// Reset clears the sink for the start of a new exchange.
func (c *ChunkSink) Reset() {
	c.mu.Lock()
	c.chunks = nil
	c.started = false
	c.mu.Unlock()
}

// Chunks returns a copy of the chunks captured since the last Reset.
func (c *ChunkSink) Chunks() []tape.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]tape.Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// Recorder captures a live session into a Tape, one exchange at a time.
type Recorder struct {
	mu sync.Mutex

	mode  Mode
	store *store.Store
	gen   namegen.Generator
	log   *replaylog.Logger
	redactEnabled bool
	decorators    DecoratorSet

	state   state
	sink    ChunkSink
	current *tape.Exchange
	pendingPre tape.Pre

	meta tape.Meta
	tag  string

	exchanges []tape.Exchange
	tapePath  string
	matched   bool // true if an existing on-disk tape was found for this context (OVERWRITE target)

	startedAt time.Time
}

// New constructs a Recorder for one session. meta describes the target
// program; mode governs how conflicts with existing tapes are handled.
func New(mode Mode, meta tape.Meta, s *store.Store, gen namegen.Generator, decorators DecoratorSet, log *replaylog.Logger) *Recorder {
	return &Recorder{
		mode:       mode,
		store:      s,
		gen:        gen,
		log:        log,
		redactEnabled: true,
		decorators: decorators,
		state:      stateIdle,
		meta:       meta,
		startedAt:  time.Now(),
	}
}

// SetRedact toggles whether Stop redacts secret material before saving.
func (r *Recorder) SetRedact(on bool) { r.redactEnabled = on }

// SetTag supplies the human-chosen name a Tagged namegen.Generator uses to
// derive the tape path. Ignored by generators that don't consult ctx.Tag.
func (r *Recorder) SetTag(tag string) {
	r.mu.Lock()
	r.tag = tag
	r.mu.Unlock()
}

// SetMatchedTape tells the Recorder that an existing on-disk tape already
// covers this context, at path. Under ModeNew, Stop then keeps the freshly
// captured exchanges in memory only rather than overwriting it; under
// ModeOverwrite, path becomes the save target.
func (r *Recorder) SetMatchedTape(path string) {
	r.mu.Lock()
	r.matched = true
	r.tapePath = path
	r.mu.Unlock()
}

// OnSend finalizes the previous exchange (if any) and opens a new one,
// capturing the prompt observed immediately before input was sent.
func (r *Recorder) OnSend(prompt string, input tape.IOInput) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finalizeLocked(nil)

	r.pendingPre = tape.Pre{Prompt: prompt}
	if r.decorators.Input != nil {
		input = r.decorators.Input(input)
	}
	r.current = &tape.Exchange{
		Pre:   r.pendingPre,
		Input: input,
		Annotations: map[string]string{
			"exchangeId": uuid.NewString(),
		},
	}
	r.sink.Reset()
	r.state = stateOpenTape
}

// Write feeds captured output bytes into the current exchange's chunk sink.
// It is a no-op if no exchange is open.
func (r *Recorder) Write(data []byte) (int, error) {
	if r.state != stateOpenTape {
		return len(data), nil
	}
	return r.sink.Write(data)
}

// OnExpectComplete finalizes the current exchange, attaching exit
// information if the process has ended.
func (r *Recorder) OnExpectComplete(exit *tape.ExitInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizeLocked(exit)
}

// finalizeLocked must be called with r.mu held.
func (r *Recorder) finalizeLocked(exit *tape.ExitInfo) {
	if r.current == nil {
		return
	}
	r.current.Output = tape.IOOutput{Chunks: r.sink.Chunks()}
	r.current.Exit = exit
	r.current.DurationMs = time.Since(r.startedAt).Milliseconds()
	if r.decorators.Output != nil {
		r.current.Output = r.decorators.Output(r.current.Output)
	}
	r.exchanges = append(r.exchanges, *r.current)
	r.current = nil
	r.state = stateIdle
}

// Stop finalizes any in-progress exchange, applies redaction and the
// configured decorators, and persists the tape according to the record
// mode. Returns the path written to, or an empty string if Mode is
// ModeDisabled.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	r.finalizeLocked(nil)
	exchanges := r.exchanges
	r.mu.Unlock()

	if r.mode == ModeDisabled {
		r.log.Info("stop", "recording disabled, discarding captured exchanges")
		return "", nil
	}

	meta := r.meta
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	t := &tape.Tape{
		Meta: meta,
		Session: tape.Session{
			Platform:   platformString(),
			Version:    "1",
			RecordMode: string(r.mode),
		},
		Exchanges: exchanges,
	}

	if r.decorators.Tape != nil {
		t = r.decorators.Tape(t)
	}
	if r.redactEnabled {
		redactTape(t)
	}

	path := r.tapePath
	if path == "" {
		path = r.gen.Generate(namegen.Context{
			Root:    r.store.Root(),
			Program: r.meta.Program,
			Args:    r.meta.Args,
			Cwd:     r.meta.Cwd,
			Input:   firstInputText(exchanges),
			Tag:     r.tag,
			NowMs:   time.Now().UnixMilli(),
		})
	}
	t.Path = path

	switch r.mode {
	case ModeNew:
		if r.matched {
			r.log.Infof("stop", "existing tape matched under new mode; keeping in-memory only (%s)", path)
			return path, nil
		}
	case ModeOverwrite:
		// fall through: always persist, replacing any existing tape at path.
	}

	if err := r.store.SaveTape(t); err != nil {
		return "", fmt.Errorf("save tape: %w", err)
	}
	r.store.MarkNew(path)
	r.log.Infof("stop", "recorded %d exchanges to %s", len(exchanges), path)
	return path, nil
}

func firstInputText(exchanges []tape.Exchange) string {
	if len(exchanges) == 0 {
		return ""
	}
	return exchanges[0].Input.Text()
}

func redactTape(t *tape.Tape) {
	t.Meta.Env = redact.MaskEnv(t.Meta.Env)
	for i := range t.Exchanges {
		ex := &t.Exchanges[i]
		var redactions int
		if text := ex.Input.Text(); text != "" {
			scrubbed, n := redact.Redact(text)
			ex.Input.DataText = scrubbed
			ex.Input.DataBin = nil
			redactions += n
		}
		for j := range ex.Output.Chunks {
			c := &ex.Output.Chunks[j]
			if c.IsUTF8 {
				scrubbed, n := redact.Redact(string(c.Data))
				c.Data = []byte(scrubbed)
				redactions += n
			}
		}
		if redactions > 0 {
			if ex.Annotations == nil {
				ex.Annotations = map[string]string{}
			}
			ex.Annotations["redactionCount"] = strconv.Itoa(redactions)
		}
	}
}

func platformString() string {
	return runtime.GOOS
}
