// Package transport implements the replay side of the harness contract: a
// drop-in substitute for a spawned interactive process that streams
// previously recorded chunks back instead of running the real program,
// falling back to a live process only when nothing in the tape population
// matches.
package transport

import (
	"fmt"
	"io"
	"math/rand"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/jimmc414/claude-cli-control/internal/match"
	"github.com/jimmc414/claude-cli-control/internal/metrics"
	"github.com/jimmc414/claude-cli-control/internal/normalize"
	"github.com/jimmc414/claude-cli-control/internal/policy"
	"github.com/jimmc414/claude-cli-control/internal/record"
	"github.com/jimmc414/claude-cli-control/internal/replaylog"
	"github.com/jimmc414/claude-cli-control/internal/replayerr"
	"github.com/jimmc414/claude-cli-control/internal/store"
	"github.com/jimmc414/claude-cli-control/internal/tape"
)

// Fallback selects what happens when no recorded exchange matches a send.
type Fallback string

// Recognized fallback modes.
const (
	FallbackNotFound Fallback = "not_found"
	FallbackProxy    Fallback = "proxy"
)

// pollInterval is how often Expect re-checks the buffer against its
// patterns while waiting for a timeout, matching the ~10ms cadence the
// cooperative-timeout design calls for.
const pollInterval = 10 * time.Millisecond

// Config supplies everything a Transport needs to resolve and stream
// exchanges for one session.
type Config struct {
	Program string
	Args    []string
	Env     []string
	Cwd     string

	Store       *store.Store
	Matcher     *match.CompositeMatcher
	Latency     policy.Triple
	ErrorPolicy policy.Error
	Metrics     *metrics.Metrics
	Log         *replaylog.Logger
	Recorder    *record.Recorder
	Fallback    Fallback
	Seed        int64
}

// Transport emulates a spawned process's send/expect contract, streaming
// matched tape chunks into an internal buffer instead of running a child.
type Transport struct {
	mu sync.Mutex

	buf          []byte
	Before       string
	After        string
	Match        int
	ExitStatus   *int
	SignalStatus string

	program string
	args    []string
	env     []string
	cwd     string

	store       *store.Store
	matcher     *match.CompositeMatcher
	latency     policy.Triple
	errPolicy   policy.Error
	met         *metrics.Metrics
	log         *replaylog.Logger
	recorder    *record.Recorder
	fallback    Fallback
	rng         *rand.Rand
	exchangeSeq int

	closed       bool
	producerDone chan struct{}
	producerWG   sync.WaitGroup

	liveMode    bool
	liveCmd     *exec.Cmd
	liveStdin   io.WriteCloser
	liveExited  bool
	liveWait    sync.Once
	liveWaitErr error
}

// New constructs a Transport ready to serve Send/Expect calls.
func New(cfg Config) *Transport {
	cfg.ErrorPolicy.Init()
	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic replay, not security-sensitive
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // replay pacing jitter, not security-sensitive
	}
	return &Transport{
		Match:        -1,
		program:      cfg.Program,
		args:         cfg.Args,
		env:          cfg.Env,
		cwd:          cfg.Cwd,
		store:        cfg.Store,
		matcher:      cfg.Matcher,
		latency:      cfg.Latency,
		errPolicy:    cfg.ErrorPolicy,
		met:          cfg.Metrics,
		log:          cfg.Log,
		recorder:     cfg.Recorder,
		fallback:     cfg.Fallback,
		rng:          rng,
		producerDone: make(chan struct{}),
	}
}

// Send publishes the current buffer as Before, resolves the matching
// exchange (or live fallback) for data, and schedules its output to stream
// into the buffer.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	t.Before = string(t.buf)
	t.After = ""
	t.Match = -1
	t.exchangeSeq++
	ctx := match.Context{
		Program: t.program,
		Args:    t.args,
		Env:     t.env,
		Cwd:     t.cwd,
		Prompt:  t.Before,
		Input:   string(data),
	}
	live := t.liveMode
	t.mu.Unlock()

	if live {
		return t.sendLive(data)
	}

	start := time.Now()
	ex, meta, path, ok := t.lookup(ctx)
	if t.met != nil {
		t.met.RecordMatchLatency(time.Since(start))
	}

	if !ok {
		return t.handleMiss(ctx, data)
	}
	if t.met != nil {
		t.met.ExchangeHits.Add(1)
	}
	if path != "" {
		t.store.MarkUsed(path)
	}
	_ = meta
	t.startProducer(ex)
	return nil
}

// SendLine is equivalent to Send(s + "\n").
func (t *Transport) SendLine(s string) error {
	return t.Send([]byte(s + "\n"))
}

// lookup resolves ctx against the store: an O(1) normalized-key hit first,
// falling back to a linear scan across every loaded tape's exchanges.
func (t *Transport) lookup(ctx match.Context) (*tape.Exchange, *tape.Meta, string, bool) {
	key := normalize.BuildKey(
		filepath.Base(ctx.Program),
		fmt.Sprint(ctx.Args),
		normalize.Normalize(ctx.Prompt, normalize.Default),
		normalize.Normalize(ctx.Input, normalize.Default),
	)
	if ex, meta, path, ok := t.store.Lookup(key); ok && t.matcher.Match(ex, meta, ctx) {
		return ex, meta, path, true
	}
	for _, tp := range t.store.All() {
		for i := range tp.Exchanges {
			if t.matcher.Match(&tp.Exchanges[i], &tp.Meta, ctx) {
				return &tp.Exchanges[i], &tp.Meta, tp.Path, true
			}
		}
	}
	if t.met != nil {
		t.met.ExchangeMisses.Add(1)
	}
	return nil, nil, "", false
}

// handleMiss applies the configured fallback when no recorded exchange
// matches ctx.
func (t *Transport) handleMiss(ctx match.Context, data []byte) error {
	switch t.fallback {
	case FallbackProxy:
		t.mu.Lock()
		if !t.liveMode {
			if err := t.spawnLiveLocked(); err != nil {
				t.mu.Unlock()
				return replayerr.Playback("spawn live fallback", err)
			}
		}
		t.mu.Unlock()
		if t.recorder != nil {
			kind := tape.InputLine
			t.recorder.OnSend(ctx.Prompt, tape.IOInput{Kind: kind, DataText: ctx.Input})
		}
		return t.sendLive(data)
	default:
		t.log.Warnf("send", "no recorded exchange for program=%s args=%v", ctx.Program, ctx.Args)
		return replayerr.TapeMiss(replayerr.TapeMissContext{
			Program: ctx.Program,
			Args:    ctx.Args,
			Prompt:  ctx.Prompt,
			Input:   ctx.Input,
		})
	}
}

// startProducer streams ex's chunks into the buffer on a background
// goroutine, pacing each by the latency policy and applying error injection
// once all (or a truncated prefix of) the chunks have streamed.
func (t *Transport) startProducer(ex *tape.Exchange) {
	chunks := ex.Output.Chunks
	polCtx := policy.Context{Program: t.program, Args: t.args, Attempt: t.exchangeSeq}
	fire := t.errPolicy.ShouldFire(polCtx)
	limit := len(chunks)
	if fire {
		limit = t.errPolicy.TruncatedChunkCount(len(chunks))
	}

	t.producerWG.Add(1)
	go func() {
		defer t.producerWG.Done()
		for i := 0; i < limit; i++ {
			select {
			case <-t.producerDone:
				return
			default:
			}
			delay := t.latency.Resolve(polCtx, chunks[i].DelayMs, t.rng)
			if delay > 0 {
				select {
				case <-time.After(time.Duration(delay) * time.Millisecond):
				case <-t.producerDone:
					return
				}
			}
			t.mu.Lock()
			t.buf = append(t.buf, chunks[i].Data...)
			t.mu.Unlock()
			if t.met != nil {
				t.met.ChunksStreamed.Add(1)
				t.met.BytesStreamed.Add(int64(len(chunks[i].Data)))
			}
		}

		t.mu.Lock()
		switch {
		case fire:
			msg := t.errPolicy.Message
			if msg == "" {
				msg = "injected replay error\n"
			}
			t.buf = append(t.buf, []byte(msg)...)
			code := t.errPolicy.ExitCode
			t.ExitStatus = &code
			if t.met != nil {
				t.met.ErrorsInjected.Add(1)
			}
		case ex.Exit != nil:
			if ex.Exit.Code != nil {
				code := *ex.Exit.Code
				t.ExitStatus = &code
			}
			t.SignalStatus = ex.Exit.Signal
		}
		t.mu.Unlock()
	}()
}

// Expect polls the buffer against patterns (compiled as regular
// expressions) until one matches or timeout elapses. On match it returns
// the matching pattern's index and splits the buffer: Before holds
// everything up to the match, After holds the match itself, and the
// remainder stays buffered for the next call.
func (t *Transport) Expect(patterns []string, timeout time.Duration) (int, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return -1, replayerr.Playback(fmt.Sprintf("invalid expect pattern %q", p), err)
		}
		compiled[i] = re
	}
	return t.expectCompiled(compiled, timeout)
}

// ExpectExact is Expect after escaping every pattern as a literal string.
func (t *Transport) ExpectExact(patterns []string, timeout time.Duration) (int, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(regexp.QuoteMeta(p))
	}
	return t.expectCompiled(compiled, timeout)
}

func (t *Transport) expectCompiled(patterns []*regexp.Regexp, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if idx, ok := t.tryMatch(patterns); ok {
			return idx, nil
		}

		t.mu.Lock()
		exited := t.ExitStatus != nil
		t.mu.Unlock()
		if exited {
			if idx, ok := t.tryMatch(patterns); ok {
				return idx, nil
			}
			return -1, replayerr.Playback("process exited before any expect pattern matched", nil)
		}

		if time.Now().After(deadline) {
			t.mu.Lock()
			t.Before = string(t.buf)
			t.mu.Unlock()
			return -1, replayerr.Timeout(patternNames(patterns))
		}
		<-ticker.C
	}
}

// tryMatch attempts one match pass over the current buffer, committing the
// split on success.
func (t *Transport) tryMatch(patterns []*regexp.Regexp) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bestIdx, bestStart, bestEnd := -1, -1, -1
	for i, re := range patterns {
		loc := re.FindIndex(t.buf)
		if loc == nil {
			continue
		}
		if bestIdx == -1 || loc[0] < bestStart {
			bestIdx, bestStart, bestEnd = i, loc[0], loc[1]
		}
	}
	if bestIdx == -1 {
		return -1, false
	}

	t.Before = string(t.buf[:bestStart])
	t.After = string(t.buf[bestStart:bestEnd])
	t.Match = bestIdx
	t.buf = t.buf[bestEnd:]
	return bestIdx, true
}

func patternNames(patterns []*regexp.Regexp) string {
	names := make([]string, len(patterns))
	for i, re := range patterns {
		names[i] = re.String()
	}
	return fmt.Sprint(names)
}

// IsAlive reports whether the transport has neither been closed nor
// reached a recorded (or live) exit.
func (t *Transport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.liveMode {
		return !t.liveExited
	}
	return t.ExitStatus == nil
}

// Close marks the transport closed, joins the chunk producer, and tears
// down any live fallback process. Idempotent.
func (t *Transport) Close(force bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.producerDone)
	cmd := t.liveCmd
	stdin := t.liveStdin
	t.mu.Unlock()

	t.producerWG.Wait()

	if cmd == nil {
		return nil
	}
	if force {
		return cmd.Process.Kill()
	}
	if stdin != nil {
		stdin.Close() //nolint:errcheck // best-effort: we're tearing down
	}
	return t.waitLive(cmd)
}

// waitLive calls cmd.Wait exactly once regardless of how many goroutines
// (pumpLive on EOF, Close on teardown) race to reap the live fallback
// process; calling *exec.Cmd.Wait more than once returns an error.
func (t *Transport) waitLive(cmd *exec.Cmd) error {
	t.liveWait.Do(func() {
		t.liveWaitErr = cmd.Wait()
	})
	return t.liveWaitErr
}

// spawnLiveLocked starts the real program as the PROXY fallback and begins
// pumping its stdout into the buffer. Must be called with t.mu held.
func (t *Transport) spawnLiveLocked() error {
	cmd := exec.Command(t.program, t.args...) //nolint:gosec // program/args are operator-supplied session config
	cmd.Env = t.env
	cmd.Dir = t.cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open live stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open live stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start live fallback: %w", err)
	}

	t.liveCmd = cmd
	t.liveStdin = stdin
	t.liveMode = true
	t.log.Warnf("fallback", "no tape matched; proxying live to %s", t.program)

	go t.pumpLive(stdout)
	return nil
}

func (t *Transport) pumpLive(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.mu.Lock()
			t.buf = append(t.buf, chunk...)
			t.mu.Unlock()
			if t.recorder != nil {
				t.recorder.Write(chunk) //nolint:errcheck // ChunkSink.Write never errors
			}
			if t.met != nil {
				t.met.ChunksStreamed.Add(1)
				t.met.BytesStreamed.Add(int64(n))
			}
		}
		if err != nil {
			t.mu.Lock()
			cmd := t.liveCmd
			t.mu.Unlock()
			waitErr := t.waitLive(cmd)

			t.mu.Lock()
			t.liveExited = true
			if t.ExitStatus == nil {
				code := 0
				if cmd.ProcessState != nil {
					code = cmd.ProcessState.ExitCode()
				} else if waitErr != nil {
					code = 1
				}
				t.ExitStatus = &code
			}
			t.mu.Unlock()
			if t.recorder != nil {
				var exit *tape.ExitInfo
				if t.ExitStatus != nil {
					exit = &tape.ExitInfo{Code: t.ExitStatus}
				}
				t.recorder.OnExpectComplete(exit)
			}
			return
		}
	}
}

func (t *Transport) sendLive(data []byte) error {
	t.mu.Lock()
	stdin := t.liveStdin
	t.mu.Unlock()
	if stdin == nil {
		return replayerr.Playback("live fallback not running", nil)
	}
	_, err := stdin.Write(data)
	return err
}
