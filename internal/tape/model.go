// Package tape defines the on-disk record/replay data model: a Tape is an
// ordered sequence of Exchanges (one stimulus → one response), each carrying
// the pre-exchange prompt/state, the recorded input, the chunked output, and
// exit information.
package tape

// Chunk is one timed slice of output data captured from the child process.
// Delay is the elapsed time since the previous chunk (or since the input was
// sent, for the first chunk), in milliseconds.
type Chunk struct {
	DelayMs int64  `json:"delayMs"`
	Data    []byte `json:"-"` // raw bytes; wire encoding handled by MarshalJSON
	IsUTF8  bool   `json:"isUtf8"`
}

// InputKind distinguishes a line-oriented send (sendline) from a raw send.
type InputKind string

// Recognized InputKind values.
const (
	InputLine InputKind = "line"
	InputRaw  InputKind = "raw"
)

// IOInput is the stimulus half of an Exchange: what was sent to the child.
type IOInput struct {
	Kind     InputKind `json:"kind"`
	DataText string    `json:"dataText,omitempty"`
	DataBin  []byte    `json:"-"` // set when DataText is not valid UTF-8
}

// IOOutput is the response half of an Exchange: the ordered chunks captured
// before the exchange was finalized.
type IOOutput struct {
	Chunks []Chunk `json:"chunks"`
}

// ExitInfo records how the child process ended, if it ended during this
// exchange. A nil *ExitInfo on an Exchange means the process was still
// running when the exchange was finalized.
type ExitInfo struct {
	Code   *int   `json:"code,omitempty"`
	Signal string `json:"signal,omitempty"`
}

// Pre captures the state observed immediately before an exchange's input was
// sent: the prompt text the matcher compares against, and an optional opaque
// state hash supplied by the caller (e.g. a hash of relevant shell state).
type Pre struct {
	Prompt    string `json:"prompt"`
	StateHash string `json:"stateHash,omitempty"`
}

// Exchange is one stimulus/response unit: the state before sending, what was
// sent, what came back, how it ended, how long it took, and free-form
// annotations (e.g. exchangeId, decorator-applied tags).
type Exchange struct {
	Pre         Pre               `json:"pre"`
	Input       IOInput           `json:"input"`
	Output      IOOutput          `json:"output"`
	Exit        *ExitInfo         `json:"exit,omitempty"`
	DurationMs  int64             `json:"durMs"`
	Annotations map[string]string `json:"annotations,omitempty"`

	// extra preserves unknown wire fields verbatim across a load→save cycle.
	extra map[string]any
}

// PTYSize records the terminal geometry recorded at session start.
type PTYSize struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Meta is the per-tape header: what was recorded and under what conditions.
type Meta struct {
	CreatedAt string            `json:"createdAt"`
	Program   string            `json:"program"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	PTY       *PTYSize          `json:"pty,omitempty"`
	Tag       string            `json:"tag,omitempty"`
	Latency   string            `json:"latency,omitempty"`
	ErrorRate float64           `json:"errorRate,omitempty"`
	Seed      int64             `json:"seed,omitempty"`

	extra map[string]any
}

// Session carries environment metadata about the recording session itself,
// as opposed to the target process (Meta).
type Session struct {
	Platform   string `json:"platform"`
	Version    string `json:"version"`
	RecordMode string `json:"recordMode"`

	extra map[string]any
}

// Tape is the full on-disk unit: metadata, session info, and the ordered
// list of exchanges recorded against one program invocation shape.
type Tape struct {
	Meta      Meta       `json:"meta"`
	Session   Session    `json:"session"`
	Exchanges []Exchange `json:"exchanges"`

	// Path is the file this tape was loaded from (or will be saved to).
	// Not part of the wire format.
	Path string `json:"-"`

	extra map[string]any
}
