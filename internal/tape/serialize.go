package tape

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MarshalJSON encodes a Chunk as either a UTF-8 "data" string or a
// base64-encoded "dataB64" string, depending on IsUTF8.
func (c Chunk) MarshalJSON() ([]byte, error) {
	w := chunkWire{DelayMs: c.DelayMs, IsUTF8: c.IsUTF8}
	if c.IsUTF8 {
		w.Data = string(c.Data)
	} else {
		w.DataB64 = base64.StdEncoding.EncodeToString(c.Data)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a Chunk from either representation, falling back to
// base64 decoding if "data" is absent or found to be invalid UTF-8.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var w chunkWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.DelayMs = w.DelayMs
	c.IsUTF8 = w.IsUTF8
	switch {
	case w.DataB64 != "":
		raw, err := base64.StdEncoding.DecodeString(w.DataB64)
		if err != nil {
			return fmt.Errorf("chunk dataB64: %w", err)
		}
		c.Data = raw
	default:
		c.Data = []byte(w.Data)
		c.IsUTF8 = c.IsUTF8 || utf8.Valid(c.Data)
	}
	return nil
}

type chunkWire struct {
	DelayMs int64  `json:"delayMs"`
	Data    string `json:"data,omitempty"`
	DataB64 string `json:"dataB64,omitempty"`
	IsUTF8  bool   `json:"isUtf8"`
}

// MarshalJSON encodes an IOInput, preferring the readable "dataText" field
// and falling back to "dataBytesB64" when the payload is not valid UTF-8.
func (in IOInput) MarshalJSON() ([]byte, error) {
	w := inputWire{Kind: in.Kind}
	if in.DataBin != nil {
		w.DataBytesB64 = base64.StdEncoding.EncodeToString(in.DataBin)
	} else {
		w.DataText = in.DataText
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an IOInput from either representation.
func (in *IOInput) UnmarshalJSON(data []byte) error {
	var w inputWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	in.Kind = w.Kind
	if w.DataBytesB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(w.DataBytesB64)
		if err != nil {
			return fmt.Errorf("input dataBytesB64: %w", err)
		}
		in.DataBin = raw
		in.DataText = ""
		return nil
	}
	in.DataText = w.DataText
	in.DataBin = nil
	return nil
}

type inputWire struct {
	Kind         InputKind `json:"kind"`
	DataText     string    `json:"dataText,omitempty"`
	DataBytesB64 string    `json:"dataBytesB64,omitempty"`
}

// Text returns the input's logical text form regardless of which wire
// representation was used, decoding DataBin as UTF-8 on a best-effort basis.
func (in IOInput) Text() string {
	if in.DataBin != nil {
		return string(in.DataBin)
	}
	return in.DataText
}

// knownExchangeFields lists the JSON keys Exchange maps onto Go fields,
// everything else is preserved verbatim in extra.
var knownExchangeFields = map[string]struct{}{
	"pre": {}, "input": {}, "output": {}, "exit": {}, "durMs": {}, "annotations": {},
}

// MarshalJSON encodes an Exchange, merging back any unknown fields captured
// at load time so a load→save round trip is lossless.
func (e Exchange) MarshalJSON() ([]byte, error) {
	type alias Exchange
	base, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, e.extra)
}

// UnmarshalJSON decodes an Exchange, capturing any field this struct does
// not model so it survives a later MarshalJSON.
func (e *Exchange) UnmarshalJSON(data []byte) error {
	type alias Exchange
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.extra = extractExtra(data, knownExchangeFields)
	return nil
}

var knownMetaFields = map[string]struct{}{
	"createdAt": {}, "program": {}, "args": {}, "env": {}, "cwd": {}, "pty": {},
	"tag": {}, "latency": {}, "errorRate": {}, "seed": {},
}

// MarshalJSON encodes Meta, merging back unknown fields.
func (m Meta) MarshalJSON() ([]byte, error) {
	type alias Meta
	base, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, m.extra)
}

// UnmarshalJSON decodes Meta, capturing unknown fields.
func (m *Meta) UnmarshalJSON(data []byte) error {
	type alias Meta
	if err := json.Unmarshal(data, (*alias)(m)); err != nil {
		return err
	}
	m.extra = extractExtra(data, knownMetaFields)
	return nil
}

var knownSessionFields = map[string]struct{}{
	"platform": {}, "version": {}, "recordMode": {},
}

// MarshalJSON encodes Session, merging back unknown fields.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	base, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, s.extra)
}

// UnmarshalJSON decodes Session, capturing unknown fields.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	if err := json.Unmarshal(data, (*alias)(s)); err != nil {
		return err
	}
	s.extra = extractExtra(data, knownSessionFields)
	return nil
}

var knownTapeFields = map[string]struct{}{
	"meta": {}, "session": {}, "exchanges": {},
}

// MarshalJSON encodes a Tape, merging back unknown top-level fields.
func (t Tape) MarshalJSON() ([]byte, error) {
	type alias Tape
	base, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, t.extra)
}

// UnmarshalJSON decodes a Tape, capturing unknown top-level fields.
func (t *Tape) UnmarshalJSON(data []byte) error {
	type alias Tape
	if err := json.Unmarshal(data, (*alias)(t)); err != nil {
		return err
	}
	t.extra = extractExtra(data, knownTapeFields)
	return nil
}

// extractExtra decodes data as a generic object and returns every key not
// present in known, for later re-merging. Returns nil if data isn't an
// object or carries no unrecognized keys.
func extractExtra(data []byte, known map[string]struct{}) map[string]any {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var extra map[string]any
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = val
	}
	return extra
}

// mergeExtra re-injects previously captured unknown fields into an already
// marshaled JSON object, without overwriting any known field.
func mergeExtra(base []byte, extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(base, &obj); err != nil {
		return base, nil //nolint:nilerr // base is always a valid object; fall back silently
	}
	for k, v := range extra {
		if _, exists := obj[k]; exists {
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		obj[k] = encoded
	}
	return json.Marshal(obj)
}
