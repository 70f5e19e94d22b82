package tape

import (
	"encoding/json"
	"fmt"

	"github.com/jimmc414/claude-cli-control/internal/tape/permissive"
)

// FromPermissiveJSON decodes a tape file's contents, tolerating comments and
// trailing commas.
func FromPermissiveJSON(data []byte) (*Tape, error) {
	stripped := permissive.Strip(data)
	var t Tape
	if err := json.Unmarshal(stripped, &t); err != nil {
		return nil, fmt.Errorf("decode tape: %w", err)
	}
	return &t, nil
}

// ToJSON encodes a tape as indented, strict JSON (comments and trailing
// commas are a reader convenience only; this package never writes them).
func (t *Tape) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
