package record

import (
	"strings"

	"github.com/jimmc414/claude-cli-control/internal/tape"
)

// InputDecorator transforms a captured input before it is attached to an
// exchange (e.g. to scrub or retag it beyond what the redactor already does).
type InputDecorator func(tape.IOInput) tape.IOInput

// OutputDecorator transforms a captured output before it is attached to an
// exchange.
type OutputDecorator func(tape.IOOutput) tape.IOOutput

// TapeDecorator transforms the fully assembled tape just before it is saved.
type TapeDecorator func(*tape.Tape) *tape.Tape

// DecoratorSet bundles the three decorator hooks a Recorder may apply.
// Any field left nil is skipped.
type DecoratorSet struct {
	Input  InputDecorator
	Output OutputDecorator
	Tape   TapeDecorator
}

// UppercaseInput is an example InputDecorator useful in tests that want a
// visibly distinct recorded form.
func UppercaseInput(in tape.IOInput) tape.IOInput {
	in.DataText = strings.ToUpper(in.DataText)
	return in
}

// TagAnnotation returns a TapeDecorator that stamps every exchange's
// annotations with the given key/value, overwriting any existing value
// under that key.
func TagAnnotation(key, value string) TapeDecorator {
	return func(t *tape.Tape) *tape.Tape {
		for i := range t.Exchanges {
			if t.Exchanges[i].Annotations == nil {
				t.Exchanges[i].Annotations = map[string]string{}
			}
			t.Exchanges[i].Annotations[key] = value
		}
		return t
	}
}

// FilterEnvDecorator returns a TapeDecorator that drops Meta.Env entries
// whose key is in drop, case-sensitively, useful when a caller wants more
// aggressive scrubbing than the default redactor's substring match.
func FilterEnvDecorator(drop ...string) TapeDecorator {
	dropSet := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		dropSet[k] = struct{}{}
	}
	return func(t *tape.Tape) *tape.Tape {
		for key := range dropSet {
			delete(t.Meta.Env, key)
		}
		return t
	}
}
