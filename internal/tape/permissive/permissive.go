// Package permissive strips the small set of human-editing conveniences
// tape files allow beyond strict JSON — "//" and "/* */" comments, trailing
// commas before the closing bracket of an array or object, and unquoted
// object keys — so the result can be handed to encoding/json. No JSON5/HJSON
// library appears anywhere in the dependency surface this module draws on,
// so this is a deliberate, narrowly-scoped standard-library fallback rather
// than a hand-rolled parser: it never reinterprets numbers or structure, it
// only removes or quotes the conventions hand-edited tapes rely on.
package permissive

// Strip removes comments and trailing commas from data, returning input
// suitable for encoding/json.Unmarshal. String contents (including escaped
// quotes) are left untouched; only bytes outside of string literals are
// considered for removal.
func Strip(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	escaped := false
	i := 0
	for i < len(data) {
		c := data[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			i++
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
			i++
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			i += 2
			for i < len(data) && data[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i += 2
		case c == ',':
			if j := nextSignificant(data, i+1); j < len(data) && (data[j] == '}' || data[j] == ']') {
				i++ // drop the trailing comma
				continue
			}
			out = append(out, c)
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(data) && isIdentPart(data[j]) {
				j++
			}
			ident := data[i:j]
			if looksLikeKey(out, data, j) {
				out = append(out, '"')
				out = append(out, ident...)
				out = append(out, '"')
			} else {
				out = append(out, ident...)
			}
			i = j
		default:
			out = append(out, c)
			i++
		}
	}
	return out
}

// nextSignificant returns the index of the next non-whitespace byte at or
// after i, skipping spaces, tabs, and newlines (comments are assumed already
// handled by the caller's forward scan, so this only needs to skip
// whitespace between a comma and the next token).
func nextSignificant(data []byte, i int) int {
	for i < len(data) {
		switch data[i] {
		case ' ', '\t', '\r', '\n':
			i++
			continue
		}
		return i
	}
	return i
}

// isIdentStart reports whether c can begin a bare JavaScript-style
// identifier, the shape an unquoted object key is allowed to take.
func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isIdentPart reports whether c can continue a bare identifier begun by
// isIdentStart.
func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// looksLikeKey reports whether the identifier ending at index end in data
// sits in object-key position: immediately preceded (ignoring whitespace and
// already-stripped comments) by "{" or "," in out, and immediately followed
// (ignoring whitespace) by ":" in data. Value-position bare words (true,
// false, null, or an identifier following ":") never satisfy both.
func looksLikeKey(out, data []byte, end int) bool {
	prev := lastSignificant(out)
	if prev != '{' && prev != ',' {
		return false
	}
	next := nextSignificant(data, end)
	return next < len(data) && data[next] == ':'
}

// lastSignificant returns the last non-whitespace byte already written to
// out, or 0 if out is empty or all-whitespace.
func lastSignificant(out []byte) byte {
	for k := len(out) - 1; k >= 0; k-- {
		switch out[k] {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return out[k]
	}
	return 0
}
