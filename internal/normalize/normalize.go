// Package normalize reduces raw terminal output and paths to a stable form
// so that two runs which differ only in timestamps, PIDs, tmp-dir names, or
// cosmetic whitespace still compare equal for matching purposes.
package normalize

import (
	"os"
	"regexp"
	"runtime"
	"strings"
)

var ansiPattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|[@-Z\\-_])`)

// StripANSI removes CSI and two-byte ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// CollapseWhitespace collapses runs of spaces/tabs to a single space and
// trims trailing whitespace from each line. Newlines are preserved.
func CollapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = whitespaceRun.ReplaceAllString(line, " ")
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

var (
	isoTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	unixEpoch    = regexp.MustCompile(`\b\d{10,13}\b`)
	hexID        = regexp.MustCompile(`\b[0-9a-fA-F]{7,40}\b`)
	uuidPattern  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	hexAddr      = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	tmpPath      = regexp.MustCompile(`/tmp/[^\s"']*`)
	tmpBasename  = regexp.MustCompile(`\b(tmp|temp)[A-Za-z0-9._-]*\b`)
)

// ScrubVolatile replaces tokens that vary run-to-run (timestamps, PIDs,
// content hashes, UUIDs, memory addresses, temp-file paths) with stable
// placeholders, in the order: UUID before hex id (UUIDs would otherwise be
// partially eaten by the hex-id pattern), timestamp before epoch.
func ScrubVolatile(s string) string {
	s = isoTimestamp.ReplaceAllString(s, "<TIMESTAMP>")
	s = uuidPattern.ReplaceAllString(s, "<UUID>")
	s = unixEpoch.ReplaceAllString(s, "<EPOCH>")
	s = hexAddr.ReplaceAllString(s, "<ADDR>")
	s = hexID.ReplaceAllString(s, "<HEXID>")
	s = tmpPath.ReplaceAllString(s, "<TMPPATH>")
	s = tmpBasename.ReplaceAllString(s, "<TMPNAME>")
	return s
}

// NormalizeLineEndings converts CRLF and lone CR to LF.
func NormalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// NormalizePaths replaces the current user's home directory prefix with a
// stable placeholder, accounting for the platform's path separator.
func NormalizePaths(s string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return s
	}
	s = strings.ReplaceAll(s, home, "<HOME>")
	if runtime.GOOS == "windows" {
		s = strings.ReplaceAll(s, strings.ReplaceAll(home, `\`, `/`), "<HOME>")
	}
	return s
}

// Options selects which normalization passes Normalize applies.
type Options struct {
	StripANSI           bool
	CollapseWhitespace  bool
	ScrubVolatile       bool
	NormalizePaths      bool
	NormalizeLineEndings bool
}

// Default is the normalization profile used by the matcher: strip ANSI,
// normalize line endings, scrub volatile tokens, normalize paths. Whitespace
// collapsing is opt-in since it can change meaningfully-indented output.
var Default = Options{
	StripANSI:            true,
	NormalizeLineEndings: true,
	ScrubVolatile:        true,
	NormalizePaths:       true,
}

// Normalize applies the selected passes to s in a fixed order: ANSI
// stripping first, then optional whitespace collapsing, then volatile-token
// scrubbing (including the home-directory prefix), then line-ending
// normalization last. ANSI must be stripped before the other passes run
// since escape sequences would otherwise change what the volatile-token and
// whitespace patterns see; line endings normalize last so none of the
// earlier passes have to account for CRLF.
func Normalize(s string, opts Options) string {
	if opts.StripANSI {
		s = StripANSI(s)
	}
	if opts.CollapseWhitespace {
		s = CollapseWhitespace(s)
	}
	if opts.ScrubVolatile {
		s = ScrubVolatile(s)
	}
	if opts.NormalizePaths {
		s = NormalizePaths(s)
	}
	if opts.NormalizeLineEndings {
		s = NormalizeLineEndings(s)
	}
	return s
}

// BuildKey joins normalized parts with "|" to form an index key. Empty parts
// are preserved (not skipped) so position in the key remains stable.
func BuildKey(parts ...string) string {
	return strings.Join(parts, "|")
}
