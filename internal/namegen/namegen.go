// Package namegen derives filesystem paths for newly recorded tapes from
// the exchange context, so a fresh recording lands somewhere predictable
// and collision-resistant without the caller naming it by hand.
package namegen

import (
	"crypto/sha1" //nolint:gosec // content fingerprint, not a security boundary
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

// verbPattern matches a bare lowercase-letters subcommand name, e.g. "status"
// or "commit" in `git status` / `git commit`.
var verbPattern = regexp.MustCompile(`^[a-z]+$`)

// Context is everything a Generator needs to derive a tape path.
type Context struct {
	Root    string // tape root directory
	Program string
	Args    []string
	Cwd     string
	Input   string
	Verb    string // e.g. "status", "commit" — used by the semantic variant
	Tag     string // used by the tagged variant
	NowMs   int64  // caller-supplied clock reading, for determinism in tests
}

// Generator derives a tape file path from a recording Context.
type Generator interface {
	Generate(ctx Context) string
}

// Default produces `{root}/{program}/unnamed-{epoch_ms}-{hash}.tape`, where
// hash is an 8-hex-character prefix of sha1(program ∥ args ∥ cwd ∥ input).
type Default struct{}

// Generate implements Generator.
func (Default) Generate(ctx Context) string {
	prog := sanitizeProgram(ctx.Program)
	hash := fingerprint(ctx)
	name := fmt.Sprintf("unnamed-%d-%s.tape", ctx.NowMs, hash)
	return filepath.Join(ctx.Root, prog, name)
}

// Semantic produces `{root}/{program}/{verb}/unnamed-{epoch_ms}-{hash}.tape`,
// adding a verb-named subdirectory so recordings of e.g. `git status` and
// `git commit` land in different directories under the same program.
type Semantic struct{}

// Generate implements Generator.
func (Semantic) Generate(ctx Context) string {
	prog := sanitizeProgram(ctx.Program)
	hash := fingerprint(ctx)
	name := fmt.Sprintf("unnamed-%d-%s.tape", ctx.NowMs, hash)
	verb := slug.Make(deriveVerb(ctx))
	if verb == "" {
		verb = "default"
	}
	return filepath.Join(ctx.Root, prog, verb, name)
}

// deriveVerb picks the verb directory for a Semantic path: an explicitly
// supplied ctx.Verb wins, otherwise args[0] is used if it looks like a bare
// subcommand name (only lowercase letters, e.g. "status" in `git status`).
func deriveVerb(ctx Context) string {
	if ctx.Verb != "" {
		return ctx.Verb
	}
	if len(ctx.Args) > 0 && verbPattern.MatchString(ctx.Args[0]) {
		return ctx.Args[0]
	}
	return ""
}

// Tagged produces `{root}/{program}/{tag}.tape`, for a caller that supplies
// a stable, human-chosen name instead of a content hash.
type Tagged struct{}

// Generate implements Generator.
func (Tagged) Generate(ctx Context) string {
	prog := sanitizeProgram(ctx.Program)
	tag := slug.Make(ctx.Tag)
	if tag == "" {
		tag = "unnamed"
	}
	return filepath.Join(ctx.Root, prog, tag+".tape")
}

func sanitizeProgram(program string) string {
	base := filepath.Base(program)
	s := slug.Make(base)
	if s == "" {
		return "unknown"
	}
	return s
}

func fingerprint(ctx Context) string {
	h := sha1.New() //nolint:gosec // content fingerprint, not a security boundary
	h.Write([]byte(ctx.Program))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ctx.Args, "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(ctx.Cwd))
	h.Write([]byte{0})
	h.Write([]byte(ctx.Input))
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum)[:8]
}
