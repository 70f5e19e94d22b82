// Package match implements the composite matching engine that decides
// whether a recorded Exchange applies to the current session context.
// Five sub-matchers run in a fixed order (command, environment, prompt,
// stdin, state); the first one to return false rejects the candidate.
package match

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jimmc414/claude-cli-control/internal/normalize"
	"github.com/jimmc414/claude-cli-control/internal/tape"
)

// Context is the current session state a candidate Exchange is matched
// against.
type Context struct {
	Program   string
	Args      []string
	Env       []string // KEY=VALUE
	Cwd       string
	Prompt    string
	Input     string
	StateHash string
}

// Options configures matcher behavior (ignore lists, env allow-list, etc.).
type Options struct {
	IgnoreArgs  []string // indices ("1") or prefixes ("--verbose")
	AllowEnv    []string // if non-empty, only these keys are compared
	IgnoreEnv   []string // used when AllowEnv is empty
	IgnoreStdin bool
	UseRegex    bool // treat a recorded prompt as a regex pattern instead of exact text
}

// defaultIgnoreEnv mirrors common shell/session-scoped variables that vary
// run-to-run without affecting program behavior.
var defaultIgnoreEnv = map[string]struct{}{
	"PWD": {}, "OLDPWD": {}, "SHLVL": {}, "RANDOM": {}, "_": {},
	"COLUMNS": {}, "LINES": {},
	"PS1": {}, "PS2": {}, "PS3": {}, "PS4": {},
	"HISTFILE": {}, "HISTSIZE": {}, "HISTFILESIZE": {}, "HISTCONTROL": {},
	"SSH_AUTH_SOCK": {}, "SSH_AGENT_PID": {}, "SSH_CONNECTION": {}, "SSH_CLIENT": {}, "SSH_TTY": {},
	"DISPLAY": {}, "WINDOWID": {}, "TERM_SESSION_ID": {}, "TERM_PROGRAM": {},
}

// CompositeMatcher evaluates an Exchange against a Context by running each
// sub-matcher in order, short-circuiting on the first rejection.
type CompositeMatcher struct {
	Opts Options
}

// New returns a CompositeMatcher with the given options.
func New(opts Options) *CompositeMatcher {
	return &CompositeMatcher{Opts: opts}
}

// Match reports whether recorded applies to ctx.
func (m *CompositeMatcher) Match(recorded *tape.Exchange, meta *tape.Meta, ctx Context) bool {
	if !m.matchCommand(meta, ctx) {
		return false
	}
	if !m.matchEnvironment(meta, ctx) {
		return false
	}
	if !m.matchPrompt(recorded, ctx) {
		return false
	}
	if !m.matchStdin(recorded, ctx) {
		return false
	}
	if !m.matchState(recorded, ctx) {
		return false
	}
	return true
}

func (m *CompositeMatcher) matchCommand(meta *tape.Meta, ctx Context) bool {
	if filepath.Base(meta.Program) != filepath.Base(ctx.Program) {
		return false
	}
	recArgs := filterArgs(meta.Args, m.Opts.IgnoreArgs)
	curArgs := filterArgs(ctx.Args, m.Opts.IgnoreArgs)
	if len(recArgs) != len(curArgs) {
		return false
	}
	for i := range recArgs {
		if normalizeArgPath(recArgs[i]) != normalizeArgPath(curArgs[i]) {
			return false
		}
	}
	return true
}

// filterArgs drops args whose index (as a base-10 string) or string prefix
// appears in ignore.
func filterArgs(args []string, ignore []string) []string {
	if len(ignore) == 0 {
		return args
	}
	ignoreIdx := map[int]struct{}{}
	var ignorePrefix []string
	for _, tok := range ignore {
		if n, err := strconv.Atoi(tok); err == nil {
			ignoreIdx[n] = struct{}{}
			continue
		}
		ignorePrefix = append(ignorePrefix, tok)
	}
	out := make([]string, 0, len(args))
	for i, a := range args {
		if _, skip := ignoreIdx[i]; skip {
			continue
		}
		skipped := false
		for _, p := range ignorePrefix {
			if strings.HasPrefix(a, p) {
				skipped = true
				break
			}
		}
		if skipped {
			continue
		}
		out = append(out, a)
	}
	return out
}

// normalizeArgPath expands a leading "~" and resolves "." / ".." segments in
// arguments that look like filesystem paths, so "~/proj" and the resolved
// absolute path compare equal.
func normalizeArgPath(arg string) string {
	if !strings.HasPrefix(arg, "~") && !strings.HasPrefix(arg, "/") && !strings.HasPrefix(arg, "./") && !strings.HasPrefix(arg, "../") {
		return arg
	}
	expanded := arg
	if strings.HasPrefix(arg, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded = home + strings.TrimPrefix(arg, "~")
		}
	}
	return filepath.Clean(expanded)
}

func (m *CompositeMatcher) matchEnvironment(meta *tape.Meta, ctx Context) bool {
	recEnv := meta.Env
	curEnv := envMap(ctx.Env)

	var keys []string
	if len(m.Opts.AllowEnv) > 0 {
		keys = m.Opts.AllowEnv
	} else {
		ignore := defaultIgnoreEnv
		if len(m.Opts.IgnoreEnv) > 0 {
			ignore = map[string]struct{}{}
			for _, k := range m.Opts.IgnoreEnv {
				ignore[k] = struct{}{}
			}
		}
		seen := map[string]struct{}{}
		for k := range recEnv {
			if _, skip := ignore[k]; skip {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		for k := range curEnv {
			if _, skip := ignore[k]; skip {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	for _, k := range keys {
		if recEnv[k] != curEnv[k] {
			return false
		}
	}
	return true
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}
	return m
}

func (m *CompositeMatcher) matchPrompt(recorded *tape.Exchange, ctx Context) bool {
	recPrompt := normalize.Normalize(recorded.Pre.Prompt, normalize.Default)
	curPrompt := normalize.Normalize(ctx.Prompt, normalize.Default)

	if m.Opts.UseRegex {
		if re, err := regexp.Compile(recPrompt); err == nil {
			return re.MatchString(curPrompt)
		}
	}
	return recPrompt == curPrompt
}

func (m *CompositeMatcher) matchStdin(recorded *tape.Exchange, ctx Context) bool {
	if m.Opts.IgnoreStdin {
		return true
	}
	recRaw := trimLineEnding(recorded.Input.Text())
	curRaw := trimLineEnding(ctx.Input)

	recNorm := normalize.Normalize(recRaw, normalize.Default)
	curNorm := normalize.Normalize(curRaw, normalize.Default)
	if recNorm == curNorm {
		return true
	}
	// Invalid-UTF8 fallback: compare the untouched raw bytes.
	return recRaw == curRaw
}

func trimLineEnding(s string) string {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}

func (m *CompositeMatcher) matchState(recorded *tape.Exchange, ctx Context) bool {
	if recorded.Pre.StateHash == "" || ctx.StateHash == "" {
		return true
	}
	return recorded.Pre.StateHash == ctx.StateHash
}
