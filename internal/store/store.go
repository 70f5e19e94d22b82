// Package store manages the tape file population: recursive discovery,
// schema-validated loading, atomic saving, and the normalized-key index used
// by the matching engine for O(1) candidate lookup.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/jimmc414/claude-cli-control/internal/normalize"
	"github.com/jimmc414/claude-cli-control/internal/replaylog"
	"github.com/jimmc414/claude-cli-control/internal/replayerr"
	"github.com/jimmc414/claude-cli-control/internal/tape"
	"github.com/jimmc414/claude-cli-control/internal/tape/permissive"
)

// Store holds every loaded tape, the normalized-key index derived from
// them, and the used/new bookkeeping sets consulted when a session ends.
type Store struct {
	root string
	log  *replaylog.Logger

	mu     sync.RWMutex
	tapes  map[string]*tape.Tape // path -> tape
	index  map[string]exchangeRef

	bookMu sync.Mutex
	used   map[string]struct{} // path -> struct{}, tapes that served at least one hit
	new_   map[string]struct{} // path -> struct{}, tapes created this run

	cache   indexCache
	watcher *fsnotify.Watcher
}

// New returns an empty Store rooted at root. Call LoadAll to populate it.
func New(root string, indexCachePath string, log *replaylog.Logger) *Store {
	var cache indexCache
	if indexCachePath != "" {
		c, err := newBboltIndexCache(indexCachePath)
		if err != nil {
			log.Warnf("init", "falling back to in-memory index cache: %v", err)
			cache = newMemoryIndexCache()
		} else {
			cache = c
		}
	} else {
		cache = newMemoryIndexCache()
	}
	return &Store{
		root:  root,
		log:   log,
		tapes: make(map[string]*tape.Tape),
		index: make(map[string]exchangeRef),
		used:  make(map[string]struct{}),
		new_:  make(map[string]struct{}),
		cache: cache,
	}
}

// Root returns the tape root directory this store was constructed with.
func (s *Store) Root() string { return s.root }

// LoadAll discovers every *.tape / *.json5 file under root and loads it.
// A file that fails schema validation or JSON decoding is logged and
// skipped — one bad tape never aborts the whole load.
func (s *Store) LoadAll() error {
	matches, err := doublestar.Glob(os.DirFS(s.root), "**/*.{tape,json5}")
	if err != nil {
		return fmt.Errorf("glob tapes under %s: %w", s.root, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rel := range matches {
		full := filepath.Join(s.root, rel)
		t, err := s.loadOne(full)
		if err != nil {
			s.log.Warnf("load", "skipping %s: %v", full, err)
			continue
		}
		s.tapes[full] = t
		s.indexTapeLocked(full, t)
	}
	s.log.Infof("load", "loaded %d tapes from %s", len(s.tapes), s.root)
	return nil
}

func (s *Store) loadOne(path string) (*tape.Tape, error) {
	data, err := os.ReadFile(path) //nolint:gosec // tape root is operator-controlled, not user input
	if err != nil {
		return nil, err
	}
	if err := validateShape(permissive.Strip(data)); err != nil {
		return nil, replayerr.Schema(path, err)
	}
	t, err := tape.FromPermissiveJSON(data)
	if err != nil {
		return nil, replayerr.Schema(path, err)
	}
	t.Path = path
	return t, nil
}

// indexTapeLocked adds every exchange of t to the in-memory and persistent
// index. Must be called with s.mu held for writing.
func (s *Store) indexTapeLocked(path string, t *tape.Tape) {
	for i, ex := range t.Exchanges {
		key := normalize.BuildKey(
			filepath.Base(t.Meta.Program),
			fmt.Sprint(t.Meta.Args),
			normalize.Normalize(ex.Pre.Prompt, normalize.Default),
			normalize.Normalize(ex.Input.Text(), normalize.Default),
		)
		ref := exchangeRef{TapePath: path, Index: i}
		// Last-writer-wins: a later tape (by load order) overrides an earlier
		// one's claim on the same key.
		s.index[key] = ref
		s.cache.Set(key, ref)
	}
}

// Lookup finds the exchange indexed under key, if any. It is the O(1) path
// the matching engine consults before falling back to a linear scan.
func (s *Store) Lookup(key string) (*tape.Exchange, *tape.Meta, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.index[key]
	if !ok {
		if cached, hit := s.cache.Get(key); hit {
			ref, ok = cached, true
		}
	}
	if !ok {
		return nil, nil, "", false
	}
	t, ok := s.tapes[ref.TapePath]
	if !ok || ref.Index < 0 || ref.Index >= len(t.Exchanges) {
		return nil, nil, "", false
	}
	return &t.Exchanges[ref.Index], &t.Meta, ref.TapePath, true
}

// All returns every loaded tape in load order, for the matcher's linear-scan
// fallback and for the management server's summary.
func (s *Store) All() []*tape.Tape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tape.Tape, 0, len(s.tapes))
	for _, rel := range s.sortedPathsLocked() {
		out = append(out, s.tapes[rel])
	}
	return out
}

func (s *Store) sortedPathsLocked() []string {
	paths := make([]string, 0, len(s.tapes))
	for p := range s.tapes {
		paths = append(paths, p)
	}
	// Deterministic order matters for the "first eligible wins, ties broken
	// by recorded order" search policy; lexical order over the discovered
	// paths is a stable stand-in for load order since doublestar.Glob already
	// returns matches in a fixed traversal order.
	sortStrings(paths)
	return paths
}

// MarkUsed records that the exchange at path served a replay hit.
func (s *Store) MarkUsed(path string) {
	s.bookMu.Lock()
	s.used[path] = struct{}{}
	s.bookMu.Unlock()
}

// MarkNew records that path was created during this run (a fresh recording,
// not loaded from disk at startup).
func (s *Store) MarkNew(path string) {
	s.bookMu.Lock()
	s.new_[path] = struct{}{}
	s.bookMu.Unlock()
}

// UnusedTapes returns the paths of every loaded tape that never served a
// replay hit this run.
func (s *Store) UnusedTapes() []string {
	s.mu.RLock()
	all := s.sortedPathsLocked()
	s.mu.RUnlock()

	s.bookMu.Lock()
	defer s.bookMu.Unlock()
	var out []string
	for _, p := range all {
		if _, ok := s.used[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// NewTapes returns the paths recorded as new during this run.
func (s *Store) NewTapes() []string {
	s.bookMu.Lock()
	defer s.bookMu.Unlock()
	out := make([]string, 0, len(s.new_))
	for p := range s.new_ {
		out = append(out, p)
	}
	sortStrings(out)
	return out
}

// SaveTape atomically persists t to its Path: write to a sibling temp file,
// fsync, then rename over the destination. A file lock (sibling ".lock")
// serializes concurrent writers targeting the same path.
func (s *Store) SaveTape(t *tape.Tape) error {
	if t.Path == "" {
		return fmt.Errorf("store: cannot save tape with empty path")
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return fmt.Errorf("create tape directory: %w", err)
	}

	lock := flock.New(t.Path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", t.Path, err)
	}
	defer lock.Unlock() //nolint:errcheck // best-effort unlock

	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("encode tape: %w", err)
	}

	tmp := t.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // tape content, not executable
		return fmt.Errorf("write temp tape: %w", err)
	}
	if err := os.Rename(tmp, t.Path); err != nil {
		return fmt.Errorf("rename temp tape into place: %w", err)
	}

	s.mu.Lock()
	s.tapes[t.Path] = t
	s.indexTapeLocked(t.Path, t)
	s.mu.Unlock()

	return nil
}

// Watch starts an fsnotify watch over root; on any create/write/remove of a
// .tape/.json5 file, the affected tape is reloaded and the index rebuilt for
// it. It is optional: the store's core load/find contract works identically
// without ever calling Watch.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil //nolint:nilerr // best-effort watch setup; skip unreadable subdirs
		}
		return w.Add(path)
	}); err != nil {
		w.Close() //nolint:errcheck // best-effort close on setup failure
		return fmt.Errorf("walk tape root: %w", err)
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isTapeFile(ev.Name) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					s.reload(ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warnf("watch", "fsnotify error: %v", err)
			}
		}
	}()
	return nil
}

func (s *Store) reload(path string) {
	t, err := s.loadOne(path)
	if err != nil {
		s.log.Warnf("watch", "reload %s failed: %v", path, err)
		return
	}
	s.mu.Lock()
	s.tapes[path] = t
	s.indexTapeLocked(path, t)
	s.mu.Unlock()
	s.log.Infof("watch", "reloaded %s", path)
}

func isTapeFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".tape" || ext == ".json5"
}

// Close releases the index cache and watcher, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		s.watcher.Close() //nolint:errcheck // best-effort close
	}
	return s.cache.Close()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
