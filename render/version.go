package render

import "sync"

// Token identifies one render pass of a page.
type Token struct {
	Key string
	Seq uint64
}

// VersionTracker discards results of superseded render passes. Begin a pass
// before rendering and Commit its tree afterwards; a commit for a token that
// is no longer the latest for its key is refused.
type VersionTracker struct {
	mu        sync.Mutex
	latest    map[string]uint64
	committed map[string]*Tree
}

// NewVersionTracker creates an empty tracker
func NewVersionTracker() *VersionTracker {
	return &VersionTracker{
		latest:    make(map[string]uint64),
		committed: make(map[string]*Tree),
	}
}

// Begin starts a new pass for key, superseding every earlier one.
func (v *VersionTracker) Begin(key string) Token {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest[key]++
	return Token{Key: key, Seq: v.latest[key]}
}

// Current reports whether token is still the latest pass for its key.
func (v *VersionTracker) Current(token Token) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.latest[token.Key] == token.Seq
}

// Commit stores tree as the output for token's key if token is current.
func (v *VersionTracker) Commit(token Token, tree *Tree) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest[token.Key] != token.Seq {
		return false
	}
	v.committed[token.Key] = tree
	return true
}

// Latest returns the last committed tree for key.
func (v *VersionTracker) Latest(key string) (*Tree, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.committed[key]
	return t, ok
}

// Forget drops all state for key.
func (v *VersionTracker) Forget(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.latest, key)
	delete(v.committed, key)
}
