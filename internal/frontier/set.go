package frontier

import "sync"

// Set holds keys already handled within one pass, such as the item and page
// keys of a single leaf walk. It is not safe for concurrent use; see
// VisitedSet for the shared variant.
type Set[T comparable] map[T]struct{}

func NewSet[T comparable]() Set[T] {
	return make(Set[T])
}

// Add inserts key and reports whether it was absent.
func (s Set[T]) Add(key T) bool {
	if _, seen := s[key]; seen {
		return false
	}
	s[key] = struct{}{}
	return true
}

func (s Set[T]) Contains(key T) bool {
	_, seen := s[key]
	return seen
}

func (s Set[T]) Size() int {
	return len(s)
}

/*
VisitedSet is the shared guard against expanding the same category page twice.

  - Keys are canonical URLs.
  - MarkIfAbsent is the only way to claim a key; the check and the insert
    happen under one lock so two expanders never both win the same key.
*/
type VisitedSet struct {
	mu   sync.Mutex
	keys Set[string]
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{keys: NewSet[string]()}
}

// MarkIfAbsent records key and reports true when it was not visited before.
func (v *VisitedSet) MarkIfAbsent(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keys.Add(key)
}

func (v *VisitedSet) Contains(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keys.Contains(key)
}

func (v *VisitedSet) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keys.Size()
}
