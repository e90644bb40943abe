package harvest

// seenSet tracks identifiers already dispatched or persisted during one run.
// It is owned exclusively by the traversal controller and grows
// monotonically; there is no cross-run persistence here (see internal/dedup
// for the durable variant).
type seenSet struct {
	members map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{members: make(map[string]struct{})}
}

// MarkIfNew stores the key if it has not been seen before and returns true.
func (s *seenSet) MarkIfNew(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := s.members[key]; ok {
		return false
	}
	s.members[key] = struct{}{}
	return true
}

// Has reports whether the key was already marked.
func (s *seenSet) Has(key string) bool {
	_, ok := s.members[key]
	return ok
}

// Len returns the number of tracked keys.
func (s *seenSet) Len() int { return len(s.members) }
