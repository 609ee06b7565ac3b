package monitor

// seenSet is a bounded FIFO set of recently processed segment identifiers.
// Not safe for concurrent use; each stream processor owns its own instance.
type seenSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 50
	}
	return &seenSet{
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

func (s *seenSet) Contains(id string) bool {
	_, ok := s.members[id]
	return ok
}

// Add inserts id, evicting the oldest entry once the capacity is exceeded.
func (s *seenSet) Add(id string) {
	if _, ok := s.members[id]; ok {
		return
	}
	s.order = append(s.order, id)
	s.members[id] = struct{}{}
	if len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
}

func (s *seenSet) Len() int {
	return len(s.order)
}
