package clip

import "container/list"

// DefaultSeenCapacity bounds the duplicate-event id set.
const DefaultSeenCapacity = 2000

// LRUSet is a fixed-capacity set of strings. Has refreshes recency; when the
// set is full, Add evicts the least recently touched member. Not safe for
// concurrent use.
type LRUSet struct {
	capacity int
	order    *list.List
	members  map[string]*list.Element
}

// NewLRUSet creates a set holding at most capacity members.
func NewLRUSet(capacity int) *LRUSet {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &LRUSet{
		capacity: capacity,
		order:    list.New(),
		members:  make(map[string]*list.Element),
	}
}

// Has reports membership and marks the member as recently used.
func (s *LRUSet) Has(key string) bool {
	element, ok := s.members[key]
	if ok {
		s.order.MoveToFront(element)
	}
	return ok
}

// Add inserts the key, evicting the least recently touched member if full.
func (s *LRUSet) Add(key string) {
	if element, ok := s.members[key]; ok {
		s.order.MoveToFront(element)
		return
	}
	if s.order.Len() >= s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.members, oldest.Value.(string))
		}
	}
	s.members[key] = s.order.PushFront(key)
}

// Len returns the current member count.
func (s *LRUSet) Len() int {
	return s.order.Len()
}
