package realtime

import "strings"

// MemberSet is the set of display names present in a room, kept in first-join order.
// Names are trimmed; empty names are ignored. Not safe for concurrent use.
type MemberSet struct {
	order []string
	index map[string]struct{}
}

// Add inserts name. It reports false if name was empty or already present.
func (s *MemberSet) Add(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = struct{}{}
	s.order = append(s.order, name)
	return true
}

// Remove deletes name. Removing an absent name is a no-op that reports false.
func (s *MemberSet) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := s.index[name]; !ok {
		return false
	}
	delete(s.index, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether name is present.
func (s *MemberSet) Has(name string) bool {
	_, ok := s.index[strings.TrimSpace(name)]
	return ok
}

// List returns the names in first-join order.
func (s *MemberSet) List() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of members.
func (s *MemberSet) Len() int { return len(s.order) }

// Reset empties the set.
func (s *MemberSet) Reset() {
	s.order = nil
	s.index = nil
}
