package entitlement

import "sort"

// GroupID identifies an OpenPath access group.
type GroupID int64

// GroupSet is a set of access group IDs. Using a set prevents
// duplicate grants when multiple rule tiers award the same group.
type GroupSet map[GroupID]struct{}

func NewGroupSet(ids ...GroupID) GroupSet {
	s := make(GroupSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s GroupSet) Add(id GroupID) {
	s[id] = struct{}{}
}

func (s GroupSet) Contains(id GroupID) bool {
	_, ok := s[id]
	return ok
}

func (s GroupSet) Len() int {
	return len(s)
}

// Equal reports whether both sets hold exactly the same group IDs.
func (s GroupSet) Equal(other GroupSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}

func (s GroupSet) Union(other GroupSet) GroupSet {
	out := make(GroupSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the set as a sorted slice for serialization and logging.
func (s GroupSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, int64(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
