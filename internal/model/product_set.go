package model

import "github.com/google/uuid"

// ProductSet is an insertion-ordered set of product ids.
type ProductSet []uuid.UUID

func (s ProductSet) Contains(id uuid.UUID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id unless it is already present. It reports whether the set changed.
func (s *ProductSet) Add(id uuid.UUID) bool {
	if s.Contains(id) {
		return false
	}
	*s = append(*s, id)
	return true
}

// Remove deletes id if present. It reports whether the set changed.
func (s *ProductSet) Remove(id uuid.UUID) bool {
	for i, v := range *s {
		if v == id {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a copy that never aliases s; a nil set clones to an empty one.
func (s ProductSet) Clone() ProductSet {
	out := make(ProductSet, len(s))
	copy(out, s)
	return out
}

func (s ProductSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, id := range s {
		out = append(out, id.String())
	}
	return out
}

// ParseProductSet builds a set from string ids, skipping duplicates and unparsable values.
func ParseProductSet(ids []string) ProductSet {
	set := make(ProductSet, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		set.Add(id)
	}
	return set
}
