package feature

import (
	"encoding/json"
	"sort"
)

// FlagSet is a set of opaque flag names. It encodes as a sorted JSON array.
type FlagSet map[string]struct{}

// NewFlagSet builds a set, ignoring empty names.
func NewFlagSet(flags ...string) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		if f != "" {
			s[f] = struct{}{}
		}
	}
	return s
}

// Has reports membership. A nil set contains nothing.
func (s FlagSet) Has(flag string) bool {
	_, ok := s[flag]
	return ok
}

// Sorted returns the flags in lexical order
func (s FlagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set
func (s FlagSet) Clone() FlagSet {
	out := make(FlagSet, len(s))
	for f := range s {
		out[f] = struct{}{}
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler
func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var flags []string
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	*s = NewFlagSet(flags...)
	return nil
}
