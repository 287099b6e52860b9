// Package watchlist holds the set of kernel API names a driver is checked for.
package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
)

// defaultNames are kernel APIs commonly abused by vulnerable drivers to map
// physical memory or read and write kernel memory.
var defaultNames = [...]string{
	"MmMapIoSpace",
	"MmMapIoSpaceEx",
	"MmMapLockedPages",
	"MmMapLockedPagesSpecifyCache",
	"MmMapLockedPagesWithReservedMapping",
	"ZwMapViewOfSection",
	"MmCopyMemory",
	"EnumerateDebuggingDevices",
}

// ImportSet is an ordered, immutable list of symbol names with exact,
// case-sensitive membership. It is safe for concurrent use.
type ImportSet struct {
	names   []string
	members map[string]struct{}
}

// New builds an ImportSet from names. Duplicates are kept in Names but have no
// effect on membership.
func New(names ...string) *ImportSet {
	s := &ImportSet{
		names:   append([]string(nil), names...),
		members: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		s.members[n] = struct{}{}
	}
	return s
}

// Default returns the built-in watchlist.
func Default() *ImportSet {
	return New(defaultNames[:]...)
}

// Load reads a JSON array of symbol names from path.
func Load(path string) (*ImportSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import set %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse import set %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a JSON array of symbol names.
func Parse(data []byte) (*ImportSet, error) {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return New(names...), nil
}

// Contains reports whether name is in the set.
func (s *ImportSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[name]
	return ok
}

// Names returns a copy of the names in their original order.
func (s *ImportSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Len returns the number of distinct names.
func (s *ImportSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// MarshalJSON encodes the set as its ordered name list.
func (s *ImportSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}
