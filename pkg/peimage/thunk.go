package peimage

import (
	"encoding/binary"
	"fmt"
)

const (
	ordinalFlag64 = uint64(1) << 63
	ordinalFlag32 = uint64(1) << 31
	hintNameMask  = 0x7FFFFFFF
)

// Thunk is a decoded import name table entry: either ByOrdinal or ByName.
type Thunk interface {
	isThunk()
}

// ByOrdinal selects an export by ordinal only. It carries no name and cannot be
// matched against a watchlist.
type ByOrdinal struct {
	Ordinal uint16
}

// ByName selects an export through a hint/name table entry.
type ByName struct {
	Hint uint16
	Name string
}

func (ByOrdinal) isThunk() {}
func (ByName) isThunk()    {}

func (h *Headers) thunkSize() int {
	if h.is64 {
		return 8
	}
	return 4
}

func (h *Headers) thunkAt(table []byte, off int) uint64 {
	if h.is64 {
		return binary.LittleEndian.Uint64(table[off:])
	}
	return uint64(binary.LittleEndian.Uint32(table[off:]))
}

// decodeThunk interprets a non-zero name table value.
func (h *Headers) decodeThunk(value uint64) (Thunk, error) {
	flag := ordinalFlag32
	if h.is64 {
		flag = ordinalFlag64
	}
	if value&flag != 0 {
		return ByOrdinal{Ordinal: uint16(value)}, nil
	}
	if value > hintNameMask {
		return nil, fmt.Errorf("hint/name rva %#x out of range", value)
	}

	b, err := h.slice(uint32(value))
	if err != nil {
		return nil, fmt.Errorf("hint/name entry: %w", err)
	}
	if len(b) < 3 {
		return nil, fmt.Errorf("hint/name entry at %#x is truncated", value)
	}
	name, err := cString(b[2:])
	if err != nil {
		return nil, fmt.Errorf("hint/name entry at %#x: %w", value, err)
	}
	if name == "" {
		return nil, fmt.Errorf("hint/name entry at %#x has an empty name", value)
	}
	return ByName{Hint: binary.LittleEndian.Uint16(b), Name: name}, nil
}
