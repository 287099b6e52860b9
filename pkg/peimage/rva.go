package peimage

import (
	"bytes"
	"fmt"
)

// maxNameLen bounds DLL and symbol name scans on adversarial input.
const maxNameLen = 1024

// slice resolves rva to the file bytes starting at it and running to the end of
// the raw data backing the containing section (or the header region). Bytes in
// the zero-filled tail of a section have no file backing and do not resolve.
func (h *Headers) slice(rva uint32) ([]byte, error) {
	size := uint64(len(h.raw))

	if rva < h.sizeOfHeaders {
		end := min(uint64(h.sizeOfHeaders), size)
		if uint64(rva) >= end {
			return nil, fmt.Errorf("rva %#x lies outside the file", rva)
		}
		return h.raw[rva:end], nil
	}

	for _, s := range h.sections {
		span := max(s.virtualSize, s.rawSize)
		if rva < s.virtualAddress || rva-s.virtualAddress >= span {
			continue
		}
		delta := rva - s.virtualAddress
		if delta >= s.rawSize {
			return nil, fmt.Errorf("rva %#x falls in the uninitialised tail of section %q", rva, s.name)
		}
		start := uint64(s.rawOffset) + uint64(delta)
		end := min(uint64(s.rawOffset)+uint64(s.rawSize), size)
		if start >= end {
			return nil, fmt.Errorf("rva %#x of section %q lies outside the file", rva, s.name)
		}
		return h.raw[start:end], nil
	}
	return nil, fmt.Errorf("rva %#x is not mapped by any section", rva)
}

// cString reads the NUL-terminated string at rva.
func (h *Headers) cString(rva uint32) (string, error) {
	if rva == 0 {
		return "", fmt.Errorf("null rva")
	}
	b, err := h.slice(rva)
	if err != nil {
		return "", err
	}
	return cString(b)
}

func cString(b []byte) (string, error) {
	if len(b) > maxNameLen+1 {
		b = b[:maxNameLen+1]
	}
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		return "", fmt.Errorf("string is not terminated within %d bytes", len(b))
	}
	return string(b[:n]), nil
}
