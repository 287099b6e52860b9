package peimage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Binject/debug/pe"
)

const (
	dosMagic      = 0x5A4D     // "MZ"
	ntSignature   = 0x00004550 // "PE\0\0"
	lfanewOffset  = 0x3C
	coffHeaderLen = 20

	optionalMagic32  = 0x10b
	optionalMagic64  = 0x20b
	optionalFixed32  = 96  // PE32 optional header up to DataDirectory
	optionalFixed64  = 112 // PE32+ optional header up to DataDirectory
	dataDirectoryLen = 8
	sectionHeaderLen = 40

	// IMAGE_SUBSYSTEM_* values of the optional header.
	SubsystemNative     = 1
	SubsystemWindowsGUI = 2
	SubsystemWindowsCUI = 3
)

type section struct {
	name           string
	virtualAddress uint32
	virtualSize    uint32
	rawOffset      uint32
	rawSize        uint32
}

// Headers is a read-only view over the headers of a validated driver image.
// It holds offsets into the image rather than copies of its contents.
type Headers struct {
	raw           []byte
	machine       uint16
	subsystem     uint16
	is64          bool
	imageBase     uint64
	sizeOfHeaders uint32
	importDir     pe.DataDirectory
	hasImportDir  bool
	sections      []section
}

// Parse validates img as a PE image of the native subsystem. Layout problems
// fail with ErrPeFile; a well-formed image of any other subsystem fails with
// ErrInvalidSubsystem.
//
// Only the COFF header, the optional header and the section table are read.
// Symbols, certificates and relocations are never touched, and every declared
// offset and count is checked against the buffer before it is used.
func Parse(img *Image) (*Headers, error) {
	raw := img.Bytes()
	lfanew, err := checkSignatures(raw)
	if err != nil {
		return nil, err
	}

	var fh pe.FileHeader
	coff := lfanew + 4
	if err := decode(raw, coff, &fh); err != nil {
		return nil, fmt.Errorf("%w: COFF header: %w", ErrPeFile, err)
	}

	h := &Headers{raw: raw, machine: fh.Machine}
	opt := coff + coffHeaderLen
	dirs, err := h.readOptionalHeader(opt, uint64(fh.SizeOfOptionalHeader))
	if err != nil {
		return nil, err
	}
	if err := h.readSections(opt+uint64(fh.SizeOfOptionalHeader), int(fh.NumberOfSections)); err != nil {
		return nil, err
	}

	if h.subsystem != SubsystemNative {
		return nil, fmt.Errorf("%w: subsystem %d is not native (%d)", ErrInvalidSubsystem, h.subsystem, SubsystemNative)
	}

	if len(dirs) > pe.IMAGE_DIRECTORY_ENTRY_IMPORT {
		h.importDir = dirs[pe.IMAGE_DIRECTORY_ENTRY_IMPORT]
		h.hasImportDir = true
	}
	return h, nil
}

// readOptionalHeader decodes the PE32 or PE32+ optional header selected by its
// magic, whatever the machine type. The directory slice is limited to the
// entries that both NumberOfRvaAndSizes and SizeOfOptionalHeader cover.
func (h *Headers) readOptionalHeader(off, size uint64) ([]pe.DataDirectory, error) {
	if size < 2 || off+size > uint64(len(h.raw)) {
		return nil, fmt.Errorf("%w: optional header of %d bytes at %#x exceeds file size %#x",
			ErrPeFile, size, off, len(h.raw))
	}
	region := h.raw[off : off+size]

	var (
		dirs     [16]pe.DataDirectory
		declared uint32
		fixed    uint64
	)
	switch magic := binary.LittleEndian.Uint16(region); magic {
	case optionalMagic64:
		var oh pe.OptionalHeader64
		fixed = optionalFixed64
		if size < fixed {
			return nil, fmt.Errorf("%w: PE32+ optional header is only %d bytes", ErrPeFile, size)
		}
		if err := decodePadded(region, &oh); err != nil {
			return nil, fmt.Errorf("%w: optional header: %w", ErrPeFile, err)
		}
		h.is64 = true
		h.subsystem = oh.Subsystem
		h.imageBase = oh.ImageBase
		h.sizeOfHeaders = oh.SizeOfHeaders
		declared, dirs = oh.NumberOfRvaAndSizes, oh.DataDirectory
	case optionalMagic32:
		var oh pe.OptionalHeader32
		fixed = optionalFixed32
		if size < fixed {
			return nil, fmt.Errorf("%w: PE32 optional header is only %d bytes", ErrPeFile, size)
		}
		if err := decodePadded(region, &oh); err != nil {
			return nil, fmt.Errorf("%w: optional header: %w", ErrPeFile, err)
		}
		h.subsystem = oh.Subsystem
		h.imageBase = uint64(oh.ImageBase)
		h.sizeOfHeaders = oh.SizeOfHeaders
		declared, dirs = oh.NumberOfRvaAndSizes, oh.DataDirectory
	default:
		return nil, fmt.Errorf("%w: unknown optional header magic %#x", ErrPeFile, magic)
	}

	n := min(uint64(declared), uint64(len(dirs)), (size-fixed)/dataDirectoryLen)
	return dirs[:n], nil
}

func (h *Headers) readSections(off uint64, count int) error {
	end := off + uint64(count)*sectionHeaderLen
	if end > uint64(len(h.raw)) {
		return fmt.Errorf("%w: section table [%#x, %#x) exceeds file size %#x", ErrPeFile, off, end, len(h.raw))
	}

	h.sections = make([]section, 0, count)
	for i := range count {
		var sh pe.SectionHeader32
		if err := decode(h.raw, off+uint64(i)*sectionHeaderLen, &sh); err != nil {
			return fmt.Errorf("%w: section header %d: %w", ErrPeFile, i, err)
		}
		name := string(bytes.TrimRight(sh.Name[:], "\x00"))
		rawEnd := uint64(sh.PointerToRawData) + uint64(sh.SizeOfRawData)
		if sh.SizeOfRawData > 0 && rawEnd > uint64(len(h.raw)) {
			return fmt.Errorf("%w: section %q raw data [%#x, %#x) exceeds file size %#x",
				ErrPeFile, name, sh.PointerToRawData, rawEnd, len(h.raw))
		}
		h.sections = append(h.sections, section{
			name:           name,
			virtualAddress: sh.VirtualAddress,
			virtualSize:    sh.VirtualSize,
			rawOffset:      sh.PointerToRawData,
			rawSize:        sh.SizeOfRawData,
		})
	}
	return nil
}

// decode reads the fixed-size struct v from raw at off.
func decode(raw []byte, off uint64, v any) error {
	size := uint64(binary.Size(v))
	if off+size > uint64(len(raw)) {
		return fmt.Errorf("%d bytes at %#x exceed file size %#x", size, off, len(raw))
	}
	return binary.Read(bytes.NewReader(raw[off:off+size]), binary.LittleEndian, v)
}

// decodePadded reads v from region, treating bytes past its end as zero. An
// optional header may legally be shorter than the struct when it declares
// fewer than 16 data directories.
func decodePadded(region []byte, v any) error {
	buf := make([]byte, binary.Size(v))
	copy(buf, region)
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

// checkSignatures verifies the DOS and NT signatures against the real buffer
// length before any declared offset is trusted, and returns e_lfanew.
func checkSignatures(raw []byte) (uint64, error) {
	if len(raw) < lfanewOffset+4 {
		return 0, fmt.Errorf("%w: file too small for a DOS header (%d bytes)", ErrPeFile, len(raw))
	}
	if binary.LittleEndian.Uint16(raw) != dosMagic {
		return 0, fmt.Errorf("%w: missing MZ signature", ErrPeFile)
	}
	lfanew := uint64(binary.LittleEndian.Uint32(raw[lfanewOffset:]))
	if lfanew+4+coffHeaderLen > uint64(len(raw)) {
		return 0, fmt.Errorf("%w: NT headers at %#x lie outside the file", ErrPeFile, lfanew)
	}
	if binary.LittleEndian.Uint32(raw[lfanew:]) != ntSignature {
		return 0, fmt.Errorf("%w: missing PE signature at %#x", ErrPeFile, lfanew)
	}
	return lfanew, nil
}

// Machine returns the COFF machine type.
func (h *Headers) Machine() uint16 { return h.machine }

// Subsystem returns the optional-header subsystem code.
func (h *Headers) Subsystem() uint16 { return h.subsystem }

// Is64 reports whether the image is PE32+.
func (h *Headers) Is64() bool { return h.is64 }

// ImageBase returns the preferred load address.
func (h *Headers) ImageBase() uint64 { return h.imageBase }

// ImportDirectory returns the import data directory entry and whether the
// optional header declares one.
func (h *Headers) ImportDirectory() (pe.DataDirectory, bool) {
	return h.importDir, h.hasImportDir
}
