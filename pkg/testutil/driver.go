// Package testutil builds synthetic PE driver images for tests.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	lfanew       = 0x80
	fileAlign    = 0x200
	sectionAlign = 0x1000
	sectionRVA   = 0x1000
	headerSize   = 0x200
	descLen      = 20

	MachineAMD64 = 0x8664
	MachineI386  = 0x14c
	MachineARM64 = 0xAA64

	SubsystemNative = 1
	SubsystemGUI    = 2
	SubsystemCUI    = 3
)

// File offsets of header fields patched by tests. The optional header is the
// PE32+ layout.
const (
	OffsetMachine              = lfanew + 4
	OffsetNumberOfSections     = lfanew + 6
	OffsetPointerToSymbolTable = lfanew + 12
	OffsetNumberOfSymbols      = lfanew + 16
	OffsetSizeOfOptionalHeader = lfanew + 20
	OffsetOptionalHeader       = lfanew + 24
	OffsetDataDirectories      = OffsetOptionalHeader + 112
)

// Import is one entry of a fixture import table. An empty Name makes the entry
// an ordinal-only import.
type Import struct {
	Name    string
	Hint    uint16
	Ordinal uint16
}

// DLL is one import descriptor of a fixture.
type DLL struct {
	Name    string
	Imports []Import
}

// Driver describes a synthetic image. The zero Subsystem means native.
type Driver struct {
	PE32      bool
	Subsystem uint16
	NoImports bool
	DLLs      []DLL
}

// DescriptorLayout records file offsets of one descriptor and its tables so
// tests can corrupt them.
type DescriptorLayout struct {
	Offset     int // descriptor itself
	INTOffset  int
	IATOffset  int
	NameOffset int // DLL name string
}

// Fixture is a built image.
type Fixture struct {
	Data        []byte
	ThunkSize   int
	Descriptors []DescriptorLayout
	// HintNameRVAs holds, per descriptor, the hint/name rva of each by-name
	// import (0 for ordinal entries). Unbound images carry the same value in
	// their address table, so this is also the expected VA.
	HintNameRVAs [][]uint64
}

// KernelDriver returns a native PE32+ driver importing names from ntoskrnl.exe.
func KernelDriver(names ...string) Driver {
	imports := make([]Import, len(names))
	for i, n := range names {
		imports[i] = Import{Name: n, Hint: uint16(i + 1)}
	}
	return Driver{DLLs: []DLL{{Name: "ntoskrnl.exe", Imports: imports}}}
}

// Bytes builds the image and returns its contents.
func (d Driver) Bytes() []byte {
	return d.Build().Data
}

// Build lays the image out as headers followed by one .rdata section holding
// the descriptor table, the thunk tables, the hint/name entries and the DLL
// names.
func (d Driver) Build() Fixture {
	le := binary.LittleEndian
	width := 8
	if d.PE32 {
		width = 4
	}

	// Section contents, addressed relative to sectionRVA.
	sec := make([]byte, (len(d.DLLs)+1)*descLen)
	alloc := func(n int) int {
		off := len(sec)
		sec = append(sec, make([]byte, n)...)
		return off
	}
	putThunk := func(off int, v uint64) {
		if width == 8 {
			le.PutUint64(sec[off:], v)
		} else {
			le.PutUint32(sec[off:], uint32(v))
		}
	}

	fx := Fixture{ThunkSize: width}
	type tables struct{ intOff, iatOff, nameOff int }
	layout := make([]tables, len(d.DLLs))
	for i, dll := range d.DLLs {
		layout[i].intOff = alloc((len(dll.Imports) + 1) * width)
		layout[i].iatOff = alloc((len(dll.Imports) + 1) * width)
	}
	for i, dll := range d.DLLs {
		rvas := make([]uint64, len(dll.Imports))
		for j, imp := range dll.Imports {
			var value uint64
			if imp.Name == "" {
				value = uint64(imp.Ordinal) | uint64(1)<<(width*8-1)
			} else {
				off := alloc(2 + len(imp.Name) + 1)
				if len(sec)%2 != 0 {
					alloc(1)
				}
				le.PutUint16(sec[off:], imp.Hint)
				copy(sec[off+2:], imp.Name)
				value = uint64(sectionRVA + off)
				rvas[j] = value
			}
			putThunk(layout[i].intOff+j*width, value)
			putThunk(layout[i].iatOff+j*width, value)
		}
		fx.HintNameRVAs = append(fx.HintNameRVAs, rvas)

		layout[i].nameOff = alloc(len(dll.Name) + 1)
		copy(sec[layout[i].nameOff:], dll.Name)

		desc := i * descLen
		le.PutUint32(sec[desc:], uint32(sectionRVA+layout[i].intOff))
		le.PutUint32(sec[desc+12:], uint32(sectionRVA+layout[i].nameOff))
		le.PutUint32(sec[desc+16:], uint32(sectionRVA+layout[i].iatOff))
	}

	virtualSize := len(sec)
	rawSize := align(virtualSize, fileAlign)
	data := make([]byte, headerSize+rawSize)
	copy(data[headerSize:], sec)

	// DOS header and NT signature.
	le.PutUint16(data[0:], 0x5A4D)
	le.PutUint32(data[0x3C:], lfanew)
	copy(data[lfanew:], "PE\x00\x00")

	optSize := 240
	machine := uint16(MachineAMD64)
	if d.PE32 {
		optSize = 224
		machine = MachineI386
	}
	coff := lfanew + 4
	le.PutUint16(data[coff:], machine)
	le.PutUint16(data[coff+2:], 1)
	le.PutUint16(data[coff+16:], uint16(optSize))
	le.PutUint16(data[coff+18:], 0x0022)

	subsystem := d.Subsystem
	if subsystem == 0 {
		subsystem = SubsystemNative
	}
	opt := coff + 20
	dirs := opt + 112
	if d.PE32 {
		le.PutUint16(data[opt:], 0x10b)
		le.PutUint32(data[opt+28:], 0x10000)
		le.PutUint32(data[opt+92:], 16)
		dirs = opt + 96
	} else {
		le.PutUint16(data[opt:], 0x20b)
		le.PutUint64(data[opt+24:], 0x140000000)
		le.PutUint32(data[opt+108:], 16)
	}
	le.PutUint32(data[opt+32:], sectionAlign)
	le.PutUint32(data[opt+36:], fileAlign)
	le.PutUint16(data[opt+48:], 10)
	le.PutUint32(data[opt+56:], uint32(sectionRVA+align(virtualSize, sectionAlign)))
	le.PutUint32(data[opt+60:], headerSize)
	le.PutUint16(data[opt+68:], subsystem)
	if !d.NoImports {
		le.PutUint32(data[dirs+8:], sectionRVA)
		le.PutUint32(data[dirs+12:], uint32((len(d.DLLs)+1)*descLen))
	}

	sh := opt + optSize
	copy(data[sh:], ".rdata")
	le.PutUint32(data[sh+8:], uint32(virtualSize))
	le.PutUint32(data[sh+12:], sectionRVA)
	le.PutUint32(data[sh+16:], uint32(rawSize))
	le.PutUint32(data[sh+20:], headerSize)
	le.PutUint32(data[sh+36:], 0x40000040)

	for i := range d.DLLs {
		fx.Descriptors = append(fx.Descriptors, DescriptorLayout{
			Offset:     headerSize + i*descLen,
			INTOffset:  headerSize + layout[i].intOff,
			IATOffset:  headerSize + layout[i].iatOff,
			NameOffset: headerSize + layout[i].nameOff,
		})
	}
	fx.Data = data
	return fx
}

// FileOffset converts an rva inside the fixture section to its file offset.
func FileOffset(rva uint64) int {
	return int(rva) - sectionRVA + headerSize
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func align(n, a int) int {
	return (n + a - 1) / a * a
}
