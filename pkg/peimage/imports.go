package peimage

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
)

// KernelModule is the DLL name the Windows kernel image is imported under.
const KernelModule = "ntoskrnl.exe"

const descriptorSize = 20

// Import is one name-resolved kernel import.
type Import struct {
	// VA is the import address table slot value.
	VA   uint64
	Hint uint16
	Name string
}

type importDescriptor struct {
	OriginalFirstThunk uint32 // INT
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32 // IAT
}

func readDescriptor(b []byte) importDescriptor {
	return importDescriptor{
		OriginalFirstThunk: binary.LittleEndian.Uint32(b[0:]),
		TimeDateStamp:      binary.LittleEndian.Uint32(b[4:]),
		ForwarderChain:     binary.LittleEndian.Uint32(b[8:]),
		Name:               binary.LittleEndian.Uint32(b[12:]),
		FirstThunk:         binary.LittleEndian.Uint32(b[16:]),
	}
}

func (d importDescriptor) isZero() bool {
	return d == importDescriptor{}
}

// KernelImports walks the import directory and returns every by-name import
// taken from the kernel image, in descriptor and table order. Descriptors for
// other DLLs are skipped, as are ordinal-only entries. A descriptor whose DLL
// name cannot be read is logged and skipped; any other failure is returned.
func (h *Headers) KernelImports(logger *slog.Logger) ([]Import, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir, ok := h.ImportDirectory()
	if !ok || dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, fmt.Errorf("%w: image has no import directory", ErrImports)
	}
	table, err := h.slice(dir.VirtualAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImports, err)
	}

	imports := make([]Import, 0)
	for i := 0; ; i++ {
		off := i * descriptorSize
		if off+descriptorSize > len(table) {
			return nil, fmt.Errorf("%w: descriptor table is not terminated after %d entries", ErrImports, i)
		}
		desc := readDescriptor(table[off:])
		if desc.isZero() {
			break
		}

		dll, err := h.cString(desc.Name)
		if err != nil {
			logger.Warn("skipping import descriptor",
				"index", i,
				"kind", ErrDllName.Error(),
				"error", fmt.Errorf("%w: name rva %#x: %w", ErrDllName, desc.Name, err))
			continue
		}
		if !strings.EqualFold(dll, KernelModule) {
			logger.Debug("skipping non-kernel import descriptor", "index", i, "dll", dll)
			continue
		}

		entries, err := h.walkDescriptor(desc)
		if err != nil {
			return nil, fmt.Errorf("descriptor %d (%s): %w", i, dll, err)
		}
		imports = append(imports, entries...)
	}
	return imports, nil
}

// walkDescriptor consumes the address table and the name table of desc in
// lock-step until both reach their zero terminator.
func (h *Headers) walkDescriptor(desc importDescriptor) ([]Import, error) {
	if desc.FirstThunk == 0 {
		return nil, fmt.Errorf("%w: null address table rva", ErrIat)
	}
	iat, err := h.slice(desc.FirstThunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIat, err)
	}
	if desc.OriginalFirstThunk == 0 {
		return nil, fmt.Errorf("%w: null name table rva", ErrInt)
	}
	names, err := h.slice(desc.OriginalFirstThunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInt, err)
	}

	width := h.thunkSize()
	var entries []Import
	for slot := 0; ; slot++ {
		off := slot * width
		if off+width > len(iat) || off+width > len(names) {
			return nil, fmt.Errorf("%w: slot %d: thunk table runs past the end of its section", ErrImport, slot)
		}
		va := h.thunkAt(iat, off)
		sel := h.thunkAt(names, off)
		if va == 0 && sel == 0 {
			return entries, nil
		}
		if va == 0 || sel == 0 {
			return nil, fmt.Errorf("%w: slot %d: address and name tables end out of sync", ErrImport, slot)
		}

		thunk, err := h.decodeThunk(sel)
		if err != nil {
			return nil, fmt.Errorf("%w: slot %d: %w", ErrImport, slot, err)
		}
		if byName, ok := thunk.(ByName); ok {
			entries = append(entries, Import{VA: va, Hint: byName.Hint, Name: byName.Name})
		}
	}
}
