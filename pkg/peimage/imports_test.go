package peimage

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/northcutted/drvscan/pkg/testutil"
)

func kernelImports(t *testing.T, data []byte) ([]Import, error) {
	t.Helper()
	h, err := parseBytes(t, data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return h.KernelImports(nil)
}

func names(imports []Import) []string {
	out := make([]string, len(imports))
	for i, imp := range imports {
		out[i] = imp.Name
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestKernelImports(t *testing.T) {
	fx := testutil.KernelDriver("IoCreateDevice", "MmMapIoSpace", "ZwClose").Build()

	imports, err := kernelImports(t, fx.Data)
	if err != nil {
		t.Fatalf("KernelImports() error = %v", err)
	}

	want := []string{"IoCreateDevice", "MmMapIoSpace", "ZwClose"}
	if !equalNames(names(imports), want) {
		t.Fatalf("expected %v, got %v", want, names(imports))
	}
	for i, imp := range imports {
		if imp.Hint != uint16(i+1) {
			t.Errorf("%s: expected hint %d, got %d", imp.Name, i+1, imp.Hint)
		}
		if imp.VA != fx.HintNameRVAs[0][i] {
			t.Errorf("%s: expected va %#x, got %#x", imp.Name, fx.HintNameRVAs[0][i], imp.VA)
		}
	}
}

func TestKernelImports_PE32(t *testing.T) {
	d := testutil.KernelDriver("IoCreateDevice", "MmMapIoSpace")
	d.PE32 = true

	imports, err := kernelImports(t, d.Bytes())
	if err != nil {
		t.Fatalf("KernelImports() error = %v", err)
	}
	want := []string{"IoCreateDevice", "MmMapIoSpace"}
	if !equalNames(names(imports), want) {
		t.Errorf("expected %v, got %v", want, names(imports))
	}
}

func TestKernelImports_OnlyKernelDescriptors(t *testing.T) {
	d := testutil.Driver{DLLs: []testutil.DLL{
		{Name: "HAL.dll", Imports: []testutil.Import{{Name: "HalGetBusData"}}},
		{Name: "NTOSKRNL.EXE", Imports: []testutil.Import{{Name: "MmMapIoSpace", Hint: 7}}},
		{Name: "FLTMGR.SYS", Imports: []testutil.Import{{Name: "FltRegisterFilter"}}},
		{Name: "ntoskrnl.exe", Imports: []testutil.Import{{Name: "IoCreateDevice", Hint: 9}}},
	}}

	imports, err := kernelImports(t, d.Bytes())
	if err != nil {
		t.Fatalf("KernelImports() error = %v", err)
	}
	want := []string{"MmMapIoSpace", "IoCreateDevice"}
	if !equalNames(names(imports), want) {
		t.Errorf("expected %v, got %v", want, names(imports))
	}
}

func TestKernelImports_SkipsOrdinals(t *testing.T) {
	d := testutil.Driver{DLLs: []testutil.DLL{{
		Name: "ntoskrnl.exe",
		Imports: []testutil.Import{
			{Name: "IoCreateDevice", Hint: 1},
			{Ordinal: 42},
			{Name: "MmMapIoSpace", Hint: 2},
		},
	}}}

	imports, err := kernelImports(t, d.Bytes())
	if err != nil {
		t.Fatalf("KernelImports() error = %v", err)
	}
	want := []string{"IoCreateDevice", "MmMapIoSpace"}
	if !equalNames(names(imports), want) {
		t.Errorf("expected %v, got %v", want, names(imports))
	}
}

func TestKernelImports_NoKernelImports(t *testing.T) {
	d := testutil.Driver{DLLs: []testutil.DLL{
		{Name: "HAL.dll", Imports: []testutil.Import{{Name: "HalGetBusData"}}},
	}}

	imports, err := kernelImports(t, d.Bytes())
	if err != nil {
		t.Fatalf("KernelImports() error = %v", err)
	}
	if imports == nil || len(imports) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", imports)
	}
}

func TestKernelImports_SkipsUnreadableDllName(t *testing.T) {
	d := testutil.Driver{DLLs: []testutil.DLL{
		{Name: "HAL.dll", Imports: []testutil.Import{{Name: "HalGetBusData"}}},
		{Name: "ntoskrnl.exe", Imports: []testutil.Import{{Name: "IoCreateDevice"}}},
	}}
	fx := d.Build()
	binary.LittleEndian.PutUint32(fx.Data[fx.Descriptors[0].Offset+12:], 0x7FFF0000)

	imports, err := kernelImports(t, fx.Data)
	if err != nil {
		t.Fatalf("KernelImports() error = %v", err)
	}
	if !equalNames(names(imports), []string{"IoCreateDevice"}) {
		t.Errorf("expected [IoCreateDevice], got %v", names(imports))
	}
}

func TestKernelImports_Failures(t *testing.T) {
	le := binary.LittleEndian

	tests := []struct {
		name    string
		driver  testutil.Driver
		corrupt func(fx testutil.Fixture)
		want    error
	}{
		{
			name:   "no import directory",
			driver: testutil.Driver{NoImports: true},
			want:   ErrImports,
		},
		{
			name:   "import directory outside any section",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				// DataDirectory[1].VirtualAddress of the PE32+ optional header.
				le.PutUint32(fx.Data[0x98+112+8:], 0x00500000)
			},
			want: ErrImports,
		},
		{
			name:   "address table rva unresolvable",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				le.PutUint32(fx.Data[fx.Descriptors[0].Offset+16:], 0x00500000)
			},
			want: ErrIat,
		},
		{
			name:   "name table rva null",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				le.PutUint32(fx.Data[fx.Descriptors[0].Offset:], 0)
			},
			want: ErrInt,
		},
		{
			name:   "name table rva unresolvable",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				le.PutUint32(fx.Data[fx.Descriptors[0].Offset:], 0x00500000)
			},
			want: ErrInt,
		},
		{
			name:   "tables out of sync",
			driver: testutil.KernelDriver("IoCreateDevice", "MmMapIoSpace"),
			corrupt: func(fx testutil.Fixture) {
				le.PutUint64(fx.Data[fx.Descriptors[0].IATOffset+8:], 0)
			},
			want: ErrImport,
		},
		{
			name:   "hint/name rva out of range",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				le.PutUint64(fx.Data[fx.Descriptors[0].INTOffset:], 0x00500000)
			},
			want: ErrImport,
		},
		{
			name:   "hint/name rva with reserved bits",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				le.PutUint64(fx.Data[fx.Descriptors[0].INTOffset:], 0x0000000100001000)
			},
			want: ErrImport,
		},
		{
			name:   "empty symbol name",
			driver: testutil.KernelDriver("IoCreateDevice"),
			corrupt: func(fx testutil.Fixture) {
				fx.Data[testutil.FileOffset(fx.HintNameRVAs[0][0])+2] = 0
			},
			want: ErrImport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := tt.driver.Build()
			if tt.corrupt != nil {
				tt.corrupt(fx)
			}
			imports, err := kernelImports(t, fx.Data)
			if err == nil {
				t.Fatalf("expected error, got %v", names(imports))
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
