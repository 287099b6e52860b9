package peimage

import "errors"

// Failure kinds for a single driver analysis. Each is terminal for the file it
// was raised on, except ErrDllName which only drops the offending descriptor.
var (
	ErrFileOpen         = errors.New("FileOpenError")
	ErrFileRead         = errors.New("FileReadError")
	ErrPeFile           = errors.New("PeFileError")
	ErrInvalidSubsystem = errors.New("InvalidSubsystem")
	ErrImports          = errors.New("ImportsError")
	ErrDllName          = errors.New("DllNameError")
	ErrIat              = errors.New("IatError")
	ErrInt              = errors.New("IntError")
	ErrImport           = errors.New("ImportError")
)

var kinds = []error{
	ErrFileOpen,
	ErrFileRead,
	ErrPeFile,
	ErrInvalidSubsystem,
	ErrImports,
	ErrDllName,
	ErrIat,
	ErrInt,
	ErrImport,
}

// Kind returns the taxonomy name of err, or "UnknownError" if err does not wrap
// one of the package sentinels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "UnknownError"
}
