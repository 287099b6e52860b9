// Package report turns a driver image into a kernel import report.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/northcutted/drvscan/pkg/peimage"
)

// Import is a resolved kernel import as it appears in a report.
type Import struct {
	VA   uint64
	Hint uint16
	Name string
}

type importJSON struct {
	VA   string `json:"va"`
	Hint uint16 `json:"hint"`
	Name string `json:"name"`
}

// MarshalJSON renders VA as a 0x-prefixed, zero-padded 64-bit hex string.
func (i Import) MarshalJSON() ([]byte, error) {
	return json.Marshal(importJSON{
		VA:   fmt.Sprintf("0x%016x", i.VA),
		Hint: i.Hint,
		Name: i.Name,
	})
}

// UnmarshalJSON accepts the format produced by MarshalJSON.
func (i *Import) UnmarshalJSON(data []byte) error {
	var raw importJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	digits, ok := strings.CutPrefix(raw.VA, "0x")
	if !ok {
		return fmt.Errorf("va %q is missing the 0x prefix", raw.VA)
	}
	va, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return fmt.Errorf("invalid va %q: %w", raw.VA, err)
	}
	*i = Import{VA: va, Hint: raw.Hint, Name: raw.Name}
	return nil
}

func fromResolved(imp peimage.Import) Import {
	return Import{VA: imp.VA, Hint: imp.Hint, Name: imp.Name}
}

// Report is the result of analysing one driver file. It is built once by New
// and not modified afterwards.
type Report struct {
	Name            string   `json:"name"`
	Hash            string   `json:"hash"`
	FoundImports    []Import `json:"found_imports"`
	MatchingImports []Import `json:"matching_imports"`
}

// New assembles a report. The import slices are copied.
func New(name, hash string, found, matching []Import) *Report {
	return &Report{
		Name:            name,
		Hash:            hash,
		FoundImports:    append(make([]Import, 0, len(found)), found...),
		MatchingImports: append(make([]Import, 0, len(matching)), matching...),
	}
}

// HasMatches reports whether any watchlisted import was found.
func (r *Report) HasMatches() bool {
	return len(r.MatchingImports) > 0
}
