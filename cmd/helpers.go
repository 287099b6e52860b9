package cmd

import (
	"fmt"
	"strings"

	"github.com/northcutted/drvscan/pkg/watchlist"
)

// watchlistHelp lists the built-in watchlist for the help description.
func watchlistHelp() string {
	var b strings.Builder
	b.WriteString("\nDefault watchlist:\n")
	for _, name := range watchlist.Default().Names() {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}
