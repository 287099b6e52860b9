package report

import (
	"github.com/northcutted/drvscan/pkg/peimage"
	"github.com/northcutted/drvscan/pkg/watchlist"
)

// Classify records every import in found and additionally copies the ones
// named in set into matching. Both keep the input order.
func Classify(imports []peimage.Import, set *watchlist.ImportSet) (found, matching []Import) {
	found = make([]Import, 0, len(imports))
	matching = make([]Import, 0)
	for _, imp := range imports {
		r := fromResolved(imp)
		found = append(found, r)
		if set.Contains(imp.Name) {
			matching = append(matching, r)
		}
	}
	return found, matching
}
