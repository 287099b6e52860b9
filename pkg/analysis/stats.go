package analysis

// Stats summarises a batch run.
type Stats struct {
	Files       int
	Analyzed    int
	Failed      int
	WithMatches int
	// FailuresByKind counts failures per taxonomy name.
	FailuresByKind map[string]int
}

// Summarize computes Stats for b.
func Summarize(b *Batch) Stats {
	s := Stats{
		Analyzed:       len(b.Reports),
		Failed:         len(b.Failures),
		FailuresByKind: make(map[string]int),
	}
	s.Files = s.Analyzed + s.Failed
	for _, r := range b.Reports {
		if r.HasMatches() {
			s.WithMatches++
		}
	}
	for _, f := range b.Failures {
		s.FailuresByKind[f.Kind]++
	}
	return s
}
