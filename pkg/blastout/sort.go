package blastout

import (
	"sort"

	"github.com/blast-search-server/internal/domain"
)

// SortField selects the hit attribute an ordering is derived from.
type SortField string

const (
	FieldBitScore SortField = "bitscore"
	FieldEvalue   SortField = "evalue"
	FieldIdentity SortField = "identity"
	FieldCoverage SortField = "coverage"
	FieldLength   SortField = "length"
)

// SortOrder is the direction of an ordering.
type SortOrder string

const (
	OrderAscending  SortOrder = "asc"
	OrderDescending SortOrder = "desc"
)

// SortHits orders hits in place by the chosen field and direction. Ties fall
// back to the default ranking pair so every ordering is total and can be
// re-derived from the same parsed hits without touching the raw output.
// The default contract is FieldBitScore descending: best bit score first,
// equal bit scores broken by ascending e-value.
func SortHits(hits []domain.Hit, field SortField, order SortOrder) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := sortKey(&hits[i], field), sortKey(&hits[j], field)
		if a != b {
			if order == OrderAscending {
				return a < b
			}
			return a > b
		}
		// Tie-break on the default pair regardless of the chosen field.
		if hits[i].BitScore != hits[j].BitScore {
			return hits[i].BitScore > hits[j].BitScore
		}
		return hits[i].Evalue < hits[j].Evalue
	})
}

func sortKey(h *domain.Hit, field SortField) float64 {
	switch field {
	case FieldEvalue:
		return h.Evalue
	case FieldIdentity:
		return h.IdentityPercent
	case FieldCoverage:
		return h.CoveragePercent
	case FieldLength:
		return float64(h.AlignmentLength)
	default:
		return h.BitScore
	}
}
