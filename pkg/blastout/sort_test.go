package blastout

import (
	"testing"

	"github.com/blast-search-server/internal/domain"
)

func sampleHits() []domain.Hit {
	return []domain.Hit{
		{Accession: "A", BitScore: 50, Evalue: 1e-3, IdentityPercent: 99, CoveragePercent: 40, AlignmentLength: 20},
		{Accession: "B", BitScore: 200, Evalue: 1e-20, IdentityPercent: 90, CoveragePercent: 100, AlignmentLength: 80},
		{Accession: "C", BitScore: 120, Evalue: 1e-10, IdentityPercent: 95, CoveragePercent: 70, AlignmentLength: 50},
	}
}

func accessions(hits []domain.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Accession
	}
	return out
}

func TestSortHitsToggles(t *testing.T) {
	tests := []struct {
		name  string
		field SortField
		order SortOrder
		want  []string
	}{
		{"bit score descending", FieldBitScore, OrderDescending, []string{"B", "C", "A"}},
		{"bit score ascending", FieldBitScore, OrderAscending, []string{"A", "C", "B"}},
		{"evalue ascending", FieldEvalue, OrderAscending, []string{"B", "C", "A"}},
		{"identity descending", FieldIdentity, OrderDescending, []string{"A", "C", "B"}},
		{"coverage descending", FieldCoverage, OrderDescending, []string{"B", "C", "A"}},
		{"length ascending", FieldLength, OrderAscending, []string{"A", "C", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := sampleHits()
			SortHits(hits, tt.field, tt.order)

			got := accessions(hits)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("order = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestSortHitsReSortable(t *testing.T) {
	// The same parsed slice must support any ordering and return to the
	// default without re-parsing.
	hits := sampleHits()

	SortHits(hits, FieldIdentity, OrderDescending)
	SortHits(hits, FieldBitScore, OrderDescending)

	got := accessions(hits)
	want := []string{"B", "C", "A"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after re-sort order = %v, want %v", got, want)
		}
	}
}

func TestSortHitsTieBreak(t *testing.T) {
	hits := []domain.Hit{
		{Accession: "slow", BitScore: 75, Evalue: 1e-5},
		{Accession: "fast", BitScore: 75, Evalue: 1e-10},
	}

	SortHits(hits, FieldBitScore, OrderDescending)
	if hits[0].Accession != "fast" {
		t.Errorf("equal bit scores must order by ascending e-value, got %v", accessions(hits))
	}
}
