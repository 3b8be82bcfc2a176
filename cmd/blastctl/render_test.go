package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blast-search-server/internal/domain"
)

func sampleResult() *domain.SearchResult {
	aligned := strings.Repeat("ACGTACGTAC", 7)
	return &domain.SearchResult{
		SearchID: "f0a9c2d4",
		QueryInfo: domain.QueryInfo{
			Preview: aligned[:30] + "...",
			Length:  70,
			Type:    domain.SequenceDNA,
		},
		Parameters: domain.SearchRequest{
			BlastType: domain.BlastN,
			Service:   domain.ServiceLocal,
			Database:  "ecoli_k12",
		},
		Source:        domain.SourceLocal,
		IsRealResults: true,
		Hits: []domain.Hit{
			{
				Accession:       "NC_000913.3",
				Description:     "Escherichia coli str. K-12 substr. MG1655",
				Evalue:          1e-30,
				BitScore:        130.1,
				IdentityPercent: 100.0,
				IdentityCount:   70,
				AlignmentLength: 70,
				QueryRange:      domain.Range{From: 1, To: 70},
				HitRange:        domain.Range{From: 101, To: 170},
				Alignment: domain.Alignment{
					Query:     aligned,
					Subject:   aligned,
					MatchLine: strings.Repeat("|", 70),
				},
			},
		},
		Statistics: domain.Statistics{DatabaseSequences: 2, DatabaseLetters: 9000},
	}
}

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, sampleResult())
	out := buf.String()

	assert.Contains(t, out, "Program: blastn  Service: local  Database: ecoli_k12")
	assert.Contains(t, out, "Source: Local")
	assert.Contains(t, out, "Hits: 1")
	assert.Contains(t, out, "#1 NC_000913.3  Escherichia coli str. K-12 substr. MG1655")
	assert.Contains(t, out, "evalue=1e-30")
	assert.Contains(t, out, "identity=100.0% (70/70)")
	assert.Contains(t, out, "Database: 2 sequences, 9000 letters")
	assert.NotContains(t, out, "representative results")
}

func TestRenderResult_WrapsAlignmentAtSixtyColumns(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, sampleResult())
	out := buf.String()

	// Two blocks: columns 1-60 and 61-70, with continuing coordinates.
	assert.Contains(t, out, "Query  1        "+strings.Repeat("ACGTACGTAC", 6)+"  60")
	assert.Contains(t, out, "Query  61       ACGTACGTAC  70")
	assert.Contains(t, out, "Sbjct  101      "+strings.Repeat("ACGTACGTAC", 6)+"  160")
	assert.Contains(t, out, "Sbjct  161      ACGTACGTAC  170")
}

func TestRenderResult_GapsDoNotAdvanceCoordinates(t *testing.T) {
	result := sampleResult()
	result.Hits[0].QueryRange = domain.Range{From: 1, To: 5}
	result.Hits[0].HitRange = domain.Range{From: 10, To: 15}
	result.Hits[0].Alignment = domain.Alignment{
		Query:     "ATG-CC",
		Subject:   "ATGACC",
		MatchLine: "||| ||",
	}

	var buf bytes.Buffer
	renderResult(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "Query  1        ATG-CC  5")
	assert.Contains(t, out, "Sbjct  10       ATGACC  15")
}

func TestRenderResult_FallbackNote(t *testing.T) {
	result := sampleResult()
	result.Source = domain.SourceFallback
	result.IsRealResults = false
	result.ErrorMessage = "blastn executable not found"

	var buf bytes.Buffer
	renderResult(&buf, result)

	assert.Contains(t, buf.String(), "Note: representative results, the search itself failed: blastn executable not found")
}

func TestRenderResult_HitWithoutAlignment(t *testing.T) {
	result := sampleResult()
	result.Hits[0].Alignment = domain.Alignment{}

	var buf bytes.Buffer
	renderResult(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "#1 NC_000913.3")
	assert.NotContains(t, out, "Query  1")
}

func TestRenderProfile_Protein(t *testing.T) {
	profile := &domain.SequenceProfile{
		Length:             4,
		Type:               domain.SequenceProtein,
		Counts:             map[string]int{"M": 1, "K": 2, "A": 1},
		Percent:            map[string]float64{"M": 25.0, "K": 50.0, "A": 25.0},
		HydrophobicPercent: 50.0,
		ChargedPercent:     50.0,
		PolarPercent:       0.0,
		GCEstimatePercent:  25.0,
	}

	var buf bytes.Buffer
	renderProfile(&buf, profile)
	out := buf.String()

	assert.Contains(t, out, "Length: 4 (Protein)")
	assert.Contains(t, out, "Hydrophobic: 50.0%  Charged: 50.0%  Polar: 0.0%")
	assert.Contains(t, out, "GC estimate (from codon classes): 25.0%")

	// Residue rows come out alphabetically.
	aIdx := strings.Index(out, "  A ")
	kIdx := strings.Index(out, "  K ")
	mIdx := strings.Index(out, "  M ")
	assert.True(t, aIdx >= 0 && aIdx < kIdx && kIdx < mIdx)
}

func TestRenderProfile_Nucleotide(t *testing.T) {
	profile := &domain.SequenceProfile{
		Length:    8,
		Type:      domain.SequenceDNA,
		Counts:    map[string]int{"A": 2, "C": 2, "G": 2, "T": 2},
		Percent:   map[string]float64{"A": 25.0, "C": 25.0, "G": 25.0, "T": 25.0},
		GCPercent: 50.0,
	}

	var buf bytes.Buffer
	renderProfile(&buf, profile)
	out := buf.String()

	assert.Contains(t, out, "Length: 8 (DNA)")
	assert.Contains(t, out, "GC content: 50.0%")
	assert.NotContains(t, out, "Hydrophobic")
}

func TestReadSequence(t *testing.T) {
	seq, err := readSequence("ATGC", "")
	assert.NoError(t, err)
	assert.Equal(t, "ATGC", seq)

	_, err = readSequence("", "")
	assert.ErrorContains(t, err, "a query is required")

	_, err = readSequence("ATGC", "query.fa")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = readSequence("", "/no/such/file.fa")
	assert.ErrorContains(t, err, "reading /no/such/file.fa")
}
