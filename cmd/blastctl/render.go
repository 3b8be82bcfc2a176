package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/blast-search-server/internal/domain"
)

// alignWidth is the number of alignment columns per rendered block,
// matching the BLAST+ pairwise report.
const alignWidth = 60

// renderResult prints the human-readable report: a query summary, the
// ranked hit list with pairwise alignments, and the database statistics.
func renderResult(w io.Writer, result *domain.SearchResult) {
	fmt.Fprintf(w, "Query: %s (%d residues, %s)\n",
		result.QueryInfo.Preview, result.QueryInfo.Length, result.QueryInfo.Type)
	fmt.Fprintf(w, "Program: %s  Service: %s  Database: %s\n",
		result.Parameters.BlastType, result.Parameters.Service, result.Parameters.Database)
	fmt.Fprintf(w, "Source: %s\n", result.Source)
	if !result.IsRealResults {
		fmt.Fprintf(w, "Note: representative results, the search itself failed: %s\n",
			result.ErrorMessage)
	}
	fmt.Fprintf(w, "\nHits: %d\n\n", len(result.Hits))

	for i, hit := range result.Hits {
		renderHit(w, i+1, hit)
	}

	stats := result.Statistics
	if stats.DatabaseSequences > 0 || stats.DatabaseLetters > 0 {
		fmt.Fprintf(w, "Database: %d sequences, %d letters\n",
			stats.DatabaseSequences, stats.DatabaseLetters)
	}
	if stats.SearchTime > 0 {
		fmt.Fprintf(w, "Search time: %s\n", stats.SearchTime)
	}
}

func renderHit(w io.Writer, rank int, hit domain.Hit) {
	if hit.Description != "" && hit.Description != hit.Accession {
		fmt.Fprintf(w, "#%d %s  %s\n", rank, hit.Accession, hit.Description)
	} else {
		fmt.Fprintf(w, "#%d %s\n", rank, hit.Accession)
	}
	fmt.Fprintf(w, "   evalue=%.3g  bitscore=%.1f  identity=%.1f%% (%d/%d)  gaps=%d\n",
		hit.Evalue, hit.BitScore, hit.IdentityPercent, hit.IdentityCount, hit.AlignmentLength, hit.GapCount)

	renderAlignment(w, hit)
	fmt.Fprintln(w)
}

// renderAlignment prints the pairwise alignment in 60-column blocks with
// running coordinates, skipping hits that carry no aligned sequences.
func renderAlignment(w io.Writer, hit domain.Hit) {
	al := hit.Alignment
	if al.Query == "" || al.Subject == "" {
		return
	}

	queryPos := hit.QueryRange.From
	subjectPos := hit.HitRange.From

	for start := 0; start < len(al.Query); start += alignWidth {
		end := min(start+alignWidth, len(al.Query))
		queryChunk := al.Query[start:end]
		subjectChunk := chunk(al.Subject, start, end)
		matchChunk := chunk(al.MatchLine, start, end)

		queryEnd := queryPos + residues(queryChunk) - 1
		subjectEnd := subjectPos + residues(subjectChunk) - 1

		fmt.Fprintf(w, "   Query  %-8d %s  %d\n", queryPos, queryChunk, queryEnd)
		if matchChunk != "" {
			fmt.Fprintf(w, "          %-8s %s\n", "", matchChunk)
		}
		fmt.Fprintf(w, "   Sbjct  %-8d %s  %d\n", subjectPos, subjectChunk, subjectEnd)

		queryPos = queryEnd + 1
		subjectPos = subjectEnd + 1
	}
}

func chunk(s string, start, end int) string {
	if start >= len(s) {
		return ""
	}
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

// residues counts alignment columns that consume a sequence position,
// which is every column except gaps.
func residues(s string) int {
	return len(s) - strings.Count(s, "-")
}

// renderProfile prints the composition summary. The expected codon table is
// left to the JSON output, it is too wide for a terminal report.
func renderProfile(w io.Writer, profile *domain.SequenceProfile) {
	fmt.Fprintf(w, "Length: %d (%s)\n\nResidues:\n", profile.Length, profile.Type)

	residues := make([]string, 0, len(profile.Counts))
	for residue := range profile.Counts {
		residues = append(residues, residue)
	}
	sort.Strings(residues)

	for _, residue := range residues {
		fmt.Fprintf(w, "  %-2s %6d  %5.1f%%\n", residue, profile.Counts[residue], profile.Percent[residue])
	}

	if profile.Type == domain.SequenceProtein {
		fmt.Fprintf(w, "\nHydrophobic: %.1f%%  Charged: %.1f%%  Polar: %.1f%%\n",
			profile.HydrophobicPercent, profile.ChargedPercent, profile.PolarPercent)
		fmt.Fprintf(w, "GC estimate (from codon classes): %.1f%%\n", profile.GCEstimatePercent)
	} else {
		fmt.Fprintf(w, "\nGC content: %.1f%%\n", profile.GCPercent)
	}
}
