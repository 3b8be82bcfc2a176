// Package blastout parses raw BLAST output, tabular or XML, into the unified
// hit model and provides the ordering contract consumers rely on.
package blastout

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/blast-search-server/internal/domain"
)

// Tabular column positions for the output format requested from the local
// binaries: the standard twelve columns followed by score, subject length,
// query coverage, subject title and the raw aligned sequences.
const (
	colQueryID = iota
	colSubjectID
	colPercentIdentity
	colAlignLength
	colMismatches
	colGapOpens
	colQueryStart
	colQueryEnd
	colSubjectStart
	colSubjectEnd
	colEvalue
	colBitScore
	colRawScore
	colSubjectLength
	colQueryCoverage
	colSubjectTitle
	colQuerySeq
	colSubjectSeq
)

// minTabularColumns is the standard column count of tabular output. Lines
// with fewer fields are skipped, never fatal.
const minTabularColumns = 12

// ParseTabular converts tabular output into hits, one line per hit. Comment
// and blank lines are skipped, as is any line that is truncated or fails
// numeric conversion: a single malformed line must not discard an otherwise
// good result set. queryLen is used to derive coverage when the output lacks
// a qcovs column; protein selects the similarity rules for computed match
// lines. Hits are returned in the default order, best bit score first.
func ParseTabular(data []byte, queryLen int, protein bool) ([]domain.Hit, error) {
	hits := make([]domain.Hit, 0, 16)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		hit, ok := parseTabularLine(line, queryLen, protein)
		if !ok {
			continue
		}
		hits = append(hits, hit)
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.ParseError{Format: domain.FormatTabular, Err: err}
	}

	SortHits(hits, FieldBitScore, OrderDescending)
	return hits, nil
}

func parseTabularLine(line string, queryLen int, protein bool) (domain.Hit, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < minTabularColumns {
		return domain.Hit{}, false
	}

	pident, err := strconv.ParseFloat(fields[colPercentIdentity], 64)
	if err != nil {
		return domain.Hit{}, false
	}
	alignLen, err := strconv.Atoi(fields[colAlignLength])
	if err != nil {
		return domain.Hit{}, false
	}
	mismatches, err := strconv.Atoi(fields[colMismatches])
	if err != nil {
		return domain.Hit{}, false
	}
	gapOpens, err := strconv.Atoi(fields[colGapOpens])
	if err != nil {
		return domain.Hit{}, false
	}
	queryStart, err := strconv.Atoi(fields[colQueryStart])
	if err != nil {
		return domain.Hit{}, false
	}
	queryEnd, err := strconv.Atoi(fields[colQueryEnd])
	if err != nil {
		return domain.Hit{}, false
	}
	subjectStart, err := strconv.Atoi(fields[colSubjectStart])
	if err != nil {
		return domain.Hit{}, false
	}
	subjectEnd, err := strconv.Atoi(fields[colSubjectEnd])
	if err != nil {
		return domain.Hit{}, false
	}
	evalue, err := strconv.ParseFloat(fields[colEvalue], 64)
	if err != nil {
		return domain.Hit{}, false
	}
	bitScore, err := strconv.ParseFloat(fields[colBitScore], 64)
	if err != nil {
		return domain.Hit{}, false
	}

	identityCount := int(math.Round(pident * float64(alignLen) / 100))
	if identityCount > alignLen {
		identityCount = alignLen
	}

	hit := domain.Hit{
		Accession:       fields[colSubjectID],
		Description:     fields[colSubjectID],
		Evalue:          evalue,
		BitScore:        bitScore,
		IdentityPercent: pident,
		IdentityCount:   identityCount,
		AlignmentLength: alignLen,
		MismatchCount:   mismatches,
		GapCount:        gapOpens,
		QueryRange:      orderedRange(queryStart, queryEnd),
		HitRange:        orderedRange(subjectStart, subjectEnd),
	}

	// Optional trailing columns.
	if len(fields) > colRawScore {
		if raw, err := strconv.ParseFloat(fields[colRawScore], 64); err == nil {
			hit.RawScore = raw
		}
	}
	if len(fields) > colSubjectLength {
		if slen, err := strconv.Atoi(fields[colSubjectLength]); err == nil {
			hit.SubjectLength = slen
		}
	}
	if len(fields) > colQueryCoverage {
		if qcovs, err := strconv.ParseFloat(fields[colQueryCoverage], 64); err == nil {
			hit.CoveragePercent = qcovs
		}
	}
	if len(fields) > colSubjectTitle && fields[colSubjectTitle] != "" {
		hit.Description = fields[colSubjectTitle]
		hit.Organism = extractOrganism(fields[colSubjectTitle])
	}
	if len(fields) > colSubjectSeq {
		qseq := fields[colQuerySeq]
		sseq := fields[colSubjectSeq]
		if qseq != "" && sseq != "" {
			hit.Alignment = domain.Alignment{
				Query:     qseq,
				Subject:   sseq,
				MatchLine: ComputeMatchLine(qseq, sseq, protein),
			}
		}
	}

	if hit.CoveragePercent == 0 && queryLen > 0 {
		hit.CoveragePercent = float64(alignLen) / float64(queryLen) * 100
	}

	return hit, true
}

// orderedRange normalizes a start/end pair into an ascending interval.
// Minus-strand tabular rows report subject coordinates high-to-low.
func orderedRange(from, to int) domain.Range {
	if from > to {
		return domain.Range{From: to, To: from}
	}
	return domain.Range{From: from, To: to}
}

// extractOrganism pulls the bracketed organism suffix NCBI appends to
// subject titles, e.g. "L-arabinose isomerase [Escherichia coli]".
func extractOrganism(title string) string {
	open := strings.LastIndex(title, "[")
	end := strings.LastIndex(title, "]")
	if open >= 0 && end > open {
		return title[open+1 : end]
	}
	return ""
}
