// Package service holds the search pipeline: query validation, the
// orchestrator that drives backends, the result cache, the fallback
// generator and the sequence profile computation.
package service

import (
	"fmt"
	"strings"

	"github.com/blast-search-server/internal/domain"
)

// MinQueryLength is the hard minimum for a cleaned query sequence.
const MinQueryLength = 10

// aminoOnlyLetters appear in protein sequences but never in nucleotide
// IUPAC codes, so any one of them settles the classification.
const aminoOnlyLetters = "EFILPQZ"

// nucleotideLetters is the IUPAC nucleotide alphabet including ambiguity
// codes; unambiguousBases are the subset that names a single base.
const (
	nucleotideLetters = "ACGTURYSWKMBDHVN"
	unambiguousBases  = "ACGTU"
)

// unambiguousRatio is the share of single-base letters above which a
// nucleotide sequence counts as plain DNA rather than DNA-ambiguous.
const unambiguousRatio = 0.9

// SequenceValidatorService implements domain.SequenceValidator.
type SequenceValidatorService struct{}

// NewSequenceValidator creates a new sequence validator.
func NewSequenceValidator() *SequenceValidatorService {
	return &SequenceValidatorService{}
}

// Clean strips a leading FASTA header line if present, removes every
// character outside A-Z and upper-cases the rest.
func (v *SequenceValidatorService) Clean(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, ">") {
		if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		} else {
			return ""
		}
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range strings.ToUpper(trimmed) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DetectType classifies a cleaned sequence. Any amino-only letter makes it
// Protein; a sequence drawn entirely from the IUPAC nucleotide alphabet is
// DNA or DNA-ambiguous depending on how much of it is unambiguous bases;
// anything else is Unknown.
func (v *SequenceValidatorService) DetectType(sequence string) domain.SequenceType {
	if sequence == "" {
		return domain.SequenceUnknown
	}

	if strings.ContainsAny(sequence, aminoOnlyLetters) {
		return domain.SequenceProtein
	}

	unambiguous := 0
	for _, r := range sequence {
		if !strings.ContainsRune(nucleotideLetters, r) {
			return domain.SequenceUnknown
		}
		if strings.ContainsRune(unambiguousBases, r) {
			unambiguous++
		}
	}

	if float64(unambiguous)/float64(len(sequence)) >= unambiguousRatio {
		return domain.SequenceDNA
	}
	return domain.SequenceDNAAmbiguous
}

// Validate cleans and classifies raw input, enforcing the minimum length.
func (v *SequenceValidatorService) Validate(raw string) (domain.SequenceQuery, error) {
	cleaned := v.Clean(raw)
	if len(cleaned) < MinQueryLength {
		return domain.SequenceQuery{}, domain.NewValidationError("sequence",
			fmt.Sprintf("sequence too short: %d characters after cleaning, minimum is %d", len(cleaned), MinQueryLength))
	}

	return domain.SequenceQuery{
		Sequence: cleaned,
		Type:     v.DetectType(cleaned),
		Length:   len(cleaned),
	}, nil
}

// CheckCompatibility enforces the program/sequence pairing: blastp needs a
// protein query, the nucleotide-query programs reject one, and an Unknown
// sequence type is never accepted.
func (v *SequenceValidatorService) CheckCompatibility(blastType domain.BlastType, seqType domain.SequenceType) error {
	if !blastType.IsValid() {
		return domain.NewValidationError("blast_type", fmt.Sprintf("unknown program %q", blastType))
	}
	if seqType.CompatibleWith(blastType) {
		return nil
	}

	if seqType == domain.SequenceUnknown {
		return domain.NewValidationError("sequence", "sequence type could not be determined")
	}
	if blastType.QueryIsProtein() {
		return domain.NewValidationError("sequence",
			fmt.Sprintf("%s requires a protein query, got %s", blastType, seqType))
	}
	return domain.NewValidationError("sequence",
		fmt.Sprintf("%s requires a nucleotide query, got %s", blastType, seqType))
}

var _ domain.SequenceValidator = (*SequenceValidatorService)(nil)
