package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
)

// Physicochemical groupings used for protein composition summaries.
var (
	hydrophobicResidues = "AVILMFWY"
	chargedResidues     = "RKDE"
	polarResidues       = "NQSTY"
	gcRichResidues      = "GCAPR"
)

// ecoliCodonFreq is the E. coli K-12 codon usage frequency per amino acid.
var ecoliCodonFreq = map[string]map[string]float64{
	"F": {"TTT": 0.58, "TTC": 0.42},
	"L": {"TTA": 0.14, "TTG": 0.13, "CTT": 0.12, "CTC": 0.10, "CTA": 0.04, "CTG": 0.47},
	"S": {"TCT": 0.17, "TCC": 0.15, "TCA": 0.14, "TCG": 0.14, "AGT": 0.16, "AGC": 0.25},
	"Y": {"TAT": 0.59, "TAC": 0.41},
	"C": {"TGT": 0.46, "TGC": 0.54},
	"W": {"TGG": 1.00},
	"P": {"CCT": 0.18, "CCC": 0.13, "CCA": 0.20, "CCG": 0.49},
	"H": {"CAT": 0.57, "CAC": 0.43},
	"Q": {"CAA": 0.34, "CAG": 0.66},
	"R": {"CGT": 0.36, "CGC": 0.36, "CGA": 0.07, "CGG": 0.11, "AGA": 0.07, "AGG": 0.04},
	"I": {"ATT": 0.49, "ATC": 0.39, "ATA": 0.11},
	"M": {"ATG": 1.00},
	"T": {"ACT": 0.19, "ACC": 0.40, "ACA": 0.17, "ACG": 0.25},
	"N": {"AAT": 0.49, "AAC": 0.51},
	"K": {"AAA": 0.74, "AAG": 0.26},
	"V": {"GTT": 0.28, "GTC": 0.20, "GTA": 0.17, "GTG": 0.35},
	"A": {"GCT": 0.18, "GCC": 0.26, "GCA": 0.23, "GCG": 0.33},
	"D": {"GAT": 0.63, "GAC": 0.37},
	"E": {"GAA": 0.68, "GAG": 0.32},
	"G": {"GGT": 0.35, "GGC": 0.37, "GGA": 0.13, "GGG": 0.15},
}

// defaultProfileCacheSize bounds the memoization cache.
const defaultProfileCacheSize = 256

// ProfileService computes sequence composition profiles. Pure computation,
// memoized by sequence hash since the same query tends to be profiled and
// searched in one session.
type ProfileService struct {
	cache  *lru.Cache[string, *domain.SequenceProfile]
	logger *logrus.Logger
}

// NewProfileService creates a profile service with a bounded memo cache.
func NewProfileService(cacheSize int, logger *logrus.Logger) (*ProfileService, error) {
	if cacheSize <= 0 {
		cacheSize = defaultProfileCacheSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	cache, err := lru.New[string, *domain.SequenceProfile](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &ProfileService{cache: cache, logger: logger}, nil
}

// Profile computes the composition summary for a validated query.
func (p *ProfileService) Profile(ctx context.Context, query domain.SequenceQuery) (*domain.SequenceProfile, error) {
	if query.Length == 0 {
		return nil, domain.NewValidationError("sequence", "cannot profile an empty sequence")
	}

	key := profileKey(query.Sequence)
	if cached, ok := p.cache.Get(key); ok {
		p.logger.WithField("length", query.Length).Debug("Profile cache hit")
		return cached, nil
	}

	profile := computeProfile(query)
	p.cache.Add(key, profile)
	return profile, nil
}

func profileKey(sequence string) string {
	sum := sha256.Sum256([]byte(sequence))
	return hex.EncodeToString(sum[:])
}

func computeProfile(query domain.SequenceQuery) *domain.SequenceProfile {
	counts := make(map[string]int)
	for _, r := range query.Sequence {
		counts[string(r)]++
	}

	total := float64(query.Length)
	percent := make(map[string]float64, len(counts))
	for residue, count := range counts {
		percent[residue] = float64(count) / total * 100
	}

	profile := &domain.SequenceProfile{
		Length:  query.Length,
		Type:    query.Type,
		Counts:  counts,
		Percent: percent,
	}

	if query.Type.IsProtein() {
		profile.HydrophobicPercent = groupPercent(counts, hydrophobicResidues, total)
		profile.ChargedPercent = groupPercent(counts, chargedResidues, total)
		profile.PolarPercent = groupPercent(counts, polarResidues, total)
		profile.GCEstimatePercent = groupPercent(counts, gcRichResidues, total)
		profile.ExpectedCodons = expectedCodons(counts)
	} else {
		profile.GCPercent = groupPercent(counts, "GC", total)
	}

	return profile
}

func groupPercent(counts map[string]int, residues string, total float64) float64 {
	sum := 0
	for _, r := range residues {
		sum += counts[string(r)]
	}
	return float64(sum) / total * 100
}

// expectedCodons scales each residue's codon frequencies by its occurrence
// count, giving the expected codon usage of a gene encoding the sequence.
func expectedCodons(counts map[string]int) map[string]map[string]float64 {
	expected := make(map[string]map[string]float64)
	for residue, count := range counts {
		freqs, ok := ecoliCodonFreq[residue]
		if !ok {
			continue
		}
		perCodon := make(map[string]float64, len(freqs))
		for codon, freq := range freqs {
			perCodon[codon] = float64(count) * freq
		}
		expected[residue] = perCodon
	}
	return expected
}
