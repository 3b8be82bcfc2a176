package service

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/pkg/blastout"
)

// demoEntry is one synthetic database sequence the fallback draws from.
type demoEntry struct {
	accession   string
	description string
	organism    string
}

// The accession tables are fixed so repeated fallbacks present the same
// subjects. Identities start high and fall off per entry.
var (
	nucleotideDemoEntries = []demoEntry{
		{"NR_102804.1", "Escherichia coli str. K-12 16S ribosomal RNA", "Escherichia coli"},
		{"NR_074891.1", "Salmonella enterica 16S ribosomal RNA", "Salmonella enterica"},
		{"NR_119237.1", "Shigella flexneri 16S ribosomal RNA", "Shigella flexneri"},
		{"NR_117752.1", "Klebsiella pneumoniae 16S ribosomal RNA", "Klebsiella pneumoniae"},
		{"NR_113580.1", "Enterobacter cloacae 16S ribosomal RNA", "Enterobacter cloacae"},
	}
	proteinDemoEntries = []demoEntry{
		{"NP_414542.1", "L-arabinose isomerase [Escherichia coli str. K-12]", "Escherichia coli"},
		{"WP_000151742.1", "L-arabinose isomerase [Salmonella enterica]", "Salmonella enterica"},
		{"WP_001262175.1", "sugar isomerase family protein [Shigella flexneri]", "Shigella flexneri"},
		{"WP_004178053.1", "L-arabinose isomerase [Klebsiella pneumoniae]", "Klebsiella pneumoniae"},
		{"WP_013096705.1", "arabinose isomerase [Enterobacter cloacae]", "Enterobacter cloacae"},
	}
)

const (
	nucleotideAlphabet = "ACGT"
	proteinAlphabet    = "ACDEFGHIKLMNPQRSTVWY"
)

// FallbackGenerator synthesizes a presentable result when a real search
// could not complete. Everything it produces is flagged IsRealResults=false
// and carries the diagnostic of the failure that triggered it.
type FallbackGenerator struct{}

// NewFallbackGenerator creates a fallback generator.
func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

// Generate builds a fallback result for the given query and request. The
// hits are mutated copies of the query at stepped identities, so they
// satisfy the same invariants as parsed hits. Output is deterministic for
// a given query sequence.
func (g *FallbackGenerator) Generate(query domain.SequenceQuery, req *domain.SearchRequest, trigger error) *domain.SearchResult {
	protein := query.Type.IsProtein()
	entries := nucleotideDemoEntries
	alphabet := nucleotideAlphabet
	if protein {
		entries = proteinDemoEntries
		alphabet = proteinAlphabet
	}

	rng := rand.New(rand.NewSource(querySeed(query.Sequence)))

	n := len(entries)
	if req.MaxTargets > 0 && req.MaxTargets < n {
		n = req.MaxTargets
	}

	hits := make([]domain.Hit, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, g.synthesizeHit(rng, query, entries[i], alphabet, i, protein))
	}

	message := "search could not complete"
	if trigger != nil {
		message = trigger.Error()
	}

	return &domain.SearchResult{
		QueryInfo: domain.QueryInfo{
			Preview: query.Preview(60),
			Length:  query.Length,
			Type:    query.Type,
		},
		Parameters: *req,
		Hits:       hits,
		Statistics: domain.Statistics{
			DatabaseSequences: int64(len(entries)),
			DatabaseLetters:   int64(len(entries) * query.Length),
		},
		Source:        domain.SourceFallback,
		IsRealResults: false,
		ErrorMessage:  message,
		CreatedAt:     time.Now(),
	}
}

// synthesizeHit mutates the query down to a stepped target identity and
// derives every field a parsed hit would have.
func (g *FallbackGenerator) synthesizeHit(rng *rand.Rand, query domain.SequenceQuery, entry demoEntry, alphabet string, rank int, protein bool) domain.Hit {
	targetIdentity := 0.98 - 0.07*float64(rank)
	subject, mismatches := mutateSequence(rng, query.Sequence, targetIdentity, alphabet)

	length := query.Length
	identityCount := length - mismatches
	bitScore := math.Round(1.9 * float64(identityCount))
	evalue := math.Pow(10, float64(-150+30*rank))

	hit := domain.Hit{
		Accession:       entry.accession,
		Description:     entry.description,
		Organism:        entry.organism,
		SubjectLength:   length,
		Evalue:          evalue,
		BitScore:        bitScore,
		RawScore:        math.Round(bitScore / 2),
		IdentityPercent: float64(identityCount) / float64(length) * 100,
		IdentityCount:   identityCount,
		CoveragePercent: 100,
		AlignmentLength: length,
		MismatchCount:   mismatches,
		QueryRange:      domain.Range{From: 1, To: length},
		HitRange:        domain.Range{From: 1, To: length},
		Alignment: domain.Alignment{
			Query:     query.Sequence,
			Subject:   subject,
			MatchLine: blastout.ComputeMatchLine(query.Sequence, subject, protein),
		},
	}
	return hit
}

// mutateSequence substitutes positions until the identity drops to target,
// never touching the same position twice. Returns the mutated copy and the
// number of substitutions made.
func mutateSequence(rng *rand.Rand, sequence string, targetIdentity float64, alphabet string) (string, int) {
	seq := []byte(sequence)
	mutations := int(math.Round(float64(len(seq)) * (1 - targetIdentity)))
	if mutations <= 0 {
		return sequence, 0
	}
	if mutations > len(seq) {
		mutations = len(seq)
	}

	positions := rng.Perm(len(seq))[:mutations]
	for _, pos := range positions {
		seq[pos] = differentLetter(rng, seq[pos], alphabet)
	}
	return string(seq), mutations
}

func differentLetter(rng *rand.Rand, current byte, alphabet string) byte {
	for {
		candidate := alphabet[rng.Intn(len(alphabet))]
		if candidate != current {
			return candidate
		}
	}
}

// querySeed folds the query hash into a stable rng seed.
func querySeed(sequence string) int64 {
	sum := sha256.Sum256([]byte(sequence))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
