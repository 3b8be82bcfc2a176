package domain

import (
	"fmt"
	"time"
)

// SequenceQuery is a cleaned, classified query sequence. It is produced only
// by the sequence validator and treated as immutable afterwards.
type SequenceQuery struct {
	Sequence string       `json:"sequence"`
	Type     SequenceType `json:"type"`
	Length   int          `json:"length"`
}

// Preview returns the first n characters of the sequence for display and
// history rows.
func (q SequenceQuery) Preview(n int) string {
	if len(q.Sequence) <= n {
		return q.Sequence
	}
	return q.Sequence[:n] + "..."
}

// SearchRequest carries everything needed to run one search. Database is an
// opaque reference: a registry id or name for the local service, an NCBI
// database name (nt, nr, ...) for the remote service.
type SearchRequest struct {
	BlastType       BlastType   `json:"blast_type"`
	Service         ServiceType `json:"service"`
	Database        string      `json:"database"`
	EvalueThreshold float64     `json:"evalue_threshold"`
	MaxTargets      int         `json:"max_targets"`

	// Advanced tuning, zero values mean "let the program decide".
	WordSize            int    `json:"word_size,omitempty"`
	Matrix              string `json:"matrix,omitempty"`
	GapOpen             int    `json:"gap_open,omitempty"`
	GapExtend           int    `json:"gap_extend,omitempty"`
	LowComplexityFilter bool   `json:"low_complexity_filter,omitempty"`
}

// Defaults used when a request leaves the corresponding field unset.
const (
	DefaultEvalueThreshold = 10.0
	DefaultMaxTargets      = 50
)

// ApplyDefaults fills unset threshold fields with the BLAST+ defaults.
func (r *SearchRequest) ApplyDefaults() {
	if r.EvalueThreshold <= 0 {
		r.EvalueThreshold = DefaultEvalueThreshold
	}
	if r.MaxTargets <= 0 {
		r.MaxTargets = DefaultMaxTargets
	}
}

// DatabaseRecord describes one local search database. Records are owned
// exclusively by the registry and mutated only through registry operations:
// creating -> ready on a successful build, removed on build failure, deleted
// on user request or when validation finds the artifacts missing.
type DatabaseRecord struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	MolType        MolType        `json:"mol_type"`
	Status         DatabaseStatus `json:"status"`
	StorageDir     string         `json:"storage_dir"`
	BasePath       string         `json:"base_path"`
	SequenceCount  int64          `json:"sequence_count"`
	LetterCount    int64          `json:"letter_count"`
	SourceFilePath string         `json:"source_file_path"`
	LastValidated  time.Time      `json:"last_validated"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RemoteJob tracks one submitted NCBI search through the poll loop.
type RemoteJob struct {
	RequestID string          `json:"request_id"`
	Status    RemoteJobStatus `json:"status"`
	Attempts  int             `json:"attempts"`
	StartedAt time.Time       `json:"started_at"`
}

// Range is a 1-based inclusive interval on a sequence.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Alignment holds the aligned query and subject strings plus the computed
// match line between them. The three strings have equal length when all are
// present; MatchLine is empty when the raw sequences were unavailable.
type Alignment struct {
	Query     string `json:"query,omitempty"`
	Subject   string `json:"subject,omitempty"`
	MatchLine string `json:"match_line,omitempty"`
}

// HSP is one high-scoring segment pair between the query and a subject
// beyond the hit's primary alignment.
type HSP struct {
	BitScore      float64   `json:"bit_score"`
	RawScore      float64   `json:"raw_score"`
	Evalue        float64   `json:"evalue"`
	IdentityCount int       `json:"identity_count"`
	AlignLength   int       `json:"align_length"`
	GapCount      int       `json:"gap_count"`
	QueryRange    Range     `json:"query_range"`
	HitRange      Range     `json:"hit_range"`
	Alignment     Alignment `json:"alignment"`
}

// Hit is one database sequence matched by the search, normalized across the
// tabular and XML output shapes. Invariants: IdentityCount <= AlignmentLength
// and QueryRange.From <= QueryRange.To.
type Hit struct {
	Accession       string    `json:"accession"`
	Description     string    `json:"description"`
	Organism        string    `json:"organism,omitempty"`
	SubjectLength   int       `json:"subject_length"`
	Evalue          float64   `json:"evalue"`
	BitScore        float64   `json:"bit_score"`
	RawScore        float64   `json:"raw_score"`
	IdentityPercent float64   `json:"identity_percent"`
	IdentityCount   int       `json:"identity_count"`
	CoveragePercent float64   `json:"coverage_percent"`
	AlignmentLength int       `json:"alignment_length"`
	GapCount        int       `json:"gap_count"`
	MismatchCount   int       `json:"mismatch_count"`
	QueryRange      Range     `json:"query_range"`
	HitRange        Range     `json:"hit_range"`
	Alignment       Alignment `json:"alignment"`
	HSPs            []HSP     `json:"hsps,omitempty"`
}

// Validate checks the cross-field invariants every hit must satisfy,
// including synthesized fallback hits.
func (h *Hit) Validate() error {
	if h.IdentityCount > h.AlignmentLength {
		return fmt.Errorf("hit %s: identity count %d exceeds alignment length %d",
			h.Accession, h.IdentityCount, h.AlignmentLength)
	}
	if h.QueryRange.From > h.QueryRange.To {
		return fmt.Errorf("hit %s: inverted query range %d..%d",
			h.Accession, h.QueryRange.From, h.QueryRange.To)
	}
	return nil
}

// Statistics summarizes the searched database and the score model.
type Statistics struct {
	DatabaseSequences int64         `json:"database_sequences"`
	DatabaseLetters   int64         `json:"database_letters"`
	SearchTime        time.Duration `json:"search_time"`
	Kappa             float64       `json:"kappa,omitempty"`
	Lambda            float64       `json:"lambda,omitempty"`
	Entropy           float64       `json:"entropy,omitempty"`
}

// QueryInfo is the display summary of the query embedded in a result.
type QueryInfo struct {
	Preview string       `json:"preview"`
	Length  int          `json:"length"`
	Type    SequenceType `json:"type"`
}

// RawOutput is the unparsed backend output retained for the parser and for
// audit/export. AuditText carries the optional human-readable copy fetched
// from the remote service; it may be empty.
type RawOutput struct {
	Data      []byte       `json:"-"`
	Format    OutputFormat `json:"format"`
	AuditText []byte       `json:"-"`
}

// SearchResult is the single shape every search produces, real or fallback.
// IsRealResults is false only when Source is SourceFallback, and then
// ErrorMessage holds the diagnostic of the failure that triggered the
// fallback. Results are immutable once produced.
type SearchResult struct {
	SearchID      string        `json:"search_id"`
	QueryInfo     QueryInfo     `json:"query_info"`
	Parameters    SearchRequest `json:"parameters"`
	Hits          []Hit         `json:"hits"`
	Statistics    Statistics    `json:"statistics"`
	Source        ResultSource  `json:"source"`
	IsRealResults bool          `json:"is_real_results"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	RawOutput     string        `json:"raw_output,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SequenceProfile is the composition summary of a query sequence: residue
// counts, physicochemical class fractions, and for protein queries the
// expected codon usage under the E. coli frequency table.
type SequenceProfile struct {
	Length             int                           `json:"length"`
	Type               SequenceType                  `json:"type"`
	Counts             map[string]int                `json:"counts"`
	Percent            map[string]float64            `json:"percent"`
	HydrophobicPercent float64                       `json:"hydrophobic_percent,omitempty"`
	ChargedPercent     float64                       `json:"charged_percent,omitempty"`
	PolarPercent       float64                       `json:"polar_percent,omitempty"`
	GCEstimatePercent  float64                       `json:"gc_estimate_percent,omitempty"`
	GCPercent          float64                       `json:"gc_percent,omitempty"`
	ExpectedCodons     map[string]map[string]float64 `json:"expected_codons,omitempty"`
}

// SearchRecord is the flattened history row written after each orchestrated
// search, real or fallback.
type SearchRecord struct {
	SearchID     string        `json:"search_id"`
	BlastType    BlastType     `json:"blast_type"`
	Service      ServiceType   `json:"service"`
	Database     string        `json:"database"`
	QueryPreview string        `json:"query_preview"`
	QueryLength  int           `json:"query_length"`
	QueryType    SequenceType  `json:"query_type"`
	HitCount     int           `json:"hit_count"`
	BestEvalue   float64       `json:"best_evalue"`
	BestBitScore float64       `json:"best_bit_score"`
	IsReal       bool          `json:"is_real"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Source       ResultSource  `json:"source"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}
