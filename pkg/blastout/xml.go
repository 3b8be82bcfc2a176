package blastout

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/blast-search-server/internal/domain"
)

// XML document structure of the NCBI BlastOutput DTD. Only the elements the
// normalizer consumes are mapped.
type blastOutputXML struct {
	XMLName    xml.Name       `xml:"BlastOutput"`
	Program    string         `xml:"BlastOutput_program"`
	Database   string         `xml:"BlastOutput_db"`
	QueryLen   int            `xml:"BlastOutput_query-len"`
	Iterations []iterationXML `xml:"BlastOutput_iterations>Iteration"`
}

type iterationXML struct {
	Hits []hitXML       `xml:"Iteration_hits>Hit"`
	Stat *statisticsXML `xml:"Iteration_stat>Statistics"`
}

type hitXML struct {
	ID        string   `xml:"Hit_id"`
	Def       string   `xml:"Hit_def"`
	Accession string   `xml:"Hit_accession"`
	Len       int      `xml:"Hit_len"`
	Hsps      []hspXML `xml:"Hit_hsps>Hsp"`
}

type hspXML struct {
	BitScore  float64 `xml:"Hsp_bit-score"`
	Score     float64 `xml:"Hsp_score"`
	Evalue    float64 `xml:"Hsp_evalue"`
	QueryFrom int     `xml:"Hsp_query-from"`
	QueryTo   int     `xml:"Hsp_query-to"`
	HitFrom   int     `xml:"Hsp_hit-from"`
	HitTo     int     `xml:"Hsp_hit-to"`
	Identity  int     `xml:"Hsp_identity"`
	Positive  int     `xml:"Hsp_positive"`
	Gaps      int     `xml:"Hsp_gaps"`
	AlignLen  int     `xml:"Hsp_align-len"`
	QSeq      string  `xml:"Hsp_qseq"`
	HSeq      string  `xml:"Hsp_hseq"`
	Midline   string  `xml:"Hsp_midline"`
}

type statisticsXML struct {
	DBNum   int64   `xml:"Statistics_db-num"`
	DBLen   int64   `xml:"Statistics_db-len"`
	Kappa   float64 `xml:"Statistics_kappa"`
	Lambda  float64 `xml:"Statistics_lambda"`
	Entropy float64 `xml:"Statistics_entropy"`
}

// XMLResult is the normalized content of one BlastOutput document.
type XMLResult struct {
	Program    string
	Database   string
	QueryLen   int
	Hits       []domain.Hit
	Statistics domain.Statistics
}

// ParseXML converts a BlastOutput XML document into the unified hit model.
// Each Hit element's first Hsp, the highest scoring, becomes the primary
// alignment; the remainder are retained as secondary segments. A document
// that parses but contains no hits yields an empty hit list, not an error;
// a document that does not parse yields a ParseError.
func ParseXML(data []byte) (*XMLResult, error) {
	var doc blastOutputXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ParseError{Format: domain.FormatXML, Err: err}
	}

	result := &XMLResult{
		Program:  doc.Program,
		Database: doc.Database,
		QueryLen: doc.QueryLen,
		Hits:     make([]domain.Hit, 0, 16),
	}

	// Alignments are protein-level for every program except blastn.
	protein := doc.Program != "" && doc.Program != string(domain.BlastN)

	for _, iter := range doc.Iterations {
		for _, h := range iter.Hits {
			hit, ok := convertXMLHit(h, doc.QueryLen, protein)
			if !ok {
				continue
			}
			result.Hits = append(result.Hits, hit)
		}
		if iter.Stat != nil {
			result.Statistics = domain.Statistics{
				DatabaseSequences: iter.Stat.DBNum,
				DatabaseLetters:   iter.Stat.DBLen,
				Kappa:             iter.Stat.Kappa,
				Lambda:            iter.Stat.Lambda,
				Entropy:           iter.Stat.Entropy,
			}
		}
	}

	SortHits(result.Hits, FieldBitScore, OrderDescending)
	return result, nil
}

func convertXMLHit(h hitXML, queryLen int, protein bool) (domain.Hit, bool) {
	if len(h.Hsps) == 0 {
		return domain.Hit{}, false
	}

	primary := h.Hsps[0]
	hit := domain.Hit{
		Accession:       xmlAccession(h),
		Description:     h.Def,
		Organism:        extractOrganism(h.Def),
		SubjectLength:   h.Len,
		Evalue:          primary.Evalue,
		BitScore:        primary.BitScore,
		RawScore:        primary.Score,
		IdentityCount:   primary.Identity,
		AlignmentLength: primary.AlignLen,
		GapCount:        primary.Gaps,
		QueryRange:      orderedRange(primary.QueryFrom, primary.QueryTo),
		HitRange:        orderedRange(primary.HitFrom, primary.HitTo),
		Alignment:       xmlAlignment(primary, protein),
	}

	if primary.AlignLen > 0 {
		hit.IdentityPercent = float64(primary.Identity) / float64(primary.AlignLen) * 100
		hit.MismatchCount = primary.AlignLen - primary.Identity - primary.Gaps
		if hit.MismatchCount < 0 {
			hit.MismatchCount = 0
		}
	}
	if queryLen > 0 {
		hit.CoveragePercent = float64(primary.AlignLen) / float64(queryLen) * 100
	}

	for _, hsp := range h.Hsps[1:] {
		hit.HSPs = append(hit.HSPs, domain.HSP{
			BitScore:      hsp.BitScore,
			RawScore:      hsp.Score,
			Evalue:        hsp.Evalue,
			IdentityCount: hsp.Identity,
			AlignLength:   hsp.AlignLen,
			GapCount:      hsp.Gaps,
			QueryRange:    orderedRange(hsp.QueryFrom, hsp.QueryTo),
			HitRange:      orderedRange(hsp.HitFrom, hsp.HitTo),
			Alignment:     xmlAlignment(hsp, protein),
		})
	}

	return hit, true
}

// xmlAlignment prefers the midline reported by the service; a missing one
// is recomputed from the raw aligned sequences when both are present.
func xmlAlignment(hsp hspXML, protein bool) domain.Alignment {
	a := domain.Alignment{
		Query:     hsp.QSeq,
		Subject:   hsp.HSeq,
		MatchLine: hsp.Midline,
	}
	if a.MatchLine == "" && a.Query != "" && a.Subject != "" {
		a.MatchLine = ComputeMatchLine(a.Query, a.Subject, protein)
	}
	return a
}

// xmlAccession picks the most useful identifier: the accession element when
// present, else the last non-empty segment of the pipe-delimited Hit_id.
func xmlAccession(h hitXML) string {
	if h.Accession != "" {
		return h.Accession
	}
	parts := strings.Split(h.ID, "|")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return h.ID
}

// FormatStatistics renders the XML statistics block for text output.
func FormatStatistics(s domain.Statistics) string {
	return fmt.Sprintf("Sequences: %d, Letters: %d, Kappa: %.3f, Lambda: %.3f, Entropy: %.3f",
		s.DatabaseSequences, s.DatabaseLetters, s.Kappa, s.Lambda, s.Entropy)
}
