// Package domain contains the core entities and types for BLAST search
// orchestration: typed sequences, search requests, database records, remote
// jobs, and the unified result model shared by the local and remote backends.
//
// Reference: Camacho et al. (2009) BLAST+: architecture and applications.
// BMC Bioinformatics 10:421. doi: 10.1186/1471-2105-10-421
package domain

import (
	"errors"
)

// BlastType identifies the search program. The value doubles as the name of
// the BLAST+ binary invoked by the local backend and as the PROGRAM parameter
// of the NCBI URL API.
type BlastType string

const (
	BlastN  BlastType = "blastn"
	BlastP  BlastType = "blastp"
	BlastX  BlastType = "blastx"
	TBlastN BlastType = "tblastn"
)

// ServiceType selects which execution backend runs a search.
type ServiceType string

const (
	ServiceLocal  ServiceType = "local"
	ServiceRemote ServiceType = "remote"
)

// SequenceType is the detected molecule class of a query sequence.
type SequenceType string

const (
	SequenceDNA          SequenceType = "DNA"
	SequenceDNAAmbiguous SequenceType = "DNA-ambiguous"
	SequenceProtein      SequenceType = "Protein"
	SequenceUnknown      SequenceType = "Unknown"
)

// MolType is the molecule class of a local database, matching the
// makeblastdb -dbtype values.
type MolType string

const (
	MolNucleotide MolType = "nucleotide"
	MolProtein    MolType = "protein"
)

// DatabaseStatus is the lifecycle state of a registry record.
type DatabaseStatus string

const (
	StatusCreating DatabaseStatus = "creating"
	StatusReady    DatabaseStatus = "ready"
	StatusError    DatabaseStatus = "error"
)

// RemoteJobStatus tracks a submitted NCBI job through the poll loop.
// Ready, Failed, Unknown and TimedOut are terminal.
type RemoteJobStatus string

const (
	JobWaiting  RemoteJobStatus = "Waiting"
	JobReady    RemoteJobStatus = "Ready"
	JobFailed   RemoteJobStatus = "Failed"
	JobUnknown  RemoteJobStatus = "Unknown"
	JobTimedOut RemoteJobStatus = "TimedOut"
)

// ResultSource records which path produced a SearchResult.
type ResultSource string

const (
	SourceLocal    ResultSource = "Local"
	SourceRemote   ResultSource = "Remote"
	SourceFallback ResultSource = "Fallback"
)

// OutputFormat identifies the shape of raw backend output handed to the parser.
type OutputFormat string

const (
	FormatTabular OutputFormat = "tabular"
	FormatXML     OutputFormat = "xml"
)

// ProgressStage names the pipeline steps reported to progress observers.
type ProgressStage string

const (
	StageValidating  ProgressStage = "validating"
	StageResolving   ProgressStage = "resolving"
	StageSubmitted   ProgressStage = "submitted"
	StagePolling     ProgressStage = "polling"
	StageDownloading ProgressStage = "downloading"
	StageParsing     ProgressStage = "parsing"
	StageDone        ProgressStage = "done"
	StageFallback    ProgressStage = "fallback"
)

// Shared sentinels. Stores translate their backend-specific not-found
// conditions to ErrNotFound so callers never match on driver errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrSearchInProgress = errors.New("a search is already in progress")
	ErrCancelled        = errors.New("search cancelled")
)

// IsValid reports whether the program name is one of the supported BLAST
// programs.
func (b BlastType) IsValid() bool {
	switch b {
	case BlastN, BlastP, BlastX, TBlastN:
		return true
	default:
		return false
	}
}

// QueryIsProtein reports whether the program requires a protein query.
// Only blastp does; blastn, blastx and tblastn reject protein input.
func (b BlastType) QueryIsProtein() bool {
	return b == BlastP
}

// DatabaseIsProtein reports whether the program scans a protein database.
// blastp and blastx do; blastn and tblastn scan nucleotide databases.
func (b BlastType) DatabaseIsProtein() bool {
	return b == BlastP || b == BlastX
}

// DatabaseMolType returns the molecule class of the database the program
// scans, used to pick the artifact extension set to check before a run.
func (b BlastType) DatabaseMolType() MolType {
	if b.DatabaseIsProtein() {
		return MolProtein
	}
	return MolNucleotide
}

func (s ServiceType) IsValid() bool {
	switch s {
	case ServiceLocal, ServiceRemote:
		return true
	default:
		return false
	}
}

func (m MolType) IsValid() bool {
	switch m {
	case MolNucleotide, MolProtein:
		return true
	default:
		return false
	}
}

// DBType returns the makeblastdb -dbtype argument for the molecule class.
func (m MolType) DBType() string {
	if m == MolProtein {
		return "prot"
	}
	return "nucl"
}

// ArtifactExtensions lists the on-disk database files expected for the
// molecule class. Validation checks the core index triplet; deletion sweeps
// the full set produced by modern makeblastdb versions.
func (m MolType) ArtifactExtensions() []string {
	if m == MolProtein {
		return []string{".phr", ".pin", ".psq", ".pdb", ".pot", ".ptf", ".pto", ".pjs"}
	}
	return []string{".nhr", ".nin", ".nsq", ".ndb", ".not", ".ntf", ".nto", ".njs"}
}

// CoreArtifactExtensions returns the three index files whose absence marks a
// database as missing or corrupt.
func (m MolType) CoreArtifactExtensions() []string {
	if m == MolProtein {
		return []string{".phr", ".pin", ".psq"}
	}
	return []string{".nhr", ".nin", ".nsq"}
}

// Terminal reports whether the job status ends the poll loop.
func (s RemoteJobStatus) Terminal() bool {
	switch s {
	case JobReady, JobFailed, JobUnknown, JobTimedOut:
		return true
	default:
		return false
	}
}

// IsProtein reports whether the detected sequence class is protein.
func (s SequenceType) IsProtein() bool {
	return s == SequenceProtein
}

// IsNucleotide reports whether the detected sequence class is DNA, with or
// without ambiguity codes.
func (s SequenceType) IsNucleotide() bool {
	return s == SequenceDNA || s == SequenceDNAAmbiguous
}

// CompatibleWith reports whether a query of this sequence type may be run
// under the given program. Protein queries are forbidden for blastn, blastx
// and tblastn; blastp takes only protein.
func (s SequenceType) CompatibleWith(b BlastType) bool {
	if s == SequenceUnknown {
		return false
	}
	if b.QueryIsProtein() {
		return s.IsProtein()
	}
	return !s.IsProtein()
}
