// Package backend runs BLAST+ binaries as subprocesses: the search programs
// for the local execution path and makeblastdb/blastdbcmd for database
// builds. Output is captured whole; the search programs emit the 18-column
// tabular format consumed by the blastout parser.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
)

// tabularFields is the -outfmt column list. Order matters: the parser maps
// columns by position, and the first twelve match the BLAST+ std set.
const tabularFields = "qseqid sseqid pident length mismatch gapopen qstart qend sstart send evalue bitscore score slen qcovs stitle qseq sseq"

// runner abstracts subprocess execution so tests can substitute canned
// stdout, stderr and exit errors.
type runner interface {
	Run(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// LocalBackend executes searches against databases on the local filesystem.
type LocalBackend struct {
	binDir string
	runner runner
	logger *logrus.Logger
}

// NewLocalBackend creates the local execution backend. An empty binDir means
// the BLAST+ binaries are resolved through PATH.
func NewLocalBackend(cfg domain.ToolsConfig, logger *logrus.Logger) *LocalBackend {
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalBackend{
		binDir: cfg.BinDir,
		runner: execRunner{},
		logger: logger,
	}
}

// Execute runs the program named by the request against the database at
// dbPath and returns the captured tabular output. It implements
// domain.ExecutionBackend.
func (l *LocalBackend) Execute(ctx context.Context, req *domain.SearchRequest, query domain.SequenceQuery, dbPath string) (*domain.RawOutput, error) {
	if err := checkArtifacts(dbPath, req.BlastType.DatabaseMolType()); err != nil {
		return nil, err
	}

	queryFile, err := writeQueryFile(query.Sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to stage query: %w", err)
	}
	defer os.Remove(queryFile)

	program := string(req.BlastType)
	args := buildSearchArgs(req, queryFile, dbPath)

	l.logger.WithFields(logrus.Fields{
		"program":  program,
		"database": dbPath,
		"query_bp": query.Length,
	}).Debug("Running local BLAST search")

	stdout, stderr, err := l.runner.Run(ctx, l.binaryPath(program), args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		return nil, &domain.ProcessExecutionError{
			Command: program,
			Kind:    classifyFailure(err, stderr),
			Stderr:  string(stderr),
			Err:     err,
		}
	}

	return &domain.RawOutput{Data: stdout, Format: domain.FormatTabular}, nil
}

func (l *LocalBackend) binaryPath(name string) string {
	if l.binDir == "" {
		return name
	}
	return filepath.Join(l.binDir, name)
}

// buildSearchArgs assembles the argv shared by all four search programs.
// Zero-valued tuning fields are omitted so the program keeps its defaults.
func buildSearchArgs(req *domain.SearchRequest, queryFile, dbPath string) []string {
	args := []string{
		"-query", queryFile,
		"-db", dbPath,
		"-evalue", strconv.FormatFloat(req.EvalueThreshold, 'g', -1, 64),
		"-max_target_seqs", strconv.Itoa(req.MaxTargets),
		"-outfmt", "6 " + tabularFields,
	}
	if req.WordSize > 0 {
		args = append(args, "-word_size", strconv.Itoa(req.WordSize))
	}
	if req.Matrix != "" && req.BlastType != domain.BlastN {
		args = append(args, "-matrix", req.Matrix)
	}
	if req.GapOpen > 0 {
		args = append(args, "-gapopen", strconv.Itoa(req.GapOpen))
	}
	if req.GapExtend > 0 {
		args = append(args, "-gapextend", strconv.Itoa(req.GapExtend))
	}
	if req.LowComplexityFilter {
		if req.BlastType == domain.BlastN {
			args = append(args, "-dust", "yes")
		} else {
			args = append(args, "-seg", "yes")
		}
	}
	return args
}

// writeQueryFile stages the sequence as a transient single-record FASTA file.
func writeQueryFile(sequence string) (string, error) {
	f, err := os.CreateTemp("", "blast-query-*.fasta")
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(f, ">query\n%s\n", sequence); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// checkArtifacts verifies the core index triplet before spawning a process.
// A fully absent set means the database is gone; a partial set means a
// broken build or a half-finished delete.
func checkArtifacts(basePath string, mol domain.MolType) error {
	present := 0
	exts := mol.CoreArtifactExtensions()
	for _, ext := range exts {
		if _, err := os.Stat(basePath + ext); err == nil {
			present++
		}
	}
	switch present {
	case len(exts):
		return nil
	case 0:
		return &domain.DatabaseNotFoundError{Ref: basePath}
	default:
		return &domain.DatabaseCorruptError{
			Ref:    basePath,
			Detail: fmt.Sprintf("only %d of %d index files present", present, len(exts)),
		}
	}
}

// classifyFailure maps a subprocess failure onto the failure taxonomy using
// the diagnostics BLAST+ writes to stderr.
func classifyFailure(err error, stderr []byte) domain.ExecFailureKind {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return domain.ExecMissingExecutable
	}
	msg := string(stderr)
	switch {
	case strings.Contains(msg, "No alias or index file found"),
		strings.Contains(msg, "BLAST Database error"),
		strings.Contains(msg, "not a valid version"):
		return domain.ExecCorruptDatabase
	case strings.Contains(msg, "BLAST query/options error"),
		strings.Contains(msg, "Query contains no"),
		strings.Contains(msg, "Invalid character"),
		strings.Contains(msg, "Command line argument error"):
		return domain.ExecMalformedInput
	default:
		return domain.ExecGenericFailure
	}
}

var _ domain.ExecutionBackend = (*LocalBackend)(nil)
