package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
)

// DatabaseBuilder formats FASTA files into BLAST databases and reads back
// their metadata. The registry drives it during database creation.
type DatabaseBuilder struct {
	binDir string
	runner runner
	logger *logrus.Logger
}

// NewDatabaseBuilder creates a builder using the same binary resolution as
// the search backend.
func NewDatabaseBuilder(cfg domain.ToolsConfig, logger *logrus.Logger) *DatabaseBuilder {
	if logger == nil {
		logger = logrus.New()
	}
	return &DatabaseBuilder{
		binDir: cfg.BinDir,
		runner: execRunner{},
		logger: logger,
	}
}

// Build runs makeblastdb over the source file and returns the sequence and
// letter counts reported by the finished database. The artifacts land next
// to basePath; on failure the caller owns cleanup of any partial files.
func (b *DatabaseBuilder) Build(ctx context.Context, sourcePath, basePath string, mol domain.MolType, title string) (sequences, letters int64, err error) {
	args := []string{
		"-in", sourcePath,
		"-dbtype", mol.DBType(),
		"-out", basePath,
		"-parse_seqids",
	}
	if title != "" {
		args = append(args, "-title", title)
	}

	b.logger.WithFields(logrus.Fields{
		"source": sourcePath,
		"dbtype": mol.DBType(),
		"out":    basePath,
	}).Info("Building BLAST database")

	_, stderr, err := b.runner.Run(ctx, b.binaryPath("makeblastdb"), args)
	if err != nil {
		return 0, 0, &domain.ProcessExecutionError{
			Command: "makeblastdb",
			Kind:    classifyFailure(err, stderr),
			Stderr:  string(stderr),
			Err:     err,
		}
	}

	return b.Info(ctx, basePath)
}

// Info queries a built database with blastdbcmd and parses the sequence and
// letter counts from its summary line.
func (b *DatabaseBuilder) Info(ctx context.Context, basePath string) (sequences, letters int64, err error) {
	stdout, stderr, err := b.runner.Run(ctx, b.binaryPath("blastdbcmd"), []string{"-db", basePath, "-info"})
	if err != nil {
		return 0, 0, &domain.ProcessExecutionError{
			Command: "blastdbcmd",
			Kind:    classifyFailure(err, stderr),
			Stderr:  string(stderr),
			Err:     err,
		}
	}
	return parseDBInfo(string(stdout))
}

func (b *DatabaseBuilder) binaryPath(name string) string {
	if b.binDir == "" {
		return name
	}
	return filepath.Join(b.binDir, name)
}

// infoPattern matches the blastdbcmd summary line, e.g.
//
//	4 sequences; 1,172 total bases
//	128 sequences; 45,912 total residues
var infoPattern = regexp.MustCompile(`([\d,]+) sequences; ([\d,]+) total (?:bases|residues)`)

func parseDBInfo(out string) (sequences, letters int64, err error) {
	m := infoPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, fmt.Errorf("no summary line in blastdbcmd output")
	}
	sequences, err = strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad sequence count %q: %w", m[1], err)
	}
	letters, err = strconv.ParseInt(strings.ReplaceAll(m[2], ",", ""), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad letter count %q: %w", m[2], err)
	}
	return sequences, letters, nil
}
