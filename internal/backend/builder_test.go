package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blast-search-server/internal/domain"
)

const dbInfoOutput = `Database: ecoli test set
	4 sequences; 1,172 total bases

Date: Aug 20, 2026  3:10 PM	Longest sequence: 512 bases

Volumes:
	/data/blast/ecoli_k12
`

func newTestBuilder(r runner) *DatabaseBuilder {
	b := NewDatabaseBuilder(domain.ToolsConfig{}, nil)
	b.runner = r
	return b
}

func TestDatabaseBuilder_Build(t *testing.T) {
	var calls []string
	var makeArgs []string
	runner := funcRunner(func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		calls = append(calls, name)
		switch name {
		case "makeblastdb":
			makeArgs = args
			return []byte("Adding sequences from FASTA; added 4 sequences"), nil, nil
		case "blastdbcmd":
			return []byte(dbInfoOutput), nil, nil
		default:
			return nil, nil, errors.New("unexpected binary")
		}
	})

	builder := newTestBuilder(runner)
	seqs, letters, err := builder.Build(context.Background(), "/src/genome.fasta", "/data/blast/ecoli_k12", domain.MolNucleotide, "ecoli test set")

	require.NoError(t, err)
	assert.Equal(t, int64(4), seqs)
	assert.Equal(t, int64(1172), letters)
	assert.Equal(t, []string{"makeblastdb", "blastdbcmd"}, calls)

	assert.Equal(t, "/src/genome.fasta", argValue(makeArgs, "-in"))
	assert.Equal(t, "nucl", argValue(makeArgs, "-dbtype"))
	assert.Equal(t, "/data/blast/ecoli_k12", argValue(makeArgs, "-out"))
	assert.Equal(t, "ecoli test set", argValue(makeArgs, "-title"))
	assert.Contains(t, makeArgs, "-parse_seqids")
}

func TestDatabaseBuilder_Build_ProteinDBType(t *testing.T) {
	var makeArgs []string
	runner := funcRunner(func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		if name == "makeblastdb" {
			makeArgs = args
		}
		return []byte("12 sequences; 4,800 total residues"), nil, nil
	})

	builder := newTestBuilder(runner)
	seqs, letters, err := builder.Build(context.Background(), "/src/proteins.fasta", "/data/blast/prot", domain.MolProtein, "")

	require.NoError(t, err)
	assert.Equal(t, "prot", argValue(makeArgs, "-dbtype"))
	assert.NotContains(t, makeArgs, "-title")
	assert.Equal(t, int64(12), seqs)
	assert.Equal(t, int64(4800), letters)
}

func TestDatabaseBuilder_Build_Failure(t *testing.T) {
	runner := funcRunner(func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		return nil, []byte("BLAST options error: File /src/missing.fasta does not exist"), errors.New("exit status 1")
	})

	builder := newTestBuilder(runner)
	_, _, err := builder.Build(context.Background(), "/src/missing.fasta", "/data/blast/x", domain.MolNucleotide, "")

	var procErr *domain.ProcessExecutionError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "makeblastdb", procErr.Command)
}

func TestParseDBInfo(t *testing.T) {
	tests := []struct {
		name        string
		out         string
		wantSeqs    int64
		wantLetters int64
		expectError bool
	}{
		{
			name:        "nucleotide summary",
			out:         dbInfoOutput,
			wantSeqs:    4,
			wantLetters: 1172,
		},
		{
			name:        "protein summary with large counts",
			out:         "Database: nr slice\n\t1,234,567 sequences; 456,789,012 total residues\n",
			wantSeqs:    1234567,
			wantLetters: 456789012,
		},
		{
			name:        "no summary line",
			out:         "BLAST Database error: could not open",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seqs, letters, err := parseDBInfo(tt.out)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeqs, seqs)
			assert.Equal(t, tt.wantLetters, letters)
		})
	}
}
