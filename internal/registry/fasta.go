package registry

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/blast-search-server/internal/domain"
)

// maxLineSize accommodates single-line sequence records, which some
// genome exports produce.
const maxLineSize = 16 * 1024 * 1024

// CheckFASTA verifies that the file at path looks like FASTA before any
// build is attempted. It catches the common mistake of feeding a GenBank,
// EMBL or FASTQ file to the database builder, which would otherwise fail
// with an opaque error halfway through.
func CheckFASTA(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewValidationError("source_file", fmt.Sprintf("file not found: %s", path))
		}
		return fmt.Errorf("checking source file: %w", err)
	}
	if info.Size() == 0 {
		return domain.NewValidationError("source_file", fmt.Sprintf("file is empty: %s", path))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	sawHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawHeader {
			if err := checkFirstLine(path, line); err != nil {
				return err
			}
			sawHeader = true
			continue
		}

		// Any non-blank line after the header that is not another header
		// counts as sequence data.
		if !strings.HasPrefix(line, ">") {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	if sawHeader {
		return &domain.UnsupportedFormatError{Path: path, Detail: "no sequence data after header"}
	}
	return &domain.UnsupportedFormatError{Path: path, Detail: "file contains no records"}
}

// checkFirstLine classifies the common non-FASTA formats by their leading
// marker so the error names what the file actually is.
func checkFirstLine(path, line string) error {
	switch {
	case strings.HasPrefix(line, ">"):
		return nil
	case strings.HasPrefix(line, "LOCUS"), strings.HasPrefix(line, "ORIGIN"):
		return &domain.UnsupportedFormatError{Path: path, Detail: "GenBank flat file, expected FASTA"}
	case strings.HasPrefix(line, "ID "), strings.HasPrefix(line, "SQ "):
		return &domain.UnsupportedFormatError{Path: path, Detail: "EMBL flat file, expected FASTA"}
	case strings.HasPrefix(line, "@"):
		return &domain.UnsupportedFormatError{Path: path, Detail: "FASTQ file, expected FASTA"}
	default:
		return &domain.UnsupportedFormatError{Path: path, Detail: "first line does not start with '>'"}
	}
}
