// Package setup prepares a host for first use: the data directory tree, a
// commented default config file, and a probe of the BLAST+ toolchain.
package setup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// blastTools lists the binaries the local backend and the registry invoke.
var blastTools = []string{
	"blastn",
	"blastp",
	"blastx",
	"tblastn",
	"makeblastdb",
	"blastdbcmd",
}

// ToolStatus reports whether one BLAST+ binary was found and which version
// it identifies as.
type ToolStatus struct {
	Name    string
	Path    string
	Version string
	Found   bool
}

// ProbeTools locates each BLAST+ binary under binDir, or on PATH when
// binDir is empty, and captures its version banner.
func ProbeTools(binDir string) []ToolStatus {
	statuses := make([]ToolStatus, 0, len(blastTools))
	for _, name := range blastTools {
		status := ToolStatus{Name: name}
		if path, err := resolveTool(binDir, name); err == nil {
			status.Found = true
			status.Path = path
			status.Version = toolVersion(path)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// MissingTools returns the names of binaries the probe did not find.
func MissingTools(statuses []ToolStatus) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Found {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

func resolveTool(binDir, name string) (string, error) {
	if binDir == "" {
		return exec.LookPath(name)
	}

	path := filepath.Join(binDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Mode()&0111 == 0 {
		return "", fmt.Errorf("%s is not executable", path)
	}
	return path, nil
}

// toolVersion runs `tool -version` and returns the first line of output.
func toolVersion(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "unknown"
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}

// EnsureDataDirs creates the directory tree the default sqlite deployment
// expects: the data root, database artifacts and history store.
func EnsureDataDirs(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "databases"),
		filepath.Join(dataDir, "history"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// WriteDefaultConfig writes a commented config.yaml at path unless a file
// already exists there. It reports whether a file was written.
func WriteDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

const defaultConfigYAML = `# blast-search-server configuration.
#
# Every key can also be set through the environment using the BLAST_SEARCH_
# prefix with underscores for dots, e.g. BLAST_SEARCH_SERVER_PORT=9090.
# Commented values show the defaults.

server:
  host: 0.0.0.0
  port: 8080
  # The write timeout must outlast a full remote poll cycle.
  # read_timeout: 30s
  # write_timeout: 10m
  # idle_timeout: 120s

registry:
  # Where database records live: sqlite (zero setup) or postgres.
  store: sqlite
  data_dir: ./data/databases
  sqlite_path: ./data/registry.db

history:
  store: sqlite
  sqlite_path: ./data/history/history.db

# PostgreSQL connection, used only when a store above is set to postgres.
# database:
#   host: localhost
#   port: 5432
#   database: blast_search
#   username: postgres
#   password: ""
#   ssl_mode: disable

ncbi:
  base_url: https://blast.ncbi.nlm.nih.gov/Blast.cgi
  # Requests per second against the NCBI endpoint.
  rate_limit: 3
  # poll_interval: 5s
  # max_attempts: 60

tools:
  # Directory holding the BLAST+ binaries. Empty means PATH lookup.
  bin_dir: ""

cache:
  memory_size: 128
  # Point at a Redis instance to share cached results across restarts.
  # redis_url: redis://localhost:6379/0
  ttl: 24h

logging:
  level: info
  format: json
`
