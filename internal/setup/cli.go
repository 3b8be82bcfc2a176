package setup

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// CLI drives the setup flow and prints a human-readable report.
type CLI struct {
	out io.Writer
}

// NewCLI creates a setup CLI writing its report to out.
func NewCLI(out io.Writer) *CLI {
	return &CLI{out: out}
}

// Run executes the setup flow with the given arguments. It returns an error
// when the flow cannot complete, or when -require-tools is set and no BLAST+
// binary could be found.
func (c *CLI) Run(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(c.out)

	configPath := fs.String("config", "config.yaml", "path of the config file to create")
	dataDir := fs.String("data-dir", "./data", "data directory to create")
	binDir := fs.String("bin-dir", "", "directory holding the BLAST+ binaries (default: PATH lookup)")
	requireTools := fs.Bool("require-tools", false, "fail when no BLAST+ binaries are found")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c.header("Data directories")
	if err := EnsureDataDirs(*dataDir); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ %s (databases/, history/)\n", *dataDir)

	c.header("Configuration")
	written, err := WriteDefaultConfig(*configPath)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(c.out, "✓ Wrote %s\n", *configPath)
	} else {
		fmt.Fprintf(c.out, "- %s already exists, left untouched\n", *configPath)
	}

	c.header("BLAST+ toolchain")
	statuses := ProbeTools(*binDir)
	for _, status := range statuses {
		if status.Found {
			fmt.Fprintf(c.out, "✓ %-12s %s (%s)\n", status.Name, status.Path, status.Version)
		} else {
			fmt.Fprintf(c.out, "✗ %-12s not found\n", status.Name)
		}
	}

	missing := MissingTools(statuses)
	fmt.Fprintln(c.out)
	switch {
	case len(missing) == 0:
		fmt.Fprintln(c.out, "✓ Setup complete. All BLAST+ binaries are available.")
	case *requireTools:
		return fmt.Errorf("missing BLAST+ binaries: %s", strings.Join(missing, ", "))
	default:
		fmt.Fprintf(c.out, "⚠ Setup complete, but %d binaries are missing: %s\n",
			len(missing), strings.Join(missing, ", "))
		fmt.Fprintln(c.out, "  Local search will fail until BLAST+ is installed. Remote search is unaffected.")
	}

	return nil
}

func (c *CLI) header(title string) {
	fmt.Fprintf(c.out, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
}
