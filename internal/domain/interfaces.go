package domain

import (
	"context"
)

// ExecutionBackend runs one search and returns the raw output for parsing.
// Implementations: the local subprocess runner and the NCBI remote client.
// database is the resolved reference: a filesystem base path for the local
// variant, the NCBI database name passed through verbatim for the remote.
type ExecutionBackend interface {
	Execute(ctx context.Context, req *SearchRequest, query SequenceQuery, database string) (*RawOutput, error)
}

// SequenceValidator cleans and classifies raw query input.
type SequenceValidator interface {
	Clean(raw string) string
	DetectType(sequence string) SequenceType
	Validate(raw string) (SequenceQuery, error)
	CheckCompatibility(blastType BlastType, seqType SequenceType) error
}

// ProgressObserver receives pipeline stage notifications for one search.
// Implementations must not block; slow consumers drop frames, they do not
// stall the search.
type ProgressObserver interface {
	OnProgress(stage ProgressStage, detail string)
}

// ProgressFunc adapts a plain function to the ProgressObserver interface.
type ProgressFunc func(stage ProgressStage, detail string)

func (f ProgressFunc) OnProgress(stage ProgressStage, detail string) {
	f(stage, detail)
}

// ConfigManager provides access to the loaded application configuration.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetRegistryConfig() *RegistryConfig
	GetNCBIConfig() *NCBIConfig
	Reload() error
	Validate() error
	IsProduction() bool
}
