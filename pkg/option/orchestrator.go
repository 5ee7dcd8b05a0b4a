package option

import (
	"github.com/JeckAsChristopher/MyISO/pkg/fskind"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
)

// OrchestratorOptions configures one end-to-end run of the Strategy
// Selector & Orchestrator (C8).
type OrchestratorOptions struct {
	FastMode          bool
	Persistence       bool
	PersistenceSizeMB uint64
	PersistenceFS     fskind.Kind
	PersistenceLabel  string
	Logger            *logging.Logger
}

type OrchestratorOption func(*OrchestratorOptions)

// WithFastMode selects zero-copy burning over the buffered path.
func WithFastMode(fast bool) OrchestratorOption {
	return func(o *OrchestratorOptions) {
		o.FastMode = fast
	}
}

// WithPersistence requests a persistence partition/file of sizeMB,
// formatted as fs.
func WithPersistence(sizeMB uint64, fs fskind.Kind, label string) OrchestratorOption {
	return func(o *OrchestratorOptions) {
		o.Persistence = true
		o.PersistenceSizeMB = sizeMB
		o.PersistenceFS = fs
		o.PersistenceLabel = label
	}
}

// DefaultOrchestratorOptions mirrors BurnConfig's defaults: no
// persistence, buffered burning, ext4 persistence filesystem.
func DefaultOrchestratorOptions() OrchestratorOptions {
	return OrchestratorOptions{
		PersistenceFS:    fskind.EXT4,
		PersistenceLabel: "persistence",
	}
}
