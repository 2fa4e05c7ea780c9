package core

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"viewdb/storage"
)

type StoreConfig struct {
	// Path of the badger directory. Empty keeps everything in memory.
	Path         string `yaml:"path"`
	InMemory     bool   `yaml:"in_memory"`
	SyncWrites   bool   `yaml:"sync_writes"`
	CacheEnabled bool   `yaml:"cache_enabled"`
	CacheMaxCost int64  `yaml:"cache_max_cost"`
	QueueSize    int    `yaml:"queue_size"`
	LogLevel     int    `yaml:"log_level"`
	// Nodes are created when a store is opened for the first time.
	Nodes []*OperatorSpec `yaml:"nodes"`
}

func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		InMemory:     true,
		CacheEnabled: true,
		CacheMaxCost: 1 << 28,
		QueueSize:    DefaultQueueSize,
	}
}

func ParseStoreConfig(buf []byte) (*StoreConfig, error) {
	config := DefaultStoreConfig()
	if err := yaml.Unmarshal(buf, config); err != nil {
		return nil, errors.Wrap(err, "parsing store config")
	}
	if config.Path != "" {
		config.InMemory = false
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	for i, spec := range config.Nodes {
		if spec == nil {
			return nil, errors.Newf("node %d: empty spec", i)
		}
		if _, err := spec.Aggregation(); err != nil {
			return nil, errors.Wrapf(err, "node %d", i)
		}
	}
	return config, nil
}

func LoadStoreConfig(path string) (*StoreConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading store config %q", path)
	}
	return ParseStoreConfig(buf)
}

func (config *StoreConfig) badgerConfig() *storage.BadgerBackendConfig {
	return &storage.BadgerBackendConfig{
		Path:       config.Path,
		InMemory:   config.InMemory,
		SyncWrites: config.SyncWrites,
	}
}

// OperatorSpec is the construction-time configuration of one aggregate node.
type OperatorSpec struct {
	Function    string   `yaml:"function"`
	Separator   string   `yaml:"separator,omitempty"`
	Over        int      `yaml:"over"`
	GroupBy     []int    `yaml:"group_by,flow"`
	OverType    DataType `yaml:"over_type"`
	ParentWidth int      `yaml:"parent_width"`
}

func (spec *OperatorSpec) Aggregation() (Aggregation, error) {
	return ParseAggregation(spec.Function, spec.Separator)
}

// Build constructs the operator and validates it against the parent width.
func (spec *OperatorSpec) Build() (Operator, error) {
	agg, err := spec.Aggregation()
	if err != nil {
		return nil, err
	}
	op := agg.Over(spec.Over, spec.GroupBy, spec.OverType)
	if err := op.Setup(spec.ParentWidth); err != nil {
		return nil, err
	}
	return op, nil
}
