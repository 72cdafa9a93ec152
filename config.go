package memkit

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultChunkSize     = 1 << 20
	defaultDepotCapacity = 4096
	defaultThreadCache   = 256
	defaultMaxAlignment  = 1 << 16
	defaultMaxChunks     = 4096

	minChunkSize       = 2 * (maxClassSize + headerSize)
	poolAlignment      = headerSize
	maxPoolAlignment   = 1 << 24
	envPrefix          = "memkit"
	minDepotCapacity   = 2
	minThreadCacheSize = 1
)

// PoolConfig tunes a Pool. Zero values are not defaults, start from
// DefaultPoolConfig.
type PoolConfig struct {
	// ChunkSize is the size of each page-allocator chunk small blocks are
	// carved from. Rounded up to a power of two.
	ChunkSize uint `envconfig:"CHUNK_SIZE"`
	// MaxChunks caps how many chunks the pool maps.
	MaxChunks int `envconfig:"MAX_CHUNKS"`
	// DepotCapacity is the number of free blocks per size class the shared
	// depot keeps in its lock-free ring before spilling to a list.
	// Rounded up to a power of two.
	DepotCapacity uint `envconfig:"DEPOT_CAPACITY"`
	// ThreadCache is the number of free blocks per size class a thread
	// keeps before handing half of them to the depot.
	ThreadCache uint `envconfig:"THREAD_CACHE"`
	// MaxAlignment is the largest alignment AlignedAlloc accepts.
	// Rounded up to a power of two.
	MaxAlignment uint `envconfig:"MAX_ALIGNMENT"`
}

// DefaultPoolConfig returns the built-in settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ChunkSize:     defaultChunkSize,
		MaxChunks:     defaultMaxChunks,
		DepotCapacity: defaultDepotCapacity,
		ThreadCache:   defaultThreadCache,
		MaxAlignment:  defaultMaxAlignment,
	}
}

// LoadPoolConfig starts from the defaults and applies MEMKIT_* environment
// overrides, e.g. MEMKIT_CHUNK_SIZE.
func LoadPoolConfig() (PoolConfig, error) {
	config := DefaultPoolConfig()
	if err := envconfig.Process(envPrefix, &config); err != nil {
		return config, fmt.Errorf("load pool config: %w", err)
	}
	config.Normalize()
	return config, config.Validate()
}

// Normalize rounds the power-of-two settings up.
func (config *PoolConfig) Normalize() {
	config.ChunkSize = alignPow2(config.ChunkSize)
	config.DepotCapacity = alignPow2(config.DepotCapacity)
	config.MaxAlignment = alignPow2(config.MaxAlignment)
}

// Validate reports every setting that is out of range.
func (config *PoolConfig) Validate() error {
	var result *multierror.Error
	if config.ChunkSize < minChunkSize || config.ChunkSize > maxChunkSize {
		result = multierror.Append(result, fmt.Errorf("chunk size %d out of range [%d, %d]", config.ChunkSize, minChunkSize, maxChunkSize))
	}
	if config.MaxChunks <= 0 {
		result = multierror.Append(result, fmt.Errorf("max chunks should be positive, got %d", config.MaxChunks))
	}
	if config.DepotCapacity < minDepotCapacity {
		result = multierror.Append(result, fmt.Errorf("depot capacity should be at least %d, got %d", minDepotCapacity, config.DepotCapacity))
	}
	if config.ThreadCache < minThreadCacheSize {
		result = multierror.Append(result, fmt.Errorf("thread cache should be at least %d, got %d", minThreadCacheSize, config.ThreadCache))
	}
	if !isPow2(config.MaxAlignment) || config.MaxAlignment < poolAlignment || config.MaxAlignment > maxPoolAlignment {
		result = multierror.Append(result, fmt.Errorf("max alignment %d should be a power of two in [%d, %d]", config.MaxAlignment, poolAlignment, maxPoolAlignment))
	}
	return result.ErrorOrNil()
}
