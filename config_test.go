package memkit_test

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"go.yuchanns.xyz/memkit"
)

func TestDefaultPoolConfig(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	config := memkit.DefaultPoolConfig()
	assert.NoError(config.Validate())

	pool, err := memkit.NewPool(config)
	assert.NoError(err)
	assert.Equal(config, pool.Config())
	assert.Equal(uint(1<<16), pool.MaxAlignment())
}

func TestLoadPoolConfig(t *testing.T) {
	assert := require.New(t)

	t.Setenv("MEMKIT_CHUNK_SIZE", "3000000")
	t.Setenv("MEMKIT_THREAD_CACHE", "8")
	t.Setenv("MEMKIT_MAX_ALIGNMENT", "100")

	config, err := memkit.LoadPoolConfig()
	assert.NoError(err)
	assert.Equal(uint(1<<22), config.ChunkSize)
	assert.Equal(uint(8), config.ThreadCache)
	assert.Equal(uint(128), config.MaxAlignment)
	assert.Equal(memkit.DefaultPoolConfig().DepotCapacity, config.DepotCapacity)
}

func TestLoadPoolConfigMalformed(t *testing.T) {
	t.Setenv("MEMKIT_MAX_CHUNKS", "many")

	_, err := memkit.LoadPoolConfig()
	require.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()
	assert := require.New(t)

	config := memkit.PoolConfig{}
	config.Normalize()
	err := config.Validate()
	assert.Error(err)

	var merr *multierror.Error
	assert.True(errors.As(err, &merr))
	assert.Len(merr.Errors, 5)

	_, err = memkit.NewPool(memkit.PoolConfig{})
	assert.Error(err)
}
