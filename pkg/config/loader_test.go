package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/config"
)

type defaultsConfig struct {
	Name  string `env:"CONFIG_TEST_DEFAULT_NAME" envDefault:"entitlementd"`
	Limit int    `env:"CONFIG_TEST_DEFAULT_LIMIT" envDefault:"10"`
}

type cachedConfig struct {
	Value string `env:"CONFIG_TEST_CACHED"`
}

type requiredConfig struct {
	Value string `env:"CONFIG_TEST_REQUIRED,required"`
}

type fileConfig struct {
	FileValue  string `env:"CONFIG_TEST_FILE_VALUE"`
	Priority   string `env:"CONFIG_TEST_PRIORITY"`
	SecondOnly string `env:"CONFIG_TEST_SECOND_ONLY"`
}

// Tests in this package mutate the process environment and the shared
// cache, so they do not run in parallel.

func TestLoad_Defaults(t *testing.T) {
	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "entitlementd", cfg.Name)
	assert.Equal(t, 10, cfg.Limit)
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("CONFIG_TEST_CACHED", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CONFIG_TEST_CACHED", "second")
	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)

	require.NoError(t, config.ForceReload(&second))
	assert.Equal(t, "second", second.Value)
}

func TestLoad_RequiredRetriesAfterFailure(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrParsingConfig)

	t.Setenv("CONFIG_TEST_REQUIRED", "present")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "present", cfg.Value)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *defaultsConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestMustLoad(t *testing.T) {
	assert.Panics(t, func() {
		type missing struct {
			V string `env:"CONFIG_TEST_NEVER_SET,required"`
		}
		var cfg missing
		config.MustLoad(&cfg)
	})
}

func TestLoadEnv(t *testing.T) {
	for _, k := range []string{"CONFIG_TEST_FILE_VALUE", "CONFIG_TEST_PRIORITY", "CONFIG_TEST_SECOND_ONLY"} {
		require.NoError(t, os.Unsetenv(k))
	}
	t.Cleanup(func() {
		for _, k := range []string{"CONFIG_TEST_FILE_VALUE", "CONFIG_TEST_PRIORITY", "CONFIG_TEST_SECOND_ONLY"} {
			_ = os.Unsetenv(k)
		}
		config.ResetCache()
	})

	require.NoError(t, config.LoadEnv("testdata/.env.first", "testdata/.env.second"))
	config.ResetCache()

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from_file", cfg.FileValue)
	assert.Equal(t, "first_file", cfg.Priority)
	assert.Equal(t, "second", cfg.SecondOnly)

	assert.ErrorIs(t, config.LoadEnv("testdata/missing.env"), config.ErrLoadingEnvFile)
	assert.Panics(t, func() { config.MustLoadEnv("testdata/missing.env") })
}
