package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/config"
)

type fileConfig struct {
	String  string        `env:"ASTRA_TEST_STRING"`
	List    []string      `env:"ASTRA_TEST_LIST" envSeparator:","`
	Timeout time.Duration `env:"ASTRA_TEST_TIMEOUT" envDefault:"1s"`
}

type requiredConfig struct {
	Value string `env:"ASTRA_TEST_REQUIRED,required"`
}

type defaultsConfig struct {
	Driver string `env:"ASTRA_TEST_DRIVER" envDefault:"memory"`
}

// Tests in this file share the process environment and the cache, so they
// do not run in parallel.

func TestLoad_Defaults(t *testing.T) {
	config.Reset()

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "memory", cfg.Driver)
}

func TestLoad_Cached(t *testing.T) {
	config.Reset()
	t.Setenv("ASTRA_TEST_DRIVER", "redis")

	var first defaultsConfig
	require.NoError(t, config.Load(&first))
	assert.Equal(t, "redis", first.Driver)

	t.Setenv("ASTRA_TEST_DRIVER", "postgres")
	var second defaultsConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "redis", second.Driver)

	config.Reset()
	var third defaultsConfig
	require.NoError(t, config.Load(&third))
	assert.Equal(t, "postgres", third.Driver)
}

func TestLoad_Required(t *testing.T) {
	config.Reset()

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad(&cfg) })

	t.Setenv("ASTRA_TEST_REQUIRED", "ok")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "ok", cfg.Value)
}

func TestLoad_NilPointer(t *testing.T) {
	assert.ErrorIs(t, config.Load[fileConfig](nil), config.ErrNilPointer)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ASTRA_TEST_STRING", "")
	t.Setenv("ASTRA_TEST_LIST", "")
	t.Setenv("ASTRA_TEST_TIMEOUT", "")

	require.NoError(t, config.LoadEnv("testdata/.env.test", "testdata/.env.override"))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "override", cfg.String)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.List)
	assert.Equal(t, 3*time.Second, cfg.Timeout)

	err := config.LoadEnv("testdata/missing.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}
