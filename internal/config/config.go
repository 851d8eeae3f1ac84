// Package config loads engine and harness settings from KAIO_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	kaio "github.com/ehrlich-b/go-kaio"
	"github.com/ehrlich-b/go-kaio/internal/constants"
	"github.com/ehrlich-b/go-kaio/internal/logging"
)

// Environment variable names
const (
	EnvDepth              = "KAIO_DEPTH"
	EnvBackend            = "KAIO_BACKEND"
	EnvUserspaceReap      = "KAIO_USERSPACE_REAP"
	EnvHighPriority       = "KAIO_HIPRI"
	EnvUserIOCBs          = "KAIO_USER_IOCBS"
	EnvFixedBuffers       = "KAIO_FIXED_BUFS"
	EnvBlockSize          = "KAIO_BLOCK_SIZE"
	EnvMaxBlockSize       = "KAIO_MAX_BLOCK_SIZE"
	EnvBatchCompleteMin   = "KAIO_BATCH_COMPLETE_MIN"
	EnvBackgroundTeardown = "KAIO_BACKGROUND_TEARDOWN"
	EnvDirect             = "KAIO_DIRECT"
	EnvLogLevel           = "KAIO_LOG_LEVEL"
	EnvLogFormat          = "KAIO_LOG_FORMAT"
)

// Config is the flat set of tunables a harness exposes
type Config struct {
	Depth              int
	Backend            string
	UserspaceReap      bool
	HighPriority       bool
	UserIOCBs          bool
	FixedBuffers       bool
	BlockSize          int
	MaxBlockSize       int
	BatchCompleteMin   int
	BackgroundTeardown bool
	Direct             bool // open targets with O_DIRECT
	LogLevel           string
	LogFormat          string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Depth:         constants.DefaultDepth,
		Backend:       string(kaio.BackendLibaio),
		UserspaceReap: true,
		BlockSize:     constants.DefaultBlockSize,
		MaxBlockSize:  constants.DefaultMaxBlockSize,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads the given .env files (".env" when none are named) into the
// process environment without overriding variables already set, then
// parses the environment. Missing files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv overlays KAIO_* variables on the defaults
func FromEnv() (Config, error) {
	c := Default()
	var errs []error

	intVar := func(name string, dst *int) {
		s, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
	boolVar := func(name string, dst *bool) {
		s, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
	strVar := func(name string, dst *string) {
		if s, ok := os.LookupEnv(name); ok {
			*dst = strings.ToLower(strings.TrimSpace(s))
		}
	}

	intVar(EnvDepth, &c.Depth)
	strVar(EnvBackend, &c.Backend)
	boolVar(EnvUserspaceReap, &c.UserspaceReap)
	boolVar(EnvHighPriority, &c.HighPriority)
	boolVar(EnvUserIOCBs, &c.UserIOCBs)
	boolVar(EnvFixedBuffers, &c.FixedBuffers)
	intVar(EnvBlockSize, &c.BlockSize)
	intVar(EnvMaxBlockSize, &c.MaxBlockSize)
	intVar(EnvBatchCompleteMin, &c.BatchCompleteMin)
	boolVar(EnvBackgroundTeardown, &c.BackgroundTeardown)
	boolVar(EnvDirect, &c.Direct)
	strVar(EnvLogLevel, &c.LogLevel)
	strVar(EnvLogFormat, &c.LogFormat)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Validate checks the settings that the engine does not check itself
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.MaxBlockSize < c.BlockSize {
		return fmt.Errorf("max block size %d is below block size %d", c.MaxBlockSize, c.BlockSize)
	}
	if c.Direct && c.BlockSize%constants.BufferAlignment != 0 {
		return fmt.Errorf("direct I/O needs a block size aligned to %d, got %d", constants.BufferAlignment, c.BlockSize)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Options converts the settings to engine options
func (c Config) Options() kaio.Options {
	opts := kaio.DefaultOptions()
	opts.Depth = c.Depth
	opts.Backend = kaio.Backend(c.Backend)
	opts.UserspaceReap = c.UserspaceReap
	opts.HighPriority = c.HighPriority
	opts.UserOwnedDescriptors = c.UserIOCBs || c.FixedBuffers
	opts.FixedBuffers = c.FixedBuffers
	opts.MaxBlockSize = c.MaxBlockSize
	opts.BatchCompleteMin = c.BatchCompleteMin
	opts.BackgroundTeardown = c.BackgroundTeardown
	return opts
}

// Logging returns the logger configuration
func (c Config) Logging() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.LogLevel)
	lc.Format = c.LogFormat
	return lc
}
