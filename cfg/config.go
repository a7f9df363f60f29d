// Package cfg defines the mount daemon's typed configuration, bound to
// command-line flags via pflag, following the teacher's Config/BindFlags
// generation pattern. The mapstructure tags name each field's key; this
// package does not itself read environment variables or config files.
package cfg

import (
	"github.com/spf13/pflag"
)

// Config is the full set of mount-time and unmount-time options
// (SPEC_FULL.md §6.2).
type Config struct {
	// ReadWrite enables the staging store and commit pipeline; a
	// false value mounts the image read-only (§6 mount-time options).
	ReadWrite bool `mapstructure:"read-write"`

	// Debug enables verbose tracing and keeps the FUSE mount in the
	// foreground.
	Debug bool `mapstructure:"debug"`

	// StreamInterface controls how ADS are addressed in paths.
	StreamInterface StreamInterface `mapstructure:"stream-interface"`

	// ImageIndex selects which image inside the archive to mount.
	ImageIndex int `mapstructure:"image-index"`

	// StagingBaseDir is the directory under which the randomly-named
	// staging directory is created; defaults to the process's working
	// directory per §3.
	StagingBaseDir string `mapstructure:"staging-base-dir"`

	// LogFile routes structured logging through a rotating sink
	// instead of stderr; empty means stderr.
	LogFile string `mapstructure:"log-file"`

	// LogFormat selects json or text log output.
	LogFormat LogFormat `mapstructure:"log-format"`

	// CheckIntegrityOnCommit requests the archive overwriter verify
	// the integrity table after rewriting (§6 unmount-time options).
	CheckIntegrityOnCommit bool `mapstructure:"check-integrity"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		ReadWrite:       false,
		Debug:           false,
		StreamInterface: StreamInterface{},
		ImageIndex:      1,
		StagingBaseDir:  ".",
		LogFormat:       LogFormat{},
	}
}

// BindFlags registers every config field on fs with its default value
// and help text, mirroring the teacher's Config.BindFlags generation.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&c.ReadWrite, "read-write", c.ReadWrite,
		"Mount read-write, enabling the staging store and commit-on-unmount pipeline.")
	fs.BoolVar(&c.Debug, "debug", c.Debug,
		"Enable verbose tracing and run the FUSE mount in the foreground.")
	fs.Var(&c.StreamInterface, "stream-interface",
		"How alternate data streams are addressed: none, xattr, or windows.")
	fs.IntVar(&c.ImageIndex, "image-index", c.ImageIndex,
		"Index of the image inside the archive to mount.")
	fs.StringVar(&c.StagingBaseDir, "staging-base-dir", c.StagingBaseDir,
		"Directory under which the staging directory is created.")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile,
		"Path to a rotating log file; empty logs to stderr.")
	fs.Var(&c.LogFormat, "log-format",
		"Log output format: json or text.")
	fs.BoolVar(&c.CheckIntegrityOnCommit, "check-integrity", c.CheckIntegrityOnCommit,
		"Verify the archive's integrity table after a commit rewrite.")
}
