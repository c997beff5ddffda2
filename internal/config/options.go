package config

import (
	"time"
)

// Version is the asyncfetch release version
const Version = "0.1.0"

// Options is the immutable, fully merged configuration for one command run.
// It is built once from the config file and command-line flags and then
// passed by value into each operation.
type Options struct {
	Marker       string
	RootDir      string
	CutDirs      int
	RejectPrefix string
	StatusFile   string

	Force   bool
	DryRun  bool
	Verbose bool

	// UserOverride and StreamOverride replace the derived path segments
	UserOverride   string
	StreamOverride string

	Workers int

	SkipTLSVerify      bool
	Timeout            time.Duration
	MinRequestInterval time.Duration
	UserAgent          string

	DatabasePath string

	// BaseURL and User address the data service for request building
	BaseURL string
	User    string
}

// Overrides holds command-line values that take precedence over the file.
// Nil pointers leave the configured value alone.
type Overrides struct {
	RootDir        *string
	Insecure       *bool
	Workers        *int
	DatabasePath   *string
	Timeout        *time.Duration
	Force          bool
	DryRun         bool
	Verbose        bool
	UserOverride   string
	StreamOverride string
	BaseURL        string
	User           string
}

// Options merges the configuration with command-line overrides
func (c *Config) Options(o Overrides) Options {
	opts := Options{
		Marker:             c.Extract.Marker,
		RootDir:            c.Mirror.RootDir,
		CutDirs:            c.Mirror.CutDirs,
		RejectPrefix:       c.Mirror.RejectPrefix,
		StatusFile:         c.Status.FileName,
		Workers:            c.Workers,
		SkipTLSVerify:      c.HTTP.SkipTLSVerify,
		Timeout:            c.HTTP.GetTimeout(),
		MinRequestInterval: c.HTTP.GetMinRequestInterval(),
		UserAgent:          c.HTTP.UserAgent,
		DatabasePath:       c.Database.Path,
		BaseURL:            c.UFrame.BaseURL,
		User:               c.UFrame.User,
		Force:              o.Force,
		DryRun:             o.DryRun,
		Verbose:            o.Verbose,
		UserOverride:       o.UserOverride,
		StreamOverride:     o.StreamOverride,
	}

	if o.RootDir != nil {
		opts.RootDir = *o.RootDir
	}
	if o.Insecure != nil {
		opts.SkipTLSVerify = *o.Insecure
	}
	if o.Workers != nil && *o.Workers > 0 {
		opts.Workers = *o.Workers
	}
	if o.DatabasePath != nil {
		opts.DatabasePath = *o.DatabasePath
	}
	if o.Timeout != nil {
		opts.Timeout = *o.Timeout
	}
	if o.BaseURL != "" {
		opts.BaseURL = o.BaseURL
	}
	if o.User != "" {
		opts.User = o.User
	}

	return opts
}
