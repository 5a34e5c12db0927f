// Package config loads the daemon's YAML configuration file: decode
// with KnownFields(true) so a typo'd key fails loudly, fill in defaults
// from internal/defs for anything left zero, then validate.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yuyake44/munge/internal/defs"
)

// Config is munged's daemon configuration. Every field has a default
// (see Default), so a zero-value Config after Load is still usable.
type Config struct {
	Socket  SocketConfig  `yaml:"socket"`
	Key     KeyConfig     `yaml:"key"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Group   GroupConfig   `yaml:"group"`
	Replay  ReplayConfig  `yaml:"replay"`
}

// SocketConfig controls the UNIX domain socket munged listens on.
type SocketConfig struct {
	Path    string `yaml:"path"`
	Backlog int    `yaml:"backlog"`
}

// KeyConfig locates the daemon's shared secret key.
type KeyConfig struct {
	File string `yaml:"file"`
}

// RuntimeConfig controls worker pool sizing and credential TTL bounds.
type RuntimeConfig struct {
	NumThreads int           `yaml:"num_threads"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`
	Foreground bool          `yaml:"foreground"`
	Logfile    string        `yaml:"logfile"`
	Pidfile    string        `yaml:"pidfile"`
}

// GroupConfig locates the passwd and group files the gid/uid membership
// snapshot is built from. RefreshTick is validated but not applied: the
// snapshot is rebuilt every defs.GroupParseTimer.
type GroupConfig struct {
	PasswdFile  string        `yaml:"passwd_file"`
	GroupFile   string        `yaml:"group_file"`
	RefreshTick time.Duration `yaml:"refresh_interval"`
}

// ReplayConfig controls the replay-suppression cache's purge interval.
// MaxEntries is validated but not applied: the cache's ceiling is the
// replay.MaxEntries constant.
type ReplayConfig struct {
	PurgeInterval time.Duration `yaml:"purge_interval"`
	MaxEntries    int           `yaml:"max_entries"`
}

// Default returns a Config populated from internal/defs, with the
// standard /etc/passwd and /etc/group paths and a 1<<20 replay entry cap.
func Default() Config {
	return Config{
		Socket: SocketConfig{
			Path:    defs.SocketName,
			Backlog: defs.SocketBacklog,
		},
		Key: KeyConfig{
			File: defs.DaemonSecretKey,
		},
		Runtime: RuntimeConfig{
			NumThreads: defs.Threads,
			DefaultTTL: time.Duration(defs.DefaultTTL) * time.Second,
			MaxTTL:     time.Duration(defs.MaxTTL) * time.Second,
			Foreground: false,
			Logfile:    defs.DaemonLogfile,
			Pidfile:    defs.DaemonPidfile,
		},
		Group: GroupConfig{
			PasswdFile:  "/etc/passwd",
			GroupFile:   "/etc/group",
			RefreshTick: defs.GroupParseTimer,
		},
		Replay: ReplayConfig{
			PurgeInterval: defs.ReplayPurgeTimer,
			MaxEntries:    1 << 20,
		},
	}
}

// Load reads and parses the YAML file at path, applying defaults for
// any field left zero, then validates the result. A missing file is an
// error; callers that want to run on pure defaults should use Default
// directly instead of calling Load.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Socket.Path == "" {
		c.Socket.Path = d.Socket.Path
	}
	if c.Socket.Backlog == 0 {
		c.Socket.Backlog = d.Socket.Backlog
	}
	if c.Key.File == "" {
		c.Key.File = d.Key.File
	}
	if c.Runtime.NumThreads == 0 {
		c.Runtime.NumThreads = d.Runtime.NumThreads
	}
	if c.Runtime.DefaultTTL == 0 {
		c.Runtime.DefaultTTL = d.Runtime.DefaultTTL
	}
	if c.Runtime.MaxTTL == 0 {
		c.Runtime.MaxTTL = d.Runtime.MaxTTL
	}
	if c.Runtime.Logfile == "" {
		c.Runtime.Logfile = d.Runtime.Logfile
	}
	if c.Runtime.Pidfile == "" {
		c.Runtime.Pidfile = d.Runtime.Pidfile
	}
	if c.Group.PasswdFile == "" {
		c.Group.PasswdFile = d.Group.PasswdFile
	}
	if c.Group.GroupFile == "" {
		c.Group.GroupFile = d.Group.GroupFile
	}
	if c.Group.RefreshTick == 0 {
		c.Group.RefreshTick = d.Group.RefreshTick
	}
	if c.Replay.PurgeInterval == 0 {
		c.Replay.PurgeInterval = d.Replay.PurgeInterval
	}
	if c.Replay.MaxEntries == 0 {
		c.Replay.MaxEntries = d.Replay.MaxEntries
	}
}

// Validate checks the configuration for internally-inconsistent values.
// It does not check filesystem state (key file existence is validated
// at daemon startup, where the permission check also lives).
func (c *Config) Validate() error {
	if c.Socket.Path == "" {
		return fmt.Errorf("config.socket.path is required")
	}
	if c.Socket.Backlog <= 0 {
		return fmt.Errorf("config.socket.backlog must be positive")
	}
	if c.Key.File == "" {
		return fmt.Errorf("config.key.file is required")
	}
	if c.Runtime.NumThreads <= 0 {
		return fmt.Errorf("config.runtime.num_threads must be positive")
	}
	if c.Runtime.DefaultTTL <= 0 {
		return fmt.Errorf("config.runtime.default_ttl must be positive")
	}
	if c.Runtime.MaxTTL < c.Runtime.DefaultTTL {
		return fmt.Errorf("config.runtime.max_ttl must be >= default_ttl")
	}
	if c.Group.RefreshTick <= 0 {
		return fmt.Errorf("config.group.refresh_interval must be positive")
	}
	if c.Replay.PurgeInterval <= 0 {
		return fmt.Errorf("config.replay.purge_interval must be positive")
	}
	if c.Replay.MaxEntries <= 0 {
		return fmt.Errorf("config.replay.max_entries must be positive")
	}
	return nil
}
