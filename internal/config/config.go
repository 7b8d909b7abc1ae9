package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds the global configuration for the split engine CLI
type Config struct {
	// Input settings
	SourceFile    string // offline .osm XML snapshot (empty = use PostgreSQL)
	FlatNodesFile string // flat node coordinate file consulted by the store
	RulesFile     string // optional Lua tag cleanup rules

	// Output settings
	OutputFile string // osmChange output path (empty = stdout)

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Processing settings
	Workers int // concurrent split operations in batch mode

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging (0 = off)
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBPassword:      "",
		DBSchema:        "public",
		Workers:         runtime.NumCPU(),
		Verbose:         false,
		LogFile:         "",
		MetricsInterval: 0,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.SourceFile == "" && c.DBName == "" {
		return fmt.Errorf("either a source file or a database name is required")
	}
	return nil
}
