// Package config loads connection profiles for the pgactor demo CLI from an
// INI file, the same way the original proxy loaded its backend pools.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds every named connection profile plus which one is the
// default, mirroring the original's "[protocol.name]" section convention.
type Config struct {
	Default  string
	Profiles map[string]Profile
}

// Profile is one [connection.name] section: everything postgres.ConnectOptions
// needs to dial and authenticate, plus an optional metrics listen address.
type Profile struct {
	Hostname    string
	Port        int
	Username    string
	Password    string
	Database    string
	DialTimeout time.Duration
	MetricsAddr string
}

// Load reads an INI file shaped like:
//
//	default = main
//
//	[connection.main]
//	hostname = localhost
//	port = 5432
//	username = postgres
//	password =
//	database = postgres
//	dial_timeout = 5s
//	metrics_listen = :9090
//
// Environment variables PGACTOR_HOSTNAME/PGACTOR_PORT/PGACTOR_PASSWORD
// override the default profile's corresponding fields, the same override
// convention the original proxy used for its listen addresses.
func Load(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Default:  cfg.Section("").Key("default").MustString("main"),
		Profiles: make(map[string]Profile),
	}

	const prefix = "connection."
	for _, s := range cfg.Sections() {
		name := s.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		profileName := name[len(prefix):]

		timeout, err := time.ParseDuration(s.Key("dial_timeout").MustString("5s"))
		if err != nil {
			return nil, fmt.Errorf("config: profile %q: %w", profileName, err)
		}

		config.Profiles[profileName] = Profile{
			Hostname:    s.Key("hostname").MustString("localhost"),
			Port:        s.Key("port").MustInt(5432),
			Username:    s.Key("username").MustString("postgres"),
			Password:    s.Key("password").String(),
			Database:    s.Key("database").MustString("postgres"),
			DialTimeout: timeout,
			MetricsAddr: s.Key("metrics_listen").String(),
		}
	}

	if _, ok := config.Profiles[config.Default]; !ok {
		config.Profiles[config.Default] = Profile{
			Hostname:    "localhost",
			Port:        5432,
			Username:    "postgres",
			Database:    "postgres",
			DialTimeout: 5 * time.Second,
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	p := config.Profiles[config.Default]
	if v := os.Getenv("PGACTOR_HOSTNAME"); v != "" {
		p.Hostname = v
	}
	if v := os.Getenv("PGACTOR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Port = n
		}
	}
	if v := os.Getenv("PGACTOR_PASSWORD"); v != "" {
		p.Password = v
	}
	config.Profiles[config.Default] = p
}
