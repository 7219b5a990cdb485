package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout of a config file.  Pointer fields tell
// "absent" apart from the zero value so only keys that are present
// override.
//
//	url: ws://executor.lan:8080/websocket
//	retries: 3
//	reply_timeout: 30s
//	listen:
//	  port: 8080
//	  shell: /bin/bash
//	ssh:
//	  tunnel: ops@bastion
//	  agent: true
type fileConfig struct {
	URL          *string        `yaml:"url"`
	Host         *string        `yaml:"host"`
	Port         *int           `yaml:"port"`
	Path         *string        `yaml:"path"`
	Secure       *bool          `yaml:"secure"`
	Timeout      *time.Duration `yaml:"timeout"`
	Retries      *int           `yaml:"retries"`
	ReplyTimeout *time.Duration `yaml:"reply_timeout"`
	Greeting     *string        `yaml:"greeting"`
	Stats        *bool          `yaml:"stats"`
	Verbose      *int           `yaml:"verbose"`

	Listen *struct {
		Port           *int           `yaml:"port"`
		BindAddress    *string        `yaml:"bind_address"`
		KeepOpen       *bool          `yaml:"keep_open"`
		Shell          *string        `yaml:"shell"`
		Echo           *bool          `yaml:"echo"`
		CommandTimeout *time.Duration `yaml:"command_timeout"`
	} `yaml:"listen"`

	SSH *struct {
		Tunnel            *string        `yaml:"tunnel"`
		ReverseTunnel     *string        `yaml:"reverse_tunnel"`
		RemotePort        *int           `yaml:"remote_port"`
		RemoteBindAddress *string        `yaml:"remote_bind_address"`
		Key               *string        `yaml:"key"`
		Password          *bool          `yaml:"password"`
		Agent             *bool          `yaml:"agent"`
		StrictHostKey     *bool          `yaml:"strict_hostkey"`
		KnownHosts        *string        `yaml:"known_hosts"`
		KeepAlive         *time.Duration `yaml:"keep_alive"`
	} `yaml:"ssh"`
}

// LoadFile overlays the YAML file at path onto cfg.  Unknown keys are
// rejected so typos do not go unnoticed.  An explicitly named file that
// does not exist is an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	fc.apply(cfg)
	cfg.ConfigFile = path
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	set(&cfg.URL, fc.URL)
	set(&cfg.Host, fc.Host)
	set(&cfg.Port, fc.Port)
	set(&cfg.Path, fc.Path)
	set(&cfg.Secure, fc.Secure)
	set(&cfg.Timeout, fc.Timeout)
	set(&cfg.Retries, fc.Retries)
	set(&cfg.ReplyTimeout, fc.ReplyTimeout)
	set(&cfg.Greeting, fc.Greeting)
	set(&cfg.Stats, fc.Stats)
	set(&cfg.Verbose, fc.Verbose)

	if l := fc.Listen; l != nil {
		set(&cfg.LocalPort, l.Port)
		set(&cfg.BindAddress, l.BindAddress)
		set(&cfg.KeepOpen, l.KeepOpen)
		set(&cfg.Shell, l.Shell)
		set(&cfg.Echo, l.Echo)
		set(&cfg.CommandTimeout, l.CommandTimeout)
	}

	if s := fc.SSH; s != nil {
		set(&cfg.TunnelSpec, s.Tunnel)
		set(&cfg.ReverseSpec, s.ReverseTunnel)
		set(&cfg.RemotePort, s.RemotePort)
		set(&cfg.RemoteBindAddress, s.RemoteBindAddress)
		set(&cfg.SSHKeyPath, s.Key)
		set(&cfg.SSHPassword, s.Password)
		set(&cfg.UseSSHAgent, s.Agent)
		set(&cfg.StrictHostKey, s.StrictHostKey)
		set(&cfg.KnownHostsPath, s.KnownHosts)
		set(&cfg.KeepAliveInterval, s.KeepAlive)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
