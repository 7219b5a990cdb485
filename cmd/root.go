// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"webterm/config"
	"webterm/internal/core"
	"webterm/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X webterm/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate webterm mode.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout)
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	// ── file + environment ───────────────────────────────────────
	// Flag defaults are taken from cfg after these layers so that the
	// command line always wins.
	cfg := config.New()
	if path := configPath(args); path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("webterm", flag.ContinueOnError)

	// ── mode ─────────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Run the executor (listen mode)")
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Executor listen port")
	fs.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "Executor listen address")
	fs.BoolVarP(&cfg.KeepOpen, "keep-open", "k", cfg.KeepOpen, "Serve sessions until interrupted (with -l)")

	// ── connection ───────────────────────────────────────────────
	fs.StringVar(&cfg.Path, "path", cfg.Path, "WebSocket path")
	fs.BoolVar(&cfg.Secure, "secure", cfg.Secure, "Use wss:// when building the URL from host and port")
	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Dial attempts while connecting")

	// ── session ──────────────────────────────────────────────────
	fs.DurationVar(&cfg.ReplyTimeout, "reply-timeout", cfg.ReplyTimeout, "Re-issue the prompt after this long without a reply (0 = never)")
	fs.StringVar(&cfg.Greeting, "greeting", cfg.Greeting, "Banner written when the session starts")

	// ── execution (listen mode) ──────────────────────────────────
	fs.BoolVarP(&cfg.Echo, "echo", "e", cfg.Echo, "Reply with each line instead of running it")
	fs.StringVarP(&cfg.Shell, "shell", "c", cfg.Shell, "Shell that runs each line (default /bin/sh)")
	fs.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "Per-command time limit")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Connect through SSH gateway [user@]host[:port]")
	fs.StringVarP(&cfg.ReverseSpec, "reverse-tunnel", "R", cfg.ReverseSpec, "Expose the executor on SSH gateway [user@]host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Gateway port to listen on (with -R)")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind-address", cfg.RemoteBindAddress, "Gateway bind address (with -R)")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "SSH keepalive interval (0 = off)")

	// ── output ───────────────────────────────────────────────────
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print session metrics as JSON on exit")
	fs.String("config", cfg.ConfigFile, "YAML config file (default $WEBTERM_CONFIG)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(out, "webterm %s\n", version)
		return nil
	}

	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}

	// ── positional arguments ─────────────────────────────────────
	if cfg.Listen {
		if fs.NArg() > 0 {
			return fmt.Errorf("listen mode takes no arguments (got %q)", strings.Join(fs.Args(), " "))
		}
	} else if err := cfg.ParseTarget(fs.Args()); err != nil {
		return err
	}

	// ── gateway specs + validate ─────────────────────────────────
	if err := cfg.ResolveSpecs(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		printSummary(out, cfg)
		return nil
	}

	// ── build + run ──────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.ConfigFile != "" {
		logger.Verbose("loaded %s", cfg.ConfigFile)
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config ahead of the full parse, falling back to
// WEBTERM_CONFIG.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return config.ConfigFileFromEnv()
}

func printSummary(w io.Writer, cfg *config.Config) {
	if cfg.Listen {
		executor := "shell"
		if cfg.Echo {
			executor = "echo"
		} else if cfg.Shell != "" {
			executor = cfg.Shell
		}
		fmt.Fprintf(w, "mode:      listen\n")
		fmt.Fprintf(w, "address:   %s%s\n", util.FormatAddr(cfg.BindAddress, cfg.LocalPort), cfg.Path)
		fmt.Fprintf(w, "executor:  %s (timeout %s)\n", executor, cfg.CommandTimeout)
		fmt.Fprintf(w, "keep-open: %v\n", cfg.KeepOpen)
		if cfg.ReverseEnabled {
			fmt.Fprintf(w, "gateway:   %s → %s\n",
				util.FormatAddr(cfg.ReverseHost, cfg.ReversePort),
				util.FormatAddr(cfg.RemoteBindAddress, cfg.RemotePort))
		}
		return
	}
	fmt.Fprintf(w, "mode:      connect\n")
	fmt.Fprintf(w, "target:    %s\n", cfg.TargetURL())
	fmt.Fprintf(w, "timeout:   %s (%d attempt(s))\n", cfg.Timeout, cfg.Retries)
	if cfg.ReplyTimeout > 0 {
		fmt.Fprintf(w, "reply:     %s\n", cfg.ReplyTimeout)
	}
	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "tunnel:    %s\n", util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `webterm – remote command terminal over WebSocket v%s

An interactive line editor whose lines run on a remote executor.

Usage:
  webterm [options] [ws://host:port/path]      Connect
  webterm [options] <host> [port]              Connect
  webterm -l -p <port> [options]               Run the executor
  webterm -T user@gateway <host> <port>        Connect through SSH

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  webterm                                      ws://localhost:8080/websocket
  webterm executor.lan 9000                    Connect to ws://executor.lan:9000/websocket
  webterm -l -p 8080 -k                        Serve sessions on :8080
  webterm -l -p 8080 -R ops@gw --remote-port 9000
                                               Expose the executor on a gateway
  webterm -T admin@bastion 10.0.0.5 8080       Tunnel through a bastion

Press Ctrl+] then q to leave an interactive session.
`)
}
