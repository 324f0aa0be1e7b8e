package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitepress/internal/config"
	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/steps"
	"git.home.luguber.info/inful/sitepress/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"sitepress.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Purge bool `help:"Discard all build products and state before building"`
	} `cmd:"" help:"Build the site incrementally"`

	Watch struct {
		Serve bool `help:"Also serve the output over HTTP while watching"`
	} `cmd:"" help:"Rebuild automatically when inputs change"`

	Preview struct {
		Addr string `help:"Listen address (overrides configuration)"`
	} `cmd:"" help:"Serve the built output over HTTP"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Steps struct{} `cmd:"" help:"List the available processing steps"`

	History struct {
		Limit int `help:"Number of runs to show" default:"20"`
	} `cmd:"" help:"Show recent build runs"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			fail("Init failed", err)
		}
		return
	case "steps":
		for _, name := range steps.Available() {
			fmt.Println(name)
		}
		return
	case "version":
		fmt.Printf("sitepress %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fail("Failed to load configuration", err)
	}
	logger := setupLogging(cfg)

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch ctx.Command() {
	case "build":
		err = runBuild(runCtx, cfg, logger, CLI.Build.Purge)
	case "watch":
		err = runWatch(runCtx, cfg, logger, CLI.Watch.Serve)
	case "preview":
		err = runPreview(runCtx, cfg, logger, CLI.Preview.Addr)
	case "history":
		err = runHistory(runCtx, cfg, CLI.History.Limit)
	}
	if err != nil {
		fail("Command failed", err)
	}
}

func setupLogging(cfg *config.Config) *slog.Logger {
	lc := cfg.Logging
	if CLI.Verbose {
		lc.Level = string(config.LogLevelDebug)
	}
	return lc.SetupLogger()
}

func fail(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(exitCode(err))
}

// exitCode maps fatal pipeline errors to a distinct status so wrappers can
// tell misconfiguration from transient failures.
func exitCode(err error) int {
	if builderr.IsFatal(err) {
		return 2
	}
	return 1
}
