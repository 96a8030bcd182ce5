package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/Maxos-programming/txAdmin/internal/txadmin"
)

// Values swapped in by go-releaser at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)

	configDir := flag.String("config", defaultConfigPath(), "Path to config root")
	printVersion := flag.Bool("version", false, "print version and exit")
	logLevel := flag.String("log-level", "info", "Log level")
	logFile := flag.String("log-file", "", "output logs to file")

	flag.Parse()

	if *printVersion {
		fmt.Printf("txadmin-bantemplates-client %s, commit %s\n", version, commit)
		os.Exit(0)
	}

	// The terminal belongs to the UI, so logs only go to the optional file.
	logger := txadmin.NewFileLogger(logLevel, logFile)
	defer func() { _ = logger.Sync() }()

	config, err := txadmin.LoadConfig(path.Join(*configDir, "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	templates, err := txadmin.NewYAMLTemplateStore(config.TemplatesFile, config.TemplateValidator())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ban templates: %v\n", err)
		os.Exit(1)
	}

	bans, err := txadmin.NewBanFile(config.BanListFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ban list: %v\n", err)
		os.Exit(1)
	}

	logger.Infow("Started ban form", "version", version, "templates", len(templates.List()))

	ui := txadmin.NewUI(templates, bans, config.Name, logger)

	go func() {
		sig := <-sigChan
		logger.Infow("Stopping client", "signal", sig.String())
		ui.App.Stop()
	}()

	if err := ui.Start(); err != nil {
		logger.Errorw("UI stopped", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	for _, cfgPath := range txadmin.ConfigSearchOrder {
		if _, err := os.Stat(cfgPath); err == nil {
			return cfgPath
		}
	}

	return "config"
}
