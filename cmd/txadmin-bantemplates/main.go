package main

import (
	"embed"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"sync/atomic"
	"syscall"

	"github.com/Maxos-programming/txAdmin/internal/txadmin"
)

//go:embed txadmin/config
var cfgTemplate embed.FS

const defaultListenAddr = "127.0.0.1:5603"

// Values swapped in by go-releaser at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT, os.Interrupt)

	bind := flag.String("bind", "", "Address the API listens on. Defaults to ListenAddr from the config.")
	configDir := flag.String("config", findConfigPath(), "Path to config root")
	printVersion := flag.Bool("version", false, "Print version and exit")
	logLevel := flag.String("log-level", "info", "Log level")
	logFile := flag.String("log-file", "", "Path to log file")
	init := flag.Bool("init", false, "Populate the config dir with default configuration")
	hashKey := flag.String("hash-key", "", "Print the bcrypt hash of an API key for use as APIKeyHash and exit")

	flag.Parse()

	if *printVersion {
		fmt.Printf("txadmin-bantemplates %s, commit %s, built at %s\n", version, commit, date)
		os.Exit(0)
	}

	if *hashKey != "" {
		hash, err := txadmin.HashAPIKey(*hashKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error hashing key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	logger := txadmin.NewLogger(logLevel, logFile)
	defer func() { _ = logger.Sync() }()

	// It's important for Windows compatibility to use path.Join and not filepath.Join for the config dir initialization.
	// https://github.com/golang/go/issues/44305
	if *init {
		if _, err := os.Stat(path.Join(*configDir, "/config.yaml")); os.IsNotExist(err) {
			if err := os.MkdirAll(*configDir, 0750); err != nil {
				logger.Fatalw("error creating config dir", "err", err)
			}
			if err := copyDir(path.Join("txadmin", "config"), *configDir); err != nil {
				logger.Fatalw("error copying config dir", "err", err)
			}
			logger.Infow("Config dir initialized at " + *configDir)
		} else {
			logger.Infow("Existing config dir found.  Skipping initialization.")
		}
	}

	configPath := path.Join(*configDir, "config.yaml")
	config, err := txadmin.LoadConfig(configPath)
	if err != nil {
		logger.Fatalw("Error loading config", "err", err)
	}

	var current atomic.Pointer[txadmin.Config]
	current.Store(config)

	templates, err := txadmin.NewYAMLTemplateStore(config.TemplatesFile, config.TemplateValidator())
	if err != nil {
		logger.Fatalw("Error loading ban templates", "err", err)
	}

	bans, err := txadmin.NewBanFile(config.BanListFile)
	if err != nil {
		logger.Fatalw("Error loading ban list", "err", err)
	}

	reloadFunc := func() error {
		newConfig, err := txadmin.LoadConfig(configPath)
		if err != nil {
			logger.Errorw("Error reloading config", "err", err)
			return err
		}

		if err := templates.Reconfigure(newConfig.TemplatesFile, newConfig.TemplateValidator()); err != nil {
			logger.Errorw("Error reloading ban templates", "err", err)
			return err
		}

		if err := bans.Reopen(newConfig.BanListFile); err != nil {
			logger.Errorw("Error reloading ban list", "err", err)
			return err
		}

		current.Store(newConfig)

		logger.Infow("Configuration reloaded", "templates", len(templates.List()))
		return nil
	}

	checkKey := func(key string) bool {
		return current.Load().CheckAPIKey(key)
	}

	if config.APIKeyHash == "" {
		logger.Infow("No APIKeyHash configured; write endpoints are disabled")
	}

	srv := txadmin.NewAPIServer(templates, bans, checkKey, reloadFunc, logger)

	go func() {
		for {
			sig := <-sigChan
			switch sig {
			case syscall.SIGHUP:
				logger.Infow("SIGHUP received.  Reloading configuration.")

				_ = reloadFunc()
			default:
				signal.Stop(sigChan)
				_ = logger.Sync()
				os.Exit(0)
			}
		}
	}()

	addr := *bind
	if addr == "" {
		addr = config.ListenAddr
	}
	if addr == "" {
		addr = defaultListenAddr
	}

	logger.Infow("Ban template server started",
		"version", version,
		"name", config.Name,
		"config", *configDir,
		"templates", len(templates.List()),
		"addr", addr,
	)

	if err := srv.Serve(addr); err != nil {
		logger.Fatalw("API server stopped", "err", err)
	}
}

func findConfigPath() string {
	for _, cfgPath := range txadmin.ConfigSearchOrder {
		if info, err := os.Stat(cfgPath); err == nil && info.IsDir() {
			return cfgPath
		}
	}

	return "config"
}

// copyDir copies the embedded directory src into dst.
func copyDir(src, dst string) error {
	if _, err := cfgTemplate.ReadDir(src); err != nil {
		return fmt.Errorf("failed to read source directory %s: %w", src, err)
	}

	return copyDirRecursive(src, dst)
}

func copyDirRecursive(src, dst string) error {
	entries, err := cfgTemplate.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory %s: %w", src, err)
	}

	for _, dirEntry := range entries {
		srcPath := path.Join(src, dirEntry.Name())
		dstPath := path.Join(dst, dirEntry.Name())

		if dirEntry.IsDir() {
			if err := os.MkdirAll(dstPath, 0750); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dstPath, err)
			}
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := cfgTemplate.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	return nil
}
