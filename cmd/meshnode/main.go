// Command meshnode is a reference mesh node implementation.
//
// It wires the node lifecycle controller to a durable tag store and the
// mDNS simulation bearer, and exposes an interactive console for driving
// provisioning and connection events by hand.
//
// Usage:
//
//	meshnode [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-store string      Tag store file path (default "meshnode.tags")
//	-memory            Use a volatile in-memory store instead of a file
//	-instance string   mDNS instance name (default "meshnode")
//	-port int          Advertised port (default 8443)
//	-iface string      Restrict mDNS to one network interface
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-no-mdns           Disable the mDNS bearer
//	-interactive       Run the interactive console (default true)
//
// Examples:
//
//	# Start a node with durable state in ./meshnode.tags
//	meshnode
//
//	# Volatile node with debug logging
//	meshnode -memory -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/meshnode-protocol/meshnode-go/cmd/meshnode/interactive"
	"github.com/meshnode-protocol/meshnode-go/pkg/bearer"
	"github.com/meshnode-protocol/meshnode-go/pkg/node"
	"github.com/meshnode-protocol/meshnode-go/pkg/tagstore"
)

// Config holds the node configuration. Fields map to both flags and the
// YAML config file; flags set explicitly on the command line win.
type Config struct {
	ConfigFile  string `yaml:"-"`
	StorePath   string `yaml:"store_path"`
	Memory      bool   `yaml:"memory"`
	Instance    string `yaml:"instance"`
	Port        int    `yaml:"port"`
	Interface   string `yaml:"interface"`
	LogLevel    string `yaml:"log_level"`
	NoMDNS      bool   `yaml:"no_mdns"`
	Interactive bool   `yaml:"interactive"`

	// RootSecret seeds the simulation provisioner's key derivation.
	// Empty means a random root per run.
	RootSecret string `yaml:"root_secret"`
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.StorePath, "store", "meshnode.tags", "Tag store file path")
	flag.BoolVar(&config.Memory, "memory", false, "Use a volatile in-memory store")
	flag.StringVar(&config.Instance, "instance", "meshnode", "mDNS instance name")
	flag.IntVar(&config.Port, "port", bearer.DefaultPort, "Advertised port")
	flag.StringVar(&config.Interface, "iface", "", "Restrict mDNS to one network interface")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&config.NoMDNS, "no-mdns", false, "Disable the mDNS bearer")
	flag.BoolVar(&config.Interactive, "interactive", true, "Run the interactive console")
	flag.StringVar(&config.RootSecret, "root-secret", "", "Simulation provisioner root secret")
}

func main() {
	flag.Parse()

	if config.ConfigFile != "" {
		if err := loadConfigFile(config.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	logger := setupLogging(config.LogLevel)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// loadConfigFile overlays file values under explicitly-set flags.
func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig Config
	fileConfig.Interactive = true
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["store"] && fileConfig.StorePath != "" {
		config.StorePath = fileConfig.StorePath
	}
	if !set["memory"] {
		config.Memory = fileConfig.Memory
	}
	if !set["instance"] && fileConfig.Instance != "" {
		config.Instance = fileConfig.Instance
	}
	if !set["port"] && fileConfig.Port != 0 {
		config.Port = fileConfig.Port
	}
	if !set["iface"] && fileConfig.Interface != "" {
		config.Interface = fileConfig.Interface
	}
	if !set["log-level"] && fileConfig.LogLevel != "" {
		config.LogLevel = fileConfig.LogLevel
	}
	if !set["no-mdns"] {
		config.NoMDNS = fileConfig.NoMDNS
	}
	if !set["interactive"] {
		config.Interactive = fileConfig.Interactive
	}
	if !set["root-secret"] && fileConfig.RootSecret != "" {
		config.RootSecret = fileConfig.RootSecret
	}
	return nil
}

func setupLogging(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}

func run(logger *slog.Logger) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	network := newSimNetwork(logger)
	provisioner, err := newSimProvisioner(config.RootSecret)
	if err != nil {
		return err
	}

	var advertiser bearer.Advertiser = bearer.NopAdvertiser{}
	if !config.NoMDNS {
		mdnsConfig := bearer.DefaultMDNSAdvertiserConfig()
		mdnsConfig.Instance = config.Instance
		mdnsConfig.Port = config.Port
		mdnsConfig.Interface = config.Interface
		mdnsConfig.Subnets = network
		advertiser = bearer.NewMDNSAdvertiser(mdnsConfig)
	}

	controllerConfig := node.DefaultConfig()
	controllerConfig.Store = store
	controllerConfig.Advertiser = advertiser
	controllerConfig.KeyTable = network
	controllerConfig.IVTracker = network
	controllerConfig.Beacons = network
	controllerConfig.Proxy = network
	controllerConfig.Logger = logger

	controller, err := node.NewController(controllerConfig)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	controller.SetObserver(func(event node.Event) {
		logger.Info("node event",
			"type", event.Type.String(),
			"state", controller.State().String())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}
	if err := controller.Dispatch(node.Event{Type: node.EventSystemReady}); err != nil {
		return fmt.Errorf("failed to dispatch system-ready: %w", err)
	}

	logger.Info("meshnode started",
		"store", storeDescription(),
		"mdns", !config.NoMDNS,
		"instance", config.Instance)

	if config.Interactive {
		console, err := interactive.New(controller, provisioner)
		if err != nil {
			return fmt.Errorf("failed to create console: %w", err)
		}
		go waitForSignal(cancel, logger)
		console.Run(ctx, cancel)
	} else {
		waitForSignal(cancel, logger)
	}

	if err := controller.Stop(); err != nil {
		logger.Error("error stopping controller", "error", err)
	}

	logger.Info("meshnode stopped")
	return nil
}

func openStore() (tagstore.Store, error) {
	if config.Memory {
		return tagstore.NewMemoryStore(), nil
	}
	store, err := tagstore.OpenFileStore(config.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tag store %s: %w", config.StorePath, err)
	}
	return store, nil
}

func storeDescription() string {
	if config.Memory {
		return "memory"
	}
	return config.StorePath
}

func waitForSignal(cancel context.CancelFunc, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String())
	cancel()
}
