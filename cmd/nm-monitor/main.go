package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2NetMonitor/internal/capture"
	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/engine/manager"
	"Go2NetMonitor/internal/health"
	"Go2NetMonitor/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := pflag.StringP("config", "c", defaultConfigPath, "path to the YAML config file")
	interfaces := pflag.StringSliceP("interface", "i", nil, "interface to capture on")
	list := pflag.Bool("list", false, "list capturable interfaces and exit")
	logLevel := pflag.String("log-level", "", "override the configured log level")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Usage = printHelp
	pflag.Parse()

	if *help {
		printHelp()
		return
	}
	if *list {
		listDevices()
		return
	}

	// 1. Load configuration
	cfg, err := config.LoadOptional(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	// 2. Select interfaces
	devices, err := cfg.SelectInterfaces(append(*interfaces, pflag.Args()...))
	if errors.Is(err, config.ErrNoInterface) {
		fmt.Fprintln(os.Stderr, "No capture interface given. Available interfaces:")
		listDevices()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Failed to select capture interfaces: %v", err)
	}

	// 3. Initialize the pipeline
	mgr, err := manager.NewManager(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	sources := make([]manager.Source, 0, len(devices))
	var handles []*capture.Live
	for _, dev := range devices {
		live, err := capture.OpenLive(dev, cfg.Capture, cfg.CaptureReadTimeout(), log)
		if err != nil {
			for _, h := range handles {
				h.Close()
			}
			mgr.Stop()
			log.Fatalf("Failed to open capture: %v", err)
		}
		handles = append(handles, live)
		sources = append(sources, manager.Source{Name: live.Device(), Data: live, LinkType: live.LinkType()})
	}

	var hs *health.Server
	if cfg.Health.Enabled {
		hs = health.NewServer(log.WithField("component", "health"))
		if err := hs.ListenAndServe(cfg.Health.ListenAddr); err != nil {
			log.WithError(err).Error("Health endpoint disabled")
			hs = nil
		}
	}

	// 4. Run until a signal arrives or a capture source fails
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Start()
	if hs != nil {
		hs.SetServing(true)
	}
	log.WithField("interfaces", devices).Info("Monitor running")

	runErr := mgr.Run(ctx, sources...)
	if hs != nil {
		hs.SetServing(false)
	}
	if runErr != nil {
		log.WithError(runErr).Error("Ingestion failed, shutting down")
	} else {
		log.Info("Shutdown signal received, stopping...")
	}

	// 5. Graceful shutdown: final export, then release the handles
	mgr.Stop()
	for _, h := range handles {
		h.Close()
	}
	if hs != nil {
		hs.Stop()
	}
	if runErr != nil {
		os.Exit(1)
	}
	log.Info("Shutdown complete.")
}

func listDevices() {
	devices, err := capture.ListDevices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Print(capture.FormatDevices(devices))
}
