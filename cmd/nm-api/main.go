package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetMonitor/internal/api"
	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/logging"
	"Go2NetMonitor/internal/query"

	"github.com/Des1red/clihelp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func printHelp() {
	fmt.Println("nm-api - serve exported metrics as JSON")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nm-api [flags]")
	fmt.Println()
	clihelp.Print(
		clihelp.F("--config, -c", "path", "YAML config file (defaults apply when it does not exist)"),
		clihelp.F("--listen", "address", "Override api.listen_addr"),
		clihelp.F("--source", "string", "Override query.source (csv | gob | clickhouse)"),
		clihelp.F("--data-dir", "path", "Override query.data_dir"),
		clihelp.F("--help, -h", "", "Show this help"),
	)
}

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the YAML config file")
	listen := pflag.String("listen", "", "listen address")
	source := pflag.String("source", "", "query source")
	dataDir := pflag.String("data-dir", "", "CSV export directory")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Usage = printHelp
	pflag.Parse()
	if *help {
		printHelp()
		return
	}

	// Load configuration
	cfg, err := config.LoadOptional(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *listen != "" {
		cfg.API.ListenAddr = *listen
	}
	if *source != "" {
		cfg.Query.Source = *source
	}
	if *dataDir != "" {
		cfg.Query.DataDir = *dataDir
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	// Initialize querier
	querier, err := query.New(cfg.Query)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}
	defer querier.Close()

	// Start HTTP server
	server := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           api.NewRouter(querier, log.WithField("component", "api")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":   server.Addr,
			"source": cfg.Query.Source,
		}).Info("API server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Info("API server exited.")
}
