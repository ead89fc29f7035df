package main

import (
	"fmt"
	"io"
	"os"

	"Go2NetMonitor/internal/broadcast"
	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/logging"
	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/query"
	"Go2NetMonitor/internal/tui"

	"github.com/Des1red/clihelp"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func printHelp() {
	fmt.Println("nm-top - live terminal dashboard for exported metrics")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nm-top [flags]")
	fmt.Println()
	fmt.Println("Polling:")
	clihelp.Print(
		clihelp.F("--source", "string", "Override query.source (csv | gob | clickhouse)"),
		clihelp.F("--data-dir", "path", "Override query.data_dir"),
		clihelp.F("--interval", "duration", "Refresh interval"),
	)
	fmt.Println()
	fmt.Println("Streaming:")
	clihelp.Print(
		clihelp.F("--nats", "url", "Receive snapshots from a NATS publisher instead of polling"),
		clihelp.F("--subject", "string", "NATS subject"),
	)
	fmt.Println()
	clihelp.Print(
		clihelp.F("--config, -c", "path", "YAML config file (defaults apply when it does not exist)"),
		clihelp.F("--help, -h", "", "Show this help"),
	)
}

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the YAML config file")
	source := pflag.String("source", "", "query source")
	dataDir := pflag.String("data-dir", "", "CSV export directory")
	interval := pflag.Duration("interval", tui.DefaultPollInterval, "refresh interval")
	natsURL := pflag.String("nats", "", "NATS server URL")
	subject := pflag.String("subject", broadcast.DefaultSubject, "NATS subject")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Usage = printHelp
	pflag.Parse()
	if *help {
		printHelp()
		return
	}

	cfg, err := config.LoadOptional(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
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
	// The dashboard owns the terminal.
	if cfg.Log.File == "" {
		log.SetOutput(io.Discard)
	}

	var m tui.Model
	if *natsURL != "" {
		sub, err := broadcast.NewSubscriber(*natsURL, *subject, log)
		if err != nil {
			logrus.Fatalf("Failed to subscribe: %v", err)
		}
		defer sub.Close()

		updates := make(chan model.Snapshot, 1)
		if err := sub.Start(func(s model.Snapshot) { offerLatest(updates, s) }); err != nil {
			logrus.Fatalf("Failed to subscribe: %v", err)
		}
		m = tui.NewStreamModel(fmt.Sprintf("nats:%s", *subject), updates)
	} else {
		querier, err := query.New(cfg.Query)
		if err != nil {
			logrus.Fatalf("Failed to create querier: %v", err)
		}
		defer querier.Close()
		m = tui.NewPollingModel(describe(cfg.Query), querier.Snapshot, *interval)
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard failed: %v\n", err)
		os.Exit(1)
	}
}

// offerLatest keeps only the newest snapshot when the dashboard lags behind.
func offerLatest(updates chan model.Snapshot, s model.Snapshot) {
	for {
		select {
		case updates <- s:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
	}
}

func describe(cfg config.QueryConfig) string {
	switch cfg.Source {
	case "gob":
		return "gob:" + cfg.GobPath
	case "clickhouse":
		return fmt.Sprintf("clickhouse:%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)
	default:
		return "csv:" + cfg.DataDir
	}
}
