package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"Go2NetMonitor/internal/config"
	"Go2NetMonitor/internal/engine/manager"
	"Go2NetMonitor/internal/engine/protocol"
	"Go2NetMonitor/internal/logging"
	"Go2NetMonitor/pkg/pcap"

	"github.com/Des1red/clihelp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func printHelp() {
	fmt.Println("nm-replay - run the metrics pipeline over pcap or pcapng files")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nm-replay [flags] <file.pcap>...")
	fmt.Println()
	clihelp.Print(
		clihelp.F("--config, -c", "path", "YAML config file (defaults apply when it does not exist)"),
		clihelp.F("--peek", "int", "Print the first N classified frames of each file and exit"),
		clihelp.F("--help, -h", "", "Show this help"),
	)
}

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the YAML config file")
	peekCount := pflag.Int("peek", 0, "print the first N frames of each file and exit")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Usage = printHelp
	pflag.Parse()

	// 1. Get pcap file paths from command-line arguments
	if *help || pflag.NArg() == 0 {
		printHelp()
		if !*help {
			os.Exit(1)
		}
		return
	}

	if *peekCount > 0 {
		for _, path := range pflag.Args() {
			if err := peek(path, *peekCount); err != nil {
				logrus.Fatalf("Failed to read %s: %v", path, err)
			}
		}
		return
	}

	// 2. Load configuration
	cfg, err := config.LoadOptional(*configPath, pflag.CommandLine.Changed("config"))
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	// 3. Initialize modules
	mgr, err := manager.NewManager(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	var sources []manager.Source
	for _, path := range pflag.Args() {
		reader, err := pcap.NewReader(path)
		if err != nil {
			mgr.Stop()
			log.Fatalf("Failed to open pcap file: %v", err)
		}
		defer reader.Close()
		log.WithFields(logrus.Fields{"file": path, "pcapng": reader.IsNG()}).Info("Reading packets")
		sources = append(sources, manager.Source{Name: path, Data: reader, LinkType: reader.LinkType()})
	}

	// 4. Run the pipeline until every file is read
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Start()
	runErr := mgr.Run(ctx, sources...)
	if runErr != nil {
		log.WithError(runErr).Error("Replay failed")
	}

	// 5. Graceful shutdown with a final export
	mgr.Stop()
	stats := mgr.Stats()
	snap := mgr.Store().Snapshot()
	log.WithFields(logrus.Fields{
		"frames":       stats.Frames,
		"unclassified": stats.Unclassified,
		"total":        snap.TotalPackets,
		"connections":  len(snap.Connections),
	}).Info("Replay complete.")
	if runErr != nil {
		os.Exit(1)
	}
}

// peek prints the observations of the first n frames of a capture file.
func peek(path string, n int) error {
	reader, err := pcap.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	classifier, err := protocol.NewClassifier(reader.LinkType())
	if err != nil {
		return err
	}

	fmt.Printf("==== %s (%s) ====\n", path, reader.LinkType())
	for i := 0; i < n; i++ {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		obs, err := classifier.ClassifyAt(data, ci.Timestamp)
		if err != nil {
			fmt.Printf("[%s] %v\n", ci.Timestamp.Format("15:04:05.000"), err)
			continue
		}
		fmt.Printf("[%s] %s proto=%s len=%d\n",
			obs.Timestamp.Format("15:04:05.000"), obs.Key(), obs.Protocol, ci.Length)
	}
	return nil
}
