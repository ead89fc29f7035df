package main

import (
	"fmt"
	"os"
	"time"

	"Go2NetMonitor/internal/synth"

	"github.com/Des1red/clihelp"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func printHelp() {
	fmt.Println("nm-pcapgen - write synthetic traffic to a pcap file for nm-replay")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nm-pcapgen [flags]")
	fmt.Println()
	clihelp.Print(
		clihelp.F("--output, -o", "path", "Output pcap file"),
		clihelp.F("--count, -n", "int", "Number of frames"),
		clihelp.F("--flows", "int", "Number of distinct flows"),
		clihelp.F("--udp", "float", "Share of UDP flows"),
		clihelp.F("--other", "float", "Share of ICMP flows"),
		clihelp.F("--seed", "int", "Random seed (0 uses the current time)"),
	)
}

func main() {
	outputFile := pflag.StringP("output", "o", "test.pcap", "output pcap file path")
	packetCount := pflag.IntP("count", "n", 1000, "number of packets to generate")
	flows := pflag.Int("flows", 100, "number of distinct flows")
	udp := pflag.Float64("udp", 0.3, "share of UDP flows")
	other := pflag.Float64("other", 0.05, "share of ICMP flows")
	seed := pflag.Int64("seed", 0, "random seed")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Usage = printHelp
	pflag.Parse()
	if *help {
		printHelp()
		return
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gen, err := synth.New(synth.Options{Seed: *seed, Flows: *flows, UDPRatio: *udp, OtherRatio: *other, MaxPayload: 1400})
	if err != nil {
		logrus.Fatalf("Invalid traffic options: %v", err)
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		logrus.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		logrus.Fatalf("Failed to write pcap header: %v", err)
	}

	logrus.WithFields(logrus.Fields{"count": *packetCount, "flows": *flows, "file": *outputFile}).Info("Generating packets")
	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			logrus.Infof("Generated %d packets...", i+1)
		}
		data, ci, err := gen.Next()
		if err != nil {
			logrus.Fatalf("Failed to generate packet: %v", err)
		}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			logrus.Fatalf("Failed to write packet: %v", err)
		}
	}

	logrus.Infof("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
