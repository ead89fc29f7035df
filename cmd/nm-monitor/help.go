package main

import (
	"fmt"

	"github.com/Des1red/clihelp"
)

func printHelp() {
	fmt.Println("nm-monitor - capture traffic and export aggregate metrics")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nm-monitor [flags] [interface...]")
	fmt.Println()

	fmt.Println("Capture:")
	clihelp.Print(
		clihelp.F("--interface, -i", "name", "Interface to capture on (repeatable, overrides the config)"),
		clihelp.F("--list", "", "Print the capturable interfaces and exit"),
	)
	fmt.Println()

	fmt.Println("General:")
	clihelp.Print(
		clihelp.F("--config, -c", "path", "YAML config file (defaults apply when it does not exist)"),
		clihelp.F("--log-level", "level", "Override the configured log level"),
		clihelp.F("--help, -h", "", "Show this help"),
	)
	fmt.Println()

	fmt.Println("Notes:")
	fmt.Println("  • Positional arguments are interface names, same as --interface")
	fmt.Println("  • Live capture usually needs root or CAP_NET_RAW")
}
