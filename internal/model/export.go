package model

// File names and column layouts of the file exports. The query service and
// the dashboard read the same files the writers produce.
const (
	TotalPacketsFile   = "total_packets.csv"
	ProtocolCountsFile = "protocol_counts.csv"
	ConnectionsFile    = "connections.csv"

	GobSnapshotFile = "snapshot.gob"
	GobSummaryFile  = "summary.json"

	TotalPacketsMetric = "Total Packets"

	// UnresolvedDomain stands in for an empty hostname in exports.
	UnresolvedDomain = "N/A"
)

var (
	TotalPacketsHeader   = []string{"Metric", "Value"}
	ProtocolCountsHeader = []string{"Protocol", "Packet Count"}
	ConnectionsHeader    = []string{
		"Source IP", "Source Port", "Source Domain",
		"Destination IP", "Destination Port", "Destination Domain",
		"Protocol",
	}
)

// DisplayDomain returns the hostname as exported, N/A when unresolved.
func DisplayDomain(name string) string {
	if name == "" {
		return UnresolvedDomain
	}
	return name
}
