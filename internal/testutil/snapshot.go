package testutil

import (
	"time"

	"Go2NetMonitor/internal/model"
)

// SampleTime is the fixed capture time used by SampleSnapshot.
var SampleTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// SampleSnapshot is the state after two TCP frames 10.0.0.1:5000->10.0.0.2:80
// and one UDP frame 10.0.0.1:6000->10.0.0.3:53, with only 10.0.0.3 resolving.
func SampleSnapshot() model.Snapshot {
	return model.Snapshot{
		Timestamp:    SampleTime,
		TotalPackets: 3,
		TotalBytes:   190,
		ProtocolCounts: map[model.Protocol]uint64{
			model.ProtocolTCP: 2,
			model.ProtocolUDP: 1,
		},
		Connections: []model.Connection{
			{
				SrcIP: "10.0.0.1", SrcPort: 6000,
				DstIP: "10.0.0.3", DstPort: 53, DstDomain: "dns.example",
				Protocol: model.ProtocolUDP, FirstSeen: SampleTime.Add(-time.Second),
			},
			{
				SrcIP: "10.0.0.1", SrcPort: 5000,
				DstIP: "10.0.0.2", DstPort: 80,
				Protocol: model.ProtocolTCP, FirstSeen: SampleTime.Add(-2 * time.Second),
			},
		},
	}
}
