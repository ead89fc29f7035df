package protocol

import (
	"errors"
	"testing"
	"time"

	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/testutil"

	"github.com/google/gopacket/layers"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  model.Observation
	}{
		{
			name:  "tcp",
			frame: testutil.TCPFrame("10.0.0.1", 5000, "10.0.0.2", 80),
			want:  model.Observation{SrcIP: "10.0.0.1", SrcPort: 5000, DstIP: "10.0.0.2", DstPort: 80, Protocol: model.ProtocolTCP},
		},
		{
			name:  "udp",
			frame: testutil.UDPFrame("10.0.0.1", 6000, "10.0.0.3", 53),
			want:  model.Observation{SrcIP: "10.0.0.1", SrcPort: 6000, DstIP: "10.0.0.3", DstPort: 53, Protocol: model.ProtocolUDP},
		},
		{
			name:  "ip options shift the transport header",
			frame: testutil.TCPFrameWithOptions("192.168.1.10", 443, "192.168.1.20", 51515),
			want:  model.Observation{SrcIP: "192.168.1.10", SrcPort: 443, DstIP: "192.168.1.20", DstPort: 51515, Protocol: model.ProtocolTCP},
		},
		{
			name:  "icmp is other without ports",
			frame: testutil.ICMPFrame("10.0.0.1", "10.0.0.9"),
			want:  model.Observation{SrcIP: "10.0.0.1", DstIP: "10.0.0.9", Protocol: model.ProtocolOther},
		},
		{
			name:  "ipv6 tcp",
			frame: testutil.TCPv6Frame("2001:db8::1", 40000, "2001:db8::2", 22),
			want:  model.Observation{SrcIP: "2001:db8::1", SrcPort: 40000, DstIP: "2001:db8::2", DstPort: 22, Protocol: model.ProtocolTCP},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.frame)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got.Length != len(tt.frame) {
				t.Errorf("Expected length %d, got %d", len(tt.frame), got.Length)
			}
			got.Length = 0
			if got != tt.want {
				t.Errorf("Classify mismatch.\n got: %+v\nwant: %+v", got, tt.want)
			}
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	full := testutil.TCPFrame("10.0.0.1", 5000, "10.0.0.2", 80)
	udp := testutil.UDPFrame("10.0.0.1", 6000, "10.0.0.3", 53)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"shorter than link header", full[:10]},
		{"link header only", full[:14]},
		{"truncated ip header", full[:14+12]},
		{"ip header without transport", full[:14+20]},
		{"truncated tcp header", full[:14+20+10]},
		{"truncated udp header", udp[:14+20+4]},
		{"arp carries no ip header", testutil.ARPFrame()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.frame)
			if !errors.Is(err, ErrUnclassifiable) {
				t.Fatalf("Expected ErrUnclassifiable, got %v", err)
			}
		})
	}
}

func TestClassify_EveryPrefixIsSafe(t *testing.T) {
	c, err := NewClassifier(layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	frames := [][]byte{
		testutil.TCPFrame("10.0.0.1", 5000, "10.0.0.2", 80),
		testutil.TCPFrameWithOptions("10.0.0.1", 5000, "10.0.0.2", 80),
		testutil.UDPFrame("10.0.0.1", 6000, "10.0.0.3", 53),
		testutil.TCPv6Frame("2001:db8::1", 1, "2001:db8::2", 2),
	}
	for _, frame := range frames {
		for n := 0; n <= len(frame); n++ {
			// Must never panic; the result itself depends on the cut.
			_, _ = c.Classify(frame[:n])
		}
	}
}

func TestClassifier_ReuseAndTimestamp(t *testing.T) {
	c, err := NewClassifier(layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := c.ClassifyAt(testutil.TCPFrame("10.0.0.1", 5000, "10.0.0.2", 80), ts)
	if err != nil {
		t.Fatalf("ClassifyAt failed: %v", err)
	}
	if !first.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, first.Timestamp)
	}

	// A failing frame in between must not leak state into the next result.
	if _, err := c.Classify(testutil.ARPFrame()); err == nil {
		t.Fatal("Expected ARP frame to be unclassifiable")
	}

	second, err := c.Classify(testutil.ICMPFrame("10.0.0.5", "10.0.0.6"))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if second.SrcPort != 0 || second.DstPort != 0 || second.Protocol != model.ProtocolOther {
		t.Errorf("Unexpected observation after reuse: %+v", second)
	}
}

func TestNewClassifier_UnsupportedLinkType(t *testing.T) {
	if _, err := NewClassifier(layers.LinkTypeIEEE802_11); err == nil {
		t.Fatal("Expected an error for 802.11 link type")
	}
}
