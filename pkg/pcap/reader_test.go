package pcap

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Go2NetMonitor/internal/testutil"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func testFrames() [][]byte {
	return [][]byte{
		testutil.TCPFrame("10.0.0.1", 5000, "10.0.0.2", 80),
		testutil.UDPFrame("10.0.0.1", 6000, "10.0.0.3", 53),
	}
}

func captureInfo(i int, frame []byte) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000+int64(i), 0),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
}

func writePcap(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i, frame := range testFrames() {
		if err := w.WritePacket(captureInfo(i, frame), frame); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
}

func writePcapNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("ng writer: %v", err)
	}
	for i, frame := range testFrames() {
		if err := w.WritePacket(captureInfo(i, frame), frame); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func readAll(t *testing.T, r *Reader) int {
	t.Helper()
	count := 0
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return count
		}
		if err != nil {
			t.Fatalf("ReadPacketData: %v", err)
		}
		if len(data) != ci.CaptureLength {
			t.Errorf("packet %d: length %d, capture length %d", count, len(data), ci.CaptureLength)
		}
		if !ci.Timestamp.Equal(time.Unix(1700000000+int64(count), 0)) {
			t.Errorf("packet %d: unexpected timestamp %v", count, ci.Timestamp)
		}
		count++
	}
}

func TestReader_Pcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pcap")
	writePcap(t, path)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer r.Close()

	if r.IsNG() {
		t.Error("Expected a classic pcap file")
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		t.Errorf("Expected Ethernet link type, got %s", r.LinkType())
	}
	if count := readAll(t, r); count != 2 {
		t.Errorf("Expected to read 2 packets, but got %d", count)
	}
}

func TestReader_PcapNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pcapng")
	writePcapNG(t, path)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer r.Close()

	if !r.IsNG() {
		t.Error("Expected a pcapng file")
	}
	if count := readAll(t, r); count != 2 {
		t.Errorf("Expected to read 2 packets, but got %d", count)
	}
}

func TestReader_Invalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewReader(filepath.Join(dir, "missing.pcap")); err == nil {
		t.Error("Expected an error for a missing file")
	}

	garbage := filepath.Join(dir, "garbage.pcap")
	if err := os.WriteFile(garbage, []byte("not a capture file at all"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := NewReader(garbage); err == nil {
		t.Error("Expected an error for a file without a pcap header")
	}

	short := filepath.Join(dir, "short.pcap")
	if err := os.WriteFile(short, []byte{0x01}, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := NewReader(short); err == nil {
		t.Error("Expected an error for a truncated file")
	}
}
