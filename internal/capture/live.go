// Package capture opens live capture handles for the ingestion loop.
package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"Go2NetMonitor/internal/config"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"
)

// ErrReadTimeout is returned by Live.ReadPacketData when no frame arrived
// within the read timeout. It reports Timeout() == true.
var ErrReadTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "capture read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Live is a live capture handle on one interface.
type Live struct {
	device string
	handle *pcap.Handle
	log    logrus.FieldLogger
}

// OpenLive opens a device for live capture with the configured snapshot
// length, promiscuous mode, read timeout and optional BPF filter.
func OpenLive(device string, cfg config.CaptureConfig, readTimeout time.Duration, log logrus.FieldLogger) (*Live, error) {
	handle, err := pcap.OpenLive(device, cfg.SnapshotLen, cfg.Promiscuous, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", device, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid bpf filter '%s': %w", cfg.BPFFilter, err)
		}
	}
	log = log.WithField("device", device)
	log.WithField("link_type", handle.LinkType()).Info("Capture started")
	return &Live{device: device, handle: handle, log: log}, nil
}

// Device returns the interface name.
func (l *Live) Device() string { return l.device }

// LinkType returns the link layer type of captured frames.
func (l *Live) LinkType() layers.LinkType { return l.handle.LinkType() }

// ReadPacketData reads the next frame. An expired read timeout is reported
// as ErrReadTimeout.
func (l *Live) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := l.handle.ReadPacketData()
	return data, ci, mapReadError(err)
}

func mapReadError(err error) error {
	var nextErr pcap.NextError
	if errors.As(err, &nextErr) && nextErr == pcap.NextErrorTimeoutExpired {
		return ErrReadTimeout
	}
	return err
}

// Close logs the capture statistics and closes the handle.
func (l *Live) Close() {
	if stats, err := l.handle.Stats(); err == nil {
		l.log.WithFields(logrus.Fields{
			"received":   stats.PacketsReceived,
			"dropped":    stats.PacketsDropped,
			"if_dropped": stats.PacketsIfDropped,
		}).Info("Capture closed")
	}
	l.handle.Close()
}

// Device describes a capturable interface.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// ListDevices enumerates the interfaces pcap can capture on.
func ListDevices() ([]Device, error) {
	ifaces, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	devices := make([]Device, 0, len(ifaces))
	for _, iface := range ifaces {
		d := Device{Name: iface.Name, Description: iface.Description}
		for _, addr := range iface.Addresses {
			d.Addresses = append(d.Addresses, addr.IP.String())
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// FormatDevices renders the device list for an error message or --list output.
func FormatDevices(devices []Device) string {
	var b strings.Builder
	for _, d := range devices {
		fmt.Fprintf(&b, "  %-16s %s", d.Name, d.Description)
		if len(d.Addresses) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(d.Addresses, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
