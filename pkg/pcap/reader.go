// Package pcap reads capture files for offline replay.
package pcap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the block type of a pcapng section header.
const pcapngMagic = 0x0A0D0D0A

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads frames from a pcap or pcapng file.
type Reader struct {
	file   *os.File
	reader packetReader
	ng     bool
}

// NewReader opens a capture file. The format is detected from the file header.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewReader(f)
	magic, err := buf.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file header: %w", err)
	}

	r := &Reader{file: f}
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		r.ng = true
		r.reader, err = pcapgo.NewNgReader(buf, pcapgo.DefaultNgReaderOptions)
	} else {
		r.reader, err = pcapgo.NewReader(buf)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open capture file '%s': %w", filePath, err)
	}
	return r, nil
}

// LinkType returns the link layer type recorded in the file.
func (r *Reader) LinkType() layers.LinkType {
	return r.reader.LinkType()
}

// IsNG reports whether the file is in pcapng format.
func (r *Reader) IsNG() bool {
	return r.ng
}

// ReadPacketData returns the next frame, or io.EOF at the end of the file.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return r.reader.ReadPacketData()
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
