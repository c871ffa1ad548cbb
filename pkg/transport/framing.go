package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

// maxLineSize bounds a single read frame, independent of a transport's
// configured MaxPacketSize: a complete line longer than this is rejected
// with ErrPacketTooLarge. The line is read into memory in full before the
// check, so the bound does not limit memory use for a long or unterminated
// line.
const maxLineSize = 16 << 20 // 16 MiB

// sendPacket encodes p and writes it to w under mu, rejecting anything
// larger than maxPacketSize (spec section 4.4).
func sendPacket(w io.Writer, mu *sync.Mutex, p *packet.Packet, maxPacketSize int) error {
	wire, err := packet.Encode(p)
	if err != nil {
		return err
	}
	if len(wire) > maxPacketSize {
		return ErrPacketTooLarge
	}

	mu.Lock()
	defer mu.Unlock()
	_, err = w.Write(wire)
	return err
}

// receivePacket reads the next newline-delimited packet from r.
func receivePacket(r *bufio.Reader) (*packet.Packet, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, err
		}
		return nil, fmt.Errorf("transport: partial frame: %w", err)
	}
	if len(line) > maxLineSize {
		return nil, ErrPacketTooLarge
	}
	return packet.Decode(line)
}
