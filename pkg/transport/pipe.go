package transport

import (
	"bufio"
	"sync"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/transport/v3/test"
)

// PipeConn is an in-memory Transport used by tests in place of a real TCP
// connection (spec section 4.4, same contract, no network I/O). Reports
// KindPipe via RemoteAddress so production code never mistakes it for TCP.
type PipeConn struct {
	conn          *pipeHalf
	reader        *bufio.Reader
	writeMu       sync.Mutex
	remote        Address
	fingerprint   string
	maxPacketSize int

	closeOnce sync.Once
	closed    chan struct{}
}

// pipeHalf adapts one endpoint of a pion test.Bridge to the read/write
// surface framing.go needs.
type pipeHalf struct {
	bridge *test.Bridge
	local  int // 0 or 1
}

func (h *pipeHalf) Write(b []byte) (int, error) {
	if h.local == 0 {
		return h.bridge.GetConn0().Write(b)
	}
	return h.bridge.GetConn1().Write(b)
}

func (h *pipeHalf) Read(b []byte) (int, error) {
	if h.local == 0 {
		return h.bridge.GetConn0().Read(b)
	}
	return h.bridge.GetConn1().Read(b)
}

func (h *pipeHalf) Close() error {
	if h.local == 0 {
		return h.bridge.GetConn0().Close()
	}
	return h.bridge.GetConn1().Close()
}

// NewPipePair returns two connected in-memory transports, side A and side
// B, that deliver packets written on one to the other. Delivery happens in
// a background goroutine driven by the underlying bridge's tick loop.
func NewPipePair(addrA, addrB string) (*PipeConn, *PipeConn) {
	bridge := test.NewBridge()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				bridge.Tick()
			}
		}
	}()

	a := newPipeConn(&pipeHalf{bridge: bridge, local: 0}, Address{Kind: KindPipe, Addr: addrB})
	b := newPipeConn(&pipeHalf{bridge: bridge, local: 1}, Address{Kind: KindPipe, Addr: addrA})

	// Stop the tick pump once both ends are closed.
	go func() {
		<-a.closed
		<-b.closed
		close(stop)
		wg.Wait()
	}()

	return a, b
}

func newPipeConn(half *pipeHalf, remote Address) *PipeConn {
	return &PipeConn{
		conn:          half,
		reader:        bufio.NewReader(half),
		remote:        remote,
		maxPacketSize: DefaultMaxPacketSize,
		closed:        make(chan struct{}),
	}
}

// SetPeerFingerprint lets a test simulate a particular peer certificate
// fingerprint without a real TLS handshake.
func (c *PipeConn) SetPeerFingerprint(fp string) { c.fingerprint = fp }

// Capabilities implements Transport.
func (c *PipeConn) Capabilities() Capabilities {
	return Capabilities{
		MaxPacketSize:      c.maxPacketSize,
		Reliable:           true,
		ConnectionOriented: true,
		Latency:            LatencyLow,
	}
}

// RemoteAddress implements Transport.
func (c *PipeConn) RemoteAddress() Address { return c.remote }

// SendPacket implements Transport.
func (c *PipeConn) SendPacket(p *packet.Packet) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return sendPacket(c.conn, &c.writeMu, p, c.maxPacketSize)
}

// ReceivePacket implements Transport.
func (c *PipeConn) ReceivePacket() (*packet.Packet, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return receivePacket(c.reader)
}

// Close implements Transport.
func (c *PipeConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// IsConnected implements Transport.
func (c *PipeConn) IsConnected() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// PeerFingerprint implements PeerCertified.
func (c *PipeConn) PeerFingerprint() string { return c.fingerprint }

var _ Transport = (*PipeConn)(nil)
var _ PeerCertified = (*PipeConn)(nil)
