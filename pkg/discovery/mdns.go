package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// mdnsServiceType is the DNS-SD service type this installation advertises
// and browses for over the mDNS fallback path.
const mdnsServiceType = "_cconnect._tcp"
const mdnsDomain = "local."

// MDNSServer is an active mDNS service registration, satisfied by
// *zeroconf.Server.
type MDNSServer interface {
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances. Kept as an interface so
// tests can inject a fake and avoid touching a real network interface.
type MDNSServerFactory interface {
	Register(instance, service, domain string, port int, txt []string) (MDNSServer, error)
}

type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, nil)
}

// MDNSResolver browses for peers advertising mdnsServiceType. Kept as an
// interface for the same reason as MDNSServerFactory.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// mdnsFallback advertises this installation's TCP listen port over mDNS and
// browses for peers doing the same, used when UDP broadcast discovery
// cannot reach a peer (routed or VLAN-segmented networks). It is strictly a
// fallback: UDP broadcast remains the primary discovery path (spec section
// 4.3), so every failure here is logged and swallowed rather than
// propagated to the caller.
type mdnsFallback struct {
	factory  MDNSServerFactory
	resolver MDNSResolver
	log      logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newMDNSFallback(factory MDNSServerFactory, resolver MDNSResolver, log logging.LeveledLogger) *mdnsFallback {
	return &mdnsFallback{factory: factory, resolver: resolver, log: log}
}

// start registers deviceID's service on port and launches a browse loop
// that reports every other instance it sees to onPeer.
func (f *mdnsFallback) start(ctx context.Context, deviceID string, port int, onPeer func(instance string, ips []net.IP)) error {
	factory := f.factory
	if factory == nil {
		factory = zeroconfServerFactory{}
	}
	server, err := factory.Register(deviceID, mdnsServiceType, mdnsDomain, port, []string{"deviceId=" + deviceID})
	if err != nil {
		return fmt.Errorf("discovery: register mdns service: %w", err)
	}

	resolver := f.resolver
	if resolver == nil {
		r, err := newZeroconfResolver()
		if err != nil {
			server.Shutdown()
			return fmt.Errorf("discovery: create mdns resolver: %w", err)
		}
		resolver = r
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.server = server
	f.cancel = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go f.browseLoop(runCtx, deviceID, resolver, onPeer)
	return nil
}

func (f *mdnsFallback) browseLoop(ctx context.Context, selfID string, resolver MDNSResolver, onPeer func(string, []net.IP)) {
	defer f.wg.Done()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		if err := resolver.Browse(ctx, mdnsServiceType, mdnsDomain, entries); err != nil && f.log != nil {
			f.log.Warnf("discovery: mdns browse: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry.Instance == selfID {
				continue
			}
			onPeer(entry.Instance, entry.AddrIPv4)
		}
	}
}

// stop tears down the registration and browse loop. Safe to call even if
// start was never called or failed.
func (f *mdnsFallback) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	if f.server != nil {
		f.server.Shutdown()
	}
	f.wg.Wait()
}
