package transport

import "fmt"

// Address identifies a remote endpoint reachable over a particular
// transport Kind (spec glossary: "TransportAddress").
type Address struct {
	Kind Kind
	// Network-level address, e.g. "192.168.1.42:1716" for KindTCP or a
	// Bluetooth device address string for KindBluetooth.
	Addr string
}

// String returns a human-readable representation of the address.
func (a Address) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.Addr)
}

// IsValid reports whether a carries a recognized kind and non-empty address.
func (a Address) IsValid() bool {
	return a.Kind.IsValid() && a.Addr != ""
}

// TCPAddress builds an Address for a TCP endpoint.
func TCPAddress(addr string) Address {
	return Address{Kind: KindTCP, Addr: addr}
}

// BluetoothAddress builds an Address for a Bluetooth endpoint.
func BluetoothAddress(addr string) Address {
	return Address{Kind: KindBluetooth, Addr: addr}
}
