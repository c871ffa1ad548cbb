package discovery

import "net"

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// GetLocalIPv6Addresses returns all non-loopback IPv6 addresses on the host.
func GetLocalIPv6Addresses() ([]net.IP, error) {
	addrs, err := GetLocalAddresses()
	if err != nil {
		return nil, err
	}
	return FilterIPv6(addrs), nil
}

// GetLocalAddresses returns all non-loopback IP addresses on the host.
func GetLocalAddresses() ([]net.IP, error) {
	var addresses []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip != nil && !ip.IsLoopback() {
				addresses = append(addresses, ip)
			}
		}
	}

	return addresses, nil
}

// broadcastInterfaces returns, for every up non-loopback interface carrying
// an IPv4 address, that interface and its link broadcast address (spec
// section 4.3: "emit broadcasts per interface with a link broadcast
// address").
func broadcastInterfaces() ([]broadcastTarget, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var targets []broadcastTarget
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := broadcastAddress(ip4, ipnet.Mask)
			targets = append(targets, broadcastTarget{iface: iface.Name, broadcast: bcast})
		}
	}
	return targets, nil
}

type broadcastTarget struct {
	iface     string
	broadcast net.IP
}

// broadcastAddress computes the directed broadcast address for an IPv4
// network: the host bits of ip set to all ones.
func broadcastAddress(ip net.IP, mask net.IPMask) net.IP {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}
