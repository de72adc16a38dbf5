package webrtc

import (
	"net"
	"strings"
)

// tunnelMarkers are interface name fragments of VPN and tunnel adapters.
var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Tailscale and WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

type ifaceInfo struct {
	name     string
	up       bool
	loopback bool
	addrs    []net.IP
}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or CGNAT, where direct paths rarely work and TURN should be forced.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	infos := make([]ifaceInfo, 0, len(interfaces))
	for _, iface := range interfaces {
		info := ifaceInfo{
			name:     iface.Name,
			up:       iface.Flags&net.FlagUp != 0,
			loopback: iface.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					info.addrs = append(info.addrs, v.IP)
				case *net.IPAddr:
					info.addrs = append(info.addrs, v.IP)
				}
			}
		}
		infos = append(infos, info)
	}
	return behindTunnel(infos)
}

func behindTunnel(infos []ifaceInfo) bool {
	for _, info := range infos {
		if !info.up || info.loopback {
			continue
		}
		name := strings.ToLower(info.name)
		for _, marker := range tunnelMarkers {
			if strings.Contains(name, marker) {
				return true
			}
		}
		for _, ip := range info.addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}
