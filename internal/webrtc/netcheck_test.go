package webrtc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBehindTunnel(t *testing.T) {
	tests := []struct {
		name  string
		infos []ifaceInfo
		want  bool
	}{
		{
			name:  "plain ethernet",
			infos: []ifaceInfo{{name: "eth0", up: true, addrs: []net.IP{net.ParseIP("192.168.1.20")}}},
			want:  false,
		},
		{
			name:  "wireguard",
			infos: []ifaceInfo{{name: "wg0", up: true}},
			want:  true,
		},
		{
			name:  "tunnel interface down",
			infos: []ifaceInfo{{name: "tun0", up: false}},
			want:  false,
		},
		{
			name:  "cgnat address",
			infos: []ifaceInfo{{name: "en0", up: true, addrs: []net.IP{net.ParseIP("100.100.1.2")}}},
			want:  true,
		},
		{
			name:  "loopback ignored",
			infos: []ifaceInfo{{name: "lo", up: true, loopback: true, addrs: []net.IP{net.ParseIP("100.64.0.1")}}},
			want:  false,
		},
		{
			name:  "just outside cgnat",
			infos: []ifaceInfo{{name: "en0", up: true, addrs: []net.IP{net.ParseIP("100.128.0.1")}}},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, behindTunnel(tt.infos))
		})
	}
}
