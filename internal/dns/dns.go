package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	mdns "github.com/miekg/dns"
)

// publicDNS are servers to be queried if a local lookup fails.
var publicDNS = []string{
	"1.1.1.1",              // Cloudflare
	"1.0.0.1",              // Cloudflare
	"2606:4700:4700::1111", // Cloudflare
	"8.8.8.8",              // Google
	"8.8.4.4",              // Google
	"2001:4860:4860::8888", // Google
	"9.9.9.9",              // Quad9
	"149.112.112.112",      // Quad9
	"208.67.222.222",       // Cisco OpenDNS
	"208.67.220.220",       // Cisco OpenDNS
}

var (
	localTimeout  = 1 * time.Second
	remoteTimeout = 2 * time.Second

	// Replaced in tests.
	localLookup  = localLookupIP
	remoteLookup = remoteLookupIP
)

// ErrNoAddress means a resolver answered without any usable address.
var ErrNoAddress = errors.New("no IP addresses found")

// Lookup resolves a hostname to an IP address. IP literals are returned
// unchanged. The system resolver is tried first; if it fails, public DNS
// servers are queried directly and the first answer wins.
func Lookup(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ip, err := localLookup(host)
	if err == nil && ip != "" {
		return ip, nil
	}

	return remoteLookupWithRace(host)
}

// ResolveHostPort resolves the host part of a host:port pair and keeps the
// port. Loopback names are left to the system.
func ResolveHostPort(hostport string) (string, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", err
	}
	if host == "localhost" {
		return hostport, nil
	}
	ip, err := Lookup(host)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip, port), nil
}

// localLookupIP returns a host's IP address using the local DNS configuration.
func localLookupIP(host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), localTimeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

// remoteLookupWithRace queries every public server concurrently.
func remoteLookupWithRace(host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	results := make(chan result, len(publicDNS))
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	for _, server := range publicDNS {
		go func(server string) {
			ip, err := remoteLookup(ctx, host, server)
			results <- result{ip: ip, err: err}
		}(server)
	}

	failures := 0
	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup timed out during public DNS race")
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

// remoteLookupIP asks one server for A records, then AAAA.
func remoteLookupIP(ctx context.Context, host, server string) (string, error) {
	client := &mdns.Client{Timeout: remoteTimeout}
	addr := net.JoinHostPort(server, "53")

	var lastErr error = ErrNoAddress
	for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		msg := new(mdns.Msg)
		msg.SetQuestion(mdns.Fqdn(host), qtype)
		msg.RecursionDesired = true

		resp, _, err := client.ExchangeContext(ctx, msg, addr)
		if err != nil {
			lastErr = err
			continue
		}
		ip, err := addressFrom(resp)
		if err == nil {
			return ip, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// addressFrom extracts the first usable address from a DNS answer,
// preferring IPv4.
func addressFrom(resp *mdns.Msg) (string, error) {
	if resp == nil {
		return "", ErrNoAddress
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return "", fmt.Errorf("dns: %s", mdns.RcodeToString[resp.Rcode])
	}
	var ips []string
	for _, rr := range resp.Answer {
		switch r := rr.(type) {
		case *mdns.A:
			ips = append(ips, r.A.String())
		case *mdns.AAAA:
			ips = append(ips, r.AAAA.String())
		}
	}
	return preferIPv4(ips)
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
