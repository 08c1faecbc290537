package middleware

import (
	"net"

	"github.com/labstack/echo/v4"
)

// ParseTrustedProxies converts a list of IP addresses and CIDR ranges to net.IPNet.
// Single IPs are converted to /32 (IPv4) or /128 (IPv6) blocks. Invalid entries are skipped.
func ParseTrustedProxies(proxies []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, proxy := range proxies {
		if _, ipNet, err := net.ParseCIDR(proxy); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		if ip := net.ParseIP(proxy); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return nets
}

// IPExtractor returns the echo extractor for c.RealIP(). X-Forwarded-For is
// only honoured when the direct peer is one of trustedNets; with no trusted
// proxies the connection address is used as is.
func IPExtractor(trustedNets []*net.IPNet) echo.IPExtractor {
	if len(trustedNets) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trustedNets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// ContainsIP reports whether ip falls inside one of nets.
func ContainsIP(ip string, nets []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
