package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

var privateRanges = mustParseCIDRs("10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8", "::1/128", "fc00::/7")

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, subnet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, subnet)
	}
	return nets
}

// GetRealIP returns the caller's address for request logs.
//
// Order: a public X-Real-IP, then the first public hop of X-Forwarded-For,
// then the first valid hop of X-Forwarded-For, then gin's ClientIP.
func GetRealIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); realIP != "" {
		if ip := net.ParseIP(realIP); ip != nil && !IsPrivateIP(ip) {
			return realIP
		}
	}

	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		var firstValid string
		for _, hop := range strings.Split(forwarded, ",") {
			hop = strings.TrimSpace(hop)
			ip := net.ParseIP(hop)
			if ip == nil {
				continue
			}
			if !IsPrivateIP(ip) {
				return hop
			}
			if firstValid == "" {
				firstValid = hop
			}
		}
		if firstValid != "" {
			return firstValid
		}
	}

	return c.ClientIP()
}

// IsPrivateIP reports whether ip is loopback or in a private range
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, subnet := range privateRanges {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}
