package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts a route group to the given client addresses.
// Entries may be single IPs ("10.0.0.5") or CIDR ranges ("10.0.0.0/24").
// An empty list disables the restriction; unparseable entries are ignored.
func IPWhitelist(entries []string) gin.HandlerFunc {
	singles := make(map[netip.Addr]bool)
	var prefixes []netip.Prefix
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p)
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			singles[a] = true
		}
	}
	open := len(singles) == 0 && len(prefixes) == 0

	allowed := func(addr netip.Addr) bool {
		if singles[addr] {
			return true
		}
		for _, p := range prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		if open {
			c.Next()
			return
		}
		addr, err := netip.ParseAddr(c.ClientIP())
		if err != nil || !allowed(addr) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
