package policy

import (
	"net"
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

// CheckIP evaluates link- and user-scoped IP rules. A blacklist match denies;
// once any whitelist rule exists, an address outside all of them is denied.
func CheckIP(ip string, rules []domain.IPRule) Decision {
	addr := net.ParseIP(strings.TrimSpace(ip))

	hasWhitelist := false
	whitelisted := false

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		matched := addr != nil && matchIP(addr, rule.IPAddress)

		switch rule.Type {
		case domain.IPRuleBlacklist:
			if matched {
				return Decision{Policy: PolicyIP, Reason: "access denied from this IP address"}
			}
		case domain.IPRuleWhitelist:
			hasWhitelist = true
			if matched {
				whitelisted = true
			}
		}
	}

	if hasWhitelist && !whitelisted {
		return Decision{Policy: PolicyIP, Reason: "IP address is not in the allowed list"}
	}
	return Allow()
}

func matchIP(addr net.IP, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if strings.Contains(pattern, "/") {
		_, network, err := net.ParseCIDR(pattern)
		if err != nil {
			return false
		}
		return network.Contains(addr)
	}
	ruleIP := net.ParseIP(pattern)
	return ruleIP != nil && ruleIP.Equal(addr)
}
