package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactIP masks a visitor IP for safe logging.
// IPv4 keeps the /24: "203.0.113.54" → "203.0.113.x"
// IPv6 keeps the first two groups: "2001:db8:85a3::1" → "2001:db8::x"
// Anything unparseable is fully masked.
func RedactIP(ip string) string {
	if ip == "" {
		return ""
	}
	if strings.Contains(ip, ":") && strings.Count(ip, ":") > 1 {
		groups := strings.Split(ip, ":")
		if len(groups) >= 2 {
			return groups[0] + ":" + groups[1] + "::x"
		}
		return "x::x"
	}
	octets := strings.Split(ip, ".")
	if len(octets) == 4 {
		return strings.Join(octets[:3], ".") + ".x"
	}
	return "x.x.x.x"
}
