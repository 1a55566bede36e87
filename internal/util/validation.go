package util

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidateScheme validates a URI scheme token (RFC 3986 section 3.1).
func ValidateScheme(scheme string) error {
	if scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}
	for i, c := range scheme {
		if !isValidSchemeChar(c, i == 0) {
			return fmt.Errorf("invalid character in scheme %q: %c", scheme, c)
		}
	}
	return nil
}

func isValidSchemeChar(c rune, isFirst bool) bool {
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	if isFirst {
		return false
	}
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// ValidateHostPort validates a host with an optional port, e.g.
// "example.com", "example.com:8443", "10.0.0.1:80" or "[::1]:8080".
func ValidateHostPort(hostport string) error {
	if hostport == "" {
		return fmt.Errorf("host cannot be empty")
	}

	host := hostport
	if h, port, err := net.SplitHostPort(hostport); err == nil {
		if err := validatePortString(port); err != nil {
			return err
		}
		host = h
	} else if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
		host = hostport[1 : len(hostport)-1]
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	return ValidateHostname(host)
}

func validatePortString(port string) error {
	var n int
	if _, err := fmt.Sscanf(port, "%d", &n); err != nil || fmt.Sprint(n) != port {
		return fmt.Errorf("invalid port: %q", port)
	}
	return ValidatePort(n)
}

// ValidatePort validates a port number.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", port)
	}
	return nil
}

// ValidatePathBase validates a path prefix. Empty is allowed.
func ValidatePathBase(pathBase string) error {
	if pathBase == "" {
		return nil
	}
	if !strings.HasPrefix(pathBase, "/") {
		return fmt.Errorf("path base must start with '/', got: %s", pathBase)
	}
	if strings.ContainsAny(pathBase, "?#") {
		return fmt.Errorf("path base must not contain a query or fragment: %s", pathBase)
	}
	return nil
}

// ValidateDuration validates a duration is not negative.
func ValidateDuration(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("duration cannot be negative: %v", d)
	}
	return nil
}

// ValidateRatio validates a value in the closed range [0, 1].
func ValidateRatio(value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("ratio must be between 0 and 1, got: %f", value)
	}
	return nil
}

// ValidateHostname validates a hostname.
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname cannot be empty")
	}

	if len(hostname) > 253 {
		return fmt.Errorf("hostname too long: %d characters (max 253)", len(hostname))
	}

	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if label == "" {
			return fmt.Errorf("hostname has empty label")
		}
		if len(label) > 63 {
			return fmt.Errorf("hostname label too long: %d characters (max 63)", len(label))
		}
		for i, c := range label {
			if !isValidHostnameChar(c, i == 0, i == len(label)-1) {
				return fmt.Errorf("invalid character in hostname: %c", c)
			}
		}
	}

	return nil
}

// isValidHostnameChar checks if a character is valid in a hostname label.
func isValidHostnameChar(c rune, isFirst, isLast bool) bool {
	if c >= 'a' && c <= 'z' {
		return true
	}
	if c >= 'A' && c <= 'Z' {
		return true
	}
	if c >= '0' && c <= '9' {
		return true
	}
	// Underscores show up in internal service names.
	if c == '_' {
		return true
	}
	if c == '-' && !isFirst && !isLast {
		return true
	}
	return false
}
