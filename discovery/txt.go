package discovery

import "strings"

// TXT record keys.
const (
	TXTKeyVersion    = "txtvers"
	TXTKeyOSCVersion = "version"
	TXTKeyTypes      = "types"
)

// TXT returns the TXT records advertised for a server supporting types.
func TXT(types string) []string {
	return []string{
		TXTKeyVersion + "=1",
		TXTKeyOSCVersion + "=1.0",
		TXTKeyTypes + "=" + types,
	}
}

// ParseTXT splits TXT records into key/value pairs. Keys are case-insensitive
// and stored lowercased; a record without '=' maps to "". The first occurrence
// of a key wins.
func ParseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		if r == "" {
			continue
		}
		k, v, _ := strings.Cut(r, "=")
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		if _, dup := m[k]; dup {
			continue
		}
		m[k] = v
	}
	return m
}
