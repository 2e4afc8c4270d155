package dedupe

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"listing-agent/internal/domain/entity"

	"github.com/cespare/xxhash/v2"
)

var trackingParams = map[string]struct{}{
	"gclid":  {},
	"fbclid": {},
	"ref":    {},
	"mc_cid": {},
	"mc_eid": {},
	"_ga":    {},
}

// Fingerprint hashes content after lowercasing and collapsing whitespace.
func Fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// RecordsContent renders records in a stable form suitable for Fingerprint.
func RecordsContent(records []entity.ExtractionRecord) string {
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(r.Name)
		sb.WriteString("\t")
		sb.WriteString(r.ContextText())
		sb.WriteString("\n")
	}
	return sb.String()
}

// NormalizeURL reduces a URL to the parts that identify a listing page:
// lowercase scheme and host, no default port, no trailing slash, no
// fragment, no tracking parameters, remaining query sorted.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		if isTracking(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var qs []string
	for _, k := range keys {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			qs = append(qs, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}

	out := scheme + "://" + host + path
	if len(qs) > 0 {
		out += "?" + strings.Join(qs, "&")
	}
	return out
}

func isTracking(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := trackingParams[k]
	return ok
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
