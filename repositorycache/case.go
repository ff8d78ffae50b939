package repositorycache

import (
	"regexp"
	"strings"
)

var (
	acronymEnd   = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	wordStart    = regexp.MustCompile(`([a-z])([A-Z0-9])`)
	nonAlnumRuns = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// toSnake turns a reflected type name into a cache tag, e.g.
// "*registry.HTTPRequest" becomes "registry_http_request".
func toSnake(s string) string {
	s = nonAlnumRuns.ReplaceAllString(s, "_")
	s = acronymEnd.ReplaceAllString(s, "${1}_${2}")
	s = wordStart.ReplaceAllString(s, "${1}_${2}")
	return strings.Trim(strings.ToLower(s), "_")
}
