// Package rules turns heterogeneous rule-list files into one sorted,
// deduplicated canonical rule list.
package rules

import (
	"net/netip"
	"regexp"
	"strings"

	"clashforge/internal/model"
)

// Compiled once, shared by every call. A rule line is either a YAML list
// item ("- 'v'", "- \"v\"", "- v") or a bare list-file line; the dialect is
// never declared up front, so both are tried per line.
var (
	reListSingleQuoted = regexp.MustCompile(`^\s*- '([^'"]*)'$`)
	reListDoubleQuoted = regexp.MustCompile(`^\s*- "([^'"]*)"$`)
	reListBare         = regexp.MustCompile(`^\s*- ([^\s'"]+)$`)

	// Dot-separated labels of 1-63 alphanumeric/hyphen characters, no edge
	// hyphens, final label 2-6 letters.
	reDomain = regexp.MustCompile(`^(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,6}$`)
)

// filterMarkers rejects lines that cannot be rule payloads: comments, the
// provider section header, and rule keywords this pipeline does not emit.
var filterMarkers = []string{
	"#",
	"payload:",
	"USER-AGENT",
	"URL-REGEX",
	"PROCESS-NAME",
	"AND,",
	"OR,",
	"NOT,",
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// listItemValue extracts the literal value from a YAML list item. Quoted
// content wins over bare content.
func listItemValue(line string) (string, bool) {
	if m := reListSingleQuoted.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := reListDoubleQuoted.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := reListBare.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// Extract maps one raw rule-file line to zero or one canonical rule
// fragment ("TYPE,TARGET[,no-resolve]", no source tag yet). It is pure and
// never fails: unrecognized lines simply produce nothing.
func Extract(line string) (string, bool) {
	value, ok := listItemValue(line)
	if !ok {
		// Not a list item. Keep the raw line as candidate unless it is
		// noise we know about.
		if containsAny(line, filterMarkers) {
			return "", false
		}
		value = line
	}
	if value == "" {
		return "", false
	}

	switch {
	case model.HasKnownRulePrefix(value):
		return value, true
	case strings.HasPrefix(value, "+."):
		return string(model.RuleDomainSuffix) + "," + strings.TrimPrefix(value, "+."), true
	case reDomain.MatchString(value):
		return string(model.RuleDomain) + "," + value, true
	}
	if t, ok := cidrType(value); ok {
		return string(t) + "," + value + model.NoResolve, true
	}
	return "", false
}

// cidrType classifies a candidate as an IPv4 or IPv6 CIDR. netip enforces
// octet ranges, prefix bounds and compressed IPv6 forms.
func cidrType(s string) (model.RuleType, bool) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return "", false
	}
	if p.Addr().Is4() {
		return model.RuleIPCIDR, true
	}
	return model.RuleIPCIDR6, true
}
