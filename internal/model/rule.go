package model

import "strings"

// RuleType is the closed taxonomy of canonical rule line types.
type RuleType string

const (
	RuleDomain        RuleType = "DOMAIN"
	RuleDomainSuffix  RuleType = "DOMAIN-SUFFIX"
	RuleDomainKeyword RuleType = "DOMAIN-KEYWORD"
	RuleIPCIDR        RuleType = "IP-CIDR"
	RuleIPCIDR6       RuleType = "IP-CIDR6"
	RuleSrcIPCIDR     RuleType = "SRC-IP-CIDR"
	RuleGeoIP         RuleType = "GEOIP"
	RuleGeoSite       RuleType = "GEOSITE"
	RuleDstPort       RuleType = "DST-PORT"
	RuleSrcPort       RuleType = "SRC-PORT"
	RuleMatch         RuleType = "MATCH"
)

// KnownRuleTypes lists the types a normalized line may start with. A line
// carrying any of these prefixes is already canonical and is kept verbatim.
// MATCH is absent on purpose: catch-all rules are declared as final sources
// and never appear inside rule files.
var KnownRuleTypes = []RuleType{
	RuleDomainSuffix,
	RuleDomainKeyword,
	RuleDomain,
	RuleIPCIDR6,
	RuleIPCIDR,
	RuleSrcIPCIDR,
	RuleGeoIP,
	RuleGeoSite,
	RuleDstPort,
	RuleSrcPort,
}

// HasKnownRulePrefix reports whether s starts with "<TYPE>," for one of the
// known rule types.
func HasKnownRulePrefix(s string) bool {
	for _, t := range KnownRuleTypes {
		if strings.HasPrefix(s, string(t)+",") {
			return true
		}
	}
	return false
}

// NoResolve is the flag appended to IP rules whose destination must not be
// resolved before matching.
const NoResolve = ",no-resolve"

// SourceKind tells where a rule source's content comes from.
type SourceKind int

const (
	// SourceRemote is a rule file downloaded over HTTP.
	SourceRemote SourceKind = iota
	// SourceLocal is a rule file read from disk.
	SourceLocal
	// SourceFinal is a literal catch-all rule template ("[]..."), placed
	// after the sorted block without normalization.
	SourceFinal
)

func (k SourceKind) String() string {
	switch k {
	case SourceRemote:
		return "remote"
	case SourceLocal:
		return "local"
	case SourceFinal:
		return "final"
	default:
		return "unknown"
	}
}

// RuleSource is one configured origin of rules. Exactly one of URL, Path and
// Template is set, matching Kind. Name tags every rule the source produces.
type RuleSource struct {
	Name     string
	Kind     SourceKind
	URL      string
	Path     string
	Template string
}
