package groups

import (
	"regexp"
	"strings"
	"testing"

	"clashforge/internal/config"
)

func TestRender_FilterFillsMembers(t *testing.T) {
	pending := []config.SelectGroup{
		{Name: "香港", Type: "select", Proxies: []string{"DIRECT"}, Filter: regexp.MustCompile("HK|港")},
	}
	got, err := Render(pending, []string{"HK-01", "JP-01", "香港-02"}, []string{"香港"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"proxy-groups:", "name: 香港", "DIRECT", "HK-01", "香港-02"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "JP-01") {
		t.Fatalf("JP-01 must not match the filter:\n%s", got)
	}
}

func TestRender_EmptyReferencedGroupGetsRulesetNames(t *testing.T) {
	pending := []config.SelectGroup{
		{Name: "漏网之鱼", Type: "select", Filter: regexp.MustCompile("nomatch")},
	}
	got, err := Render(pending, []string{"HK-01"}, []string{"漏网之鱼", "直连"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "漏网之鱼") || !strings.Contains(got, "直连") {
		t.Fatalf("referenced empty group must carry ruleset names:\n%s", got)
	}
}

func TestRender_EmptyUnreferencedGroupRemovedAndPurged(t *testing.T) {
	pending := []config.SelectGroup{
		{Name: "孤儿组", Type: "select", Filter: regexp.MustCompile("nomatch")},
		{Name: "节点选择", Type: "select", Proxies: []string{"DIRECT", "孤儿组"}},
	}
	got, err := Render(pending, []string{"HK-01"}, []string{"直连"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "孤儿组") {
		t.Fatalf("orphan group must be removed and purged:\n%s", got)
	}
	if !strings.Contains(got, "DIRECT") {
		t.Fatalf("surviving members must stay:\n%s", got)
	}
}

func TestRender_URLTestFields(t *testing.T) {
	pending := []config.SelectGroup{
		{
			Name:      "自动",
			Type:      "url-test",
			URL:       "http://www.gstatic.com/generate_204",
			Interval:  300,
			Tolerance: 50,
			Filter:    regexp.MustCompile(".*"),
		},
	}
	got, err := Render(pending, []string{"HK-01"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"type: url-test", "interval: 300", "tolerance: 50", "generate_204"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}
