// Package groups rewrites the pending proxy groups for one output page.
package groups

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"clashforge/internal/config"
	"clashforge/internal/model"
)

const stage = "write_output"

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// renderGroup is the serialized shape; the filter pattern never appears in
// the output.
type renderGroup struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	URL       string   `yaml:"url,omitempty"`
	Interval  int      `yaml:"interval,omitempty"`
	Tolerance int      `yaml:"tolerance,omitempty"`
	Proxies   []string `yaml:"proxies"`
}

type proxyGroups struct {
	Groups []renderGroup `yaml:"proxy-groups"`
}

// Render fills each pending group with the page's node names that match its
// filter, resolves empty groups and serializes the result as a
// "proxy-groups" YAML document.
//
// A group that ends up empty but is referenced by a ruleset keeps the full
// ruleset-name list so every rule action resolves; an empty group nothing
// references is dropped, and its name is purged from the member lists of the
// surviving groups.
func Render(pending []config.SelectGroup, pageNames, rulesetNames []string) (string, error) {
	rulesetSet := make(map[string]struct{}, len(rulesetNames))
	for _, n := range rulesetNames {
		rulesetSet[n] = struct{}{}
	}

	out := make([]renderGroup, 0, len(pending))
	var removed []string
	for _, g := range pending {
		rg := renderGroup{
			Name:      g.Name,
			Type:      g.Type,
			URL:       g.URL,
			Interval:  g.Interval,
			Tolerance: g.Tolerance,
			Proxies:   append([]string(nil), g.Proxies...),
		}
		if g.Filter != nil {
			for _, name := range pageNames {
				if g.Filter.MatchString(name) {
					rg.Proxies = append(rg.Proxies, name)
				}
			}
		}
		if len(rg.Proxies) == 0 {
			if _, referenced := rulesetSet[rg.Name]; referenced {
				rg.Proxies = append(rg.Proxies, rulesetNames...)
			} else {
				removed = append(removed, rg.Name)
				continue
			}
		}
		out = append(out, rg)
	}

	removedSet := make(map[string]struct{}, len(removed))
	for _, n := range removed {
		removedSet[n] = struct{}{}
	}
	for i := range out {
		kept := out[i].Proxies[:0]
		for _, p := range out[i].Proxies {
			if _, gone := removedSet[p]; !gone {
				kept = append(kept, p)
			}
		}
		out[i].Proxies = kept
	}

	data, err := yaml.Marshal(proxyGroups{Groups: out})
	if err != nil {
		return "", &RenderError{
			AppError: model.AppError{
				Code:    "GROUP_RENDER_ERROR",
				Message: "代理分组序列化失败",
				Stage:   stage,
			},
			Cause: err,
		}
	}
	return string(data), nil
}
