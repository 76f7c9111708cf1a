// Package config loads the INI build configuration: the ordered rule
// sources and the pending proxy groups.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"

	"clashforge/internal/model"
)

const stage = "load_config"

var (
	// "300" or "300,,50": interval and optional tolerance.
	reCoords = regexp.MustCompile(`^(\d+)(?:,,(\d+))?$`)
	// "(a|b|c)": a rough shape check for an alternation filter pattern.
	reGroupAlt = regexp.MustCompile(`\(([^|()]+(\|[^|()]+)*)\)`)
)

// rulesetValuePrefixes are provider hints carried by some configs; the
// payload behind them is what matters here.
var rulesetValuePrefixes = []string{"clash-classic:", "clash-ipcidr:", "clash-domain:"}

type ConfigError struct {
	AppError model.AppError
	Cause    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// SelectGroup is one pending proxy group scanned from the configuration.
// Filter is compiled and validated at load time so an invalid expression
// surfaces before any download starts.
type SelectGroup struct {
	Name      string
	Type      string
	URL       string
	Interval  int
	Tolerance int
	Proxies   []string
	Filter    *regexp.Regexp
}

// Config is the scanned build configuration.
type Config struct {
	// RulesetNames preserves first-seen declaration order, unique.
	RulesetNames []string
	Sources      []model.RuleSource
	Groups       []SelectGroup
}

// Load reads and scans the INI file at path. Duplicate keys are the normal
// case here (one "ruleset=" line per source), so shadow values are enabled.
func Load(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, &ConfigError{
			AppError: model.AppError{
				Code:    "CONFIG_READ_ERROR",
				Message: "读取 ini 配置文件失败",
				Stage:   stage,
				Path:    path,
			},
			Cause: err,
		}
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, data)
	if err != nil {
		return nil, &ConfigError{
			AppError: model.AppError{
				Code:    "CONFIG_PARSE_ERROR",
				Message: "ini 配置文件解析失败",
				Stage:   stage,
				Path:    path,
			},
			Cause: err,
		}
	}

	cfg := &Config{}
	seenNames := make(map[string]struct{})
	for _, sec := range f.Sections() {
		for _, key := range sec.Keys() {
			switch key.Name() {
			case "ruleset":
				for _, value := range key.ValueWithShadows() {
					src, ok := parseRuleset(value)
					if !ok {
						continue
					}
					cfg.Sources = append(cfg.Sources, src)
					if _, dup := seenNames[src.Name]; !dup {
						seenNames[src.Name] = struct{}{}
						cfg.RulesetNames = append(cfg.RulesetNames, src.Name)
					}
				}
			case "custom_proxy_group":
				for _, value := range key.ValueWithShadows() {
					group, err := parseGroup(value)
					if err != nil {
						return nil, err
					}
					cfg.Groups = append(cfg.Groups, group)
				}
			}
		}
	}
	return cfg, nil
}

// parseRuleset scans one "name,value" declaration into a RuleSource:
// http(s) means remote, a "[]" placeholder means final, anything else is a
// local file path.
func parseRuleset(value string) (model.RuleSource, bool) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return model.RuleSource{}, false
	}
	name := strings.TrimSpace(parts[0])
	target := parts[1]
	for _, p := range rulesetValuePrefixes {
		target = strings.ReplaceAll(target, p, "")
	}
	target = strings.TrimSpace(target)
	if name == "" || target == "" {
		return model.RuleSource{}, false
	}

	switch {
	case strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "http://"):
		return model.RuleSource{Name: name, Kind: model.SourceRemote, URL: target}, true
	case strings.Contains(target, "[]"):
		return model.RuleSource{Name: name, Kind: model.SourceFinal, Template: target}, true
	default:
		return model.RuleSource{Name: name, Kind: model.SourceLocal, Path: target}, true
	}
}

// parseGroup scans one backtick-separated group declaration, e.g.
//
//	节点选择`select`[]DIRECT`[]香港`(HK|港)
//	自动选择`url-test`http://www.gstatic.com/generate_204`300,,50`.*
func parseGroup(value string) (SelectGroup, error) {
	parts := strings.Split(value, "`")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return SelectGroup{}, &ConfigError{
			AppError: model.AppError{
				Code:    "GROUP_PARSE_ERROR",
				Message: "custom_proxy_group 至少需要名称和类型",
				Stage:   stage,
				Snippet: value,
			},
		}
	}

	g := SelectGroup{Name: parts[0], Type: parts[1]}
	var filterSrc string
	for _, p := range parts[2:] {
		switch {
		case strings.Contains(p, "[]"):
			g.Proxies = append(g.Proxies, strings.Replace(p, "[]", "", 1))
		case strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "http://"):
			g.URL = p
		case strings.HasPrefix(p, "benchmark-url="):
			g.URL = strings.TrimPrefix(p, "benchmark-url=")
		default:
			if m := reCoords.FindStringSubmatch(p); m != nil {
				g.Interval, _ = strconv.Atoi(m[1])
				if m[2] != "" {
					g.Tolerance, _ = strconv.Atoi(m[2])
				}
				continue
			}
			if filterSrc == "" && (reGroupAlt.MatchString(p) || strings.Contains(p, ".*")) {
				filterSrc = p
			}
		}
	}

	if filterSrc != "" {
		re, err := regexp.Compile(filterSrc)
		if err != nil {
			return SelectGroup{}, &ConfigError{
				AppError: model.AppError{
					Code:    "CONFIG_INVALID_REGEXP",
					Message: fmt.Sprintf("分组 %s 的节点过滤表达式不合法", g.Name),
					Stage:   stage,
					Snippet: filterSrc,
				},
				Cause: err,
			}
		}
		g.Filter = re
	}
	return g, nil
}
