// Package output renders and places the rebuilt configuration files.
package output

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"clashforge/internal/model"
)

const stage = "write_output"

// Matches every line beginning with optional spaces and a dash item marker;
// used to pin list items to two-space indentation.
var reDashLine = regexp.MustCompile(`(?m)^( *)- `)

type WriteError struct {
	AppError model.AppError
	Cause    error
}

func (e *WriteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// FixIndent re-emits a YAML document with uniform two-space indentation,
// preserving key order. The round-trip also normalizes quoting: scalars only
// stay quoted when YAML requires it.
func FixIndent(yamlStr string) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(yamlStr), &doc); err != nil {
		return "", &WriteError{
			AppError: model.AppError{
				Code:    "OUTPUT_INVALID_YAML",
				Message: "YAML 内容不合法，无法调整缩进",
				Stage:   stage,
			},
			Cause: err,
		}
	}
	if doc.Kind == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", &WriteError{
			AppError: model.AppError{
				Code:    "OUTPUT_INVALID_YAML",
				Message: "YAML 重新序列化失败",
				Stage:   stage,
			},
			Cause: err,
		}
	}
	_ = enc.Close()
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// RenderRules serializes the combined rule lines as the trailing "rules"
// block of a Clash configuration, list items pinned to two-space indent.
func RenderRules(lines []string) (string, error) {
	data, err := yaml.Marshal(struct {
		Rules []string `yaml:"rules"`
	}{Rules: lines})
	if err != nil {
		return "", &WriteError{
			AppError: model.AppError{
				Code:    "OUTPUT_RENDER_ERROR",
				Message: "规则列表序列化失败",
				Stage:   stage,
			},
			Cause: err,
		}
	}
	return strings.TrimSuffix(reDashLine.ReplaceAllString(string(data), "  - "), "\n"), nil
}

// RenderProxies serializes one page of proxy nodes as a "proxies" block.
func RenderProxies(items []map[string]any) (string, error) {
	data, err := yaml.Marshal(struct {
		Proxies []map[string]any `yaml:"proxies"`
	}{Proxies: items})
	if err != nil {
		return "", &WriteError{
			AppError: model.AppError{
				Code:    "OUTPUT_RENDER_ERROR",
				Message: "节点列表序列化失败",
				Stage:   stage,
			},
			Cause: err,
		}
	}
	return FixIndent(string(data))
}

// PageFileName derives the output path for one page: the base path's stem
// plus optional prefix, a 1-based page number zero-padded to the total's
// width, an optional suffix, and the original extension.
//
//	PageFileName("output.yaml", 0, 12, "snap", "") = "output_snap_01.yaml"
func PageFileName(basePath string, index, total int, prefix, suffix string) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	width := len(fmt.Sprintf("%d", total))
	name := stem
	if prefix != "" {
		name += "_" + prefix
	}
	name += fmt.Sprintf("_%0*d", width, index+1)
	if suffix != "" {
		name += "_" + suffix
	}
	return filepath.Join(dir, name+ext)
}

// CleanOutputs deletes leftovers of a previous run: every "<stem>_*<ext>"
// sibling of basePath.
func CleanOutputs(fsys afero.Fs, basePath string) error {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	pattern := filepath.Join(dir, stem+"_*"+ext)
	matches, err := afero.Glob(fsys, pattern)
	if err != nil {
		return &WriteError{
			AppError: model.AppError{
				Code:    "OUTPUT_CLEAN_ERROR",
				Message: "清理历史输出文件失败",
				Stage:   stage,
				Path:    pattern,
			},
			Cause: err,
		}
	}
	for _, m := range matches {
		if err := fsys.Remove(m); err != nil {
			return &WriteError{
				AppError: model.AppError{
					Code:    "OUTPUT_CLEAN_ERROR",
					Message: "删除历史输出文件失败",
					Stage:   stage,
					Path:    m,
				},
				Cause: err,
			}
		}
	}
	return nil
}

// WriteConfig joins the rendered sections with blank-line-free newlines and
// writes the final configuration file.
func WriteConfig(fsys afero.Fs, path string, sections ...string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return writeErr(path, err)
		}
	}
	content := strings.Join(sections, "\n") + "\n"
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		return writeErr(path, err)
	}
	return nil
}

func writeErr(path string, err error) error {
	return &WriteError{
		AppError: model.AppError{
			Code:    "OUTPUT_WRITE_ERROR",
			Message: "写入输出文件失败",
			Stage:   stage,
			Path:    path,
		},
		Cause: err,
	}
}
