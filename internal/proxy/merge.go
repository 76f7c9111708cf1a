// Package proxy reads and merges proxy-node records from one or more Clash
// configuration files.
package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/simplifiedchinese"
	"gopkg.in/yaml.v3"

	"clashforge/internal/model"
)

const stage = "merge_proxies"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type MergeError struct {
	AppError model.AppError
	Cause    error
}

func (e *MergeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *MergeError) Unwrap() error { return e.Cause }

// Merge reads every file in the comma-separated pathList and concatenates
// the mapping entries of the named sequence field (usually "proxies") from
// every YAML document, in file and document order.
func Merge(fsys afero.Fs, pathList, field string) ([]map[string]any, error) {
	var out []map[string]any
	for _, path := range strings.Split(pathList, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		nodes, err := readFile(fsys, path, field)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

func readFile(fsys afero.Fs, path, field string) ([]map[string]any, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, &MergeError{
			AppError: model.AppError{
				Code:    "MERGE_READ_ERROR",
				Message: "读取节点配置文件失败",
				Stage:   stage,
				Path:    path,
			},
			Cause: err,
		}
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, &MergeError{
			AppError: model.AppError{
				Code:    "MERGE_INVALID_ENCODING",
				Message: "节点配置文件不是合法的 UTF-8/GBK 文本",
				Stage:   stage,
				Path:    path,
			},
			Cause: err,
		}
	}

	var out []map[string]any
	dec := yaml.NewDecoder(strings.NewReader(text))
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &MergeError{
				AppError: model.AppError{
					Code:    "MERGE_PARSE_ERROR",
					Message: "节点配置文件解析失败",
					Stage:   stage,
					Path:    path,
				},
				Cause: err,
			}
		}
		seq, ok := doc[field].([]any)
		if !ok {
			continue
		}
		for _, item := range seq {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// decodeText strips a UTF-8 BOM and falls back to GBK for legacy exports.
func decodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
