// Package node deduplicates proxy-node records by content hash and chunks
// the survivors into fixed-size pages.
package node

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"clashforge/internal/model"
)

const suffixLen = 6

// canonicalHash computes a field-order-independent identity for one item:
// serialize to a generic structured value, drop the ignored fields, then
// re-serialize (encoding/json emits map keys in sorted order, recursively)
// and hash. Volatile fields like the display name never influence identity.
func canonicalHash[T any](item T, ignored []string) ([32]byte, bool) {
	raw, err := json.Marshal(item)
	if err != nil {
		return [32]byte{}, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return [32]byte{}, false
	}
	if m, ok := v.(map[string]any); ok {
		for _, f := range ignored {
			delete(m, f)
		}
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return [32]byte{}, false
	}
	return blake3.Sum256(canon), true
}

const base62Charset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func base62(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Charset[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// nameSuffix derives the deterministic rename suffix for a colliding display
// name: fast hash of the name, base62-encoded, truncated. Same input, same
// suffix, on every run.
func nameSuffix(name string) string {
	s := base62(xxhash.Sum64String(name))
	if len(s) > suffixLen {
		s = s[:suffixLen]
	}
	return s
}

// DedupAndPaginate removes content-duplicate items (first occurrence wins,
// original order preserved), chunks the survivors into pageSize windows (the
// last may be shorter) and rewrites colliding display names.
//
// Name bookkeeping is global across the whole sequence, not per page: the
// second "node-A" gets a suffix even when it lands on another page. getName
// reports whether the item has a name at all; setName mutates it in place.
// An item that cannot be serialized is kept unconditionally rather than
// risking a silent drop.
func DedupAndPaginate[T any](
	items []T,
	pageSize int,
	ignoredFields []string,
	getName func(T) (string, bool),
	setName func(*T, string),
) []model.Page[T] {
	seen := make(map[[32]byte]struct{}, len(items))
	unique := make([]T, 0, len(items))
	for _, item := range items {
		sum, ok := canonicalHash(item, ignoredFields)
		if ok {
			if _, dup := seen[sum]; dup {
				continue
			}
			seen[sum] = struct{}{}
		}
		unique = append(unique, item)
	}

	if pageSize < 1 {
		pageSize = len(unique)
		if pageSize < 1 {
			pageSize = 1
		}
	}

	nameCounts := make(map[string]int)
	var pages []model.Page[T]
	for start := 0; start < len(unique); start += pageSize {
		end := start + pageSize
		if end > len(unique) {
			end = len(unique)
		}
		window := unique[start:end]

		page := model.Page[T]{Items: window}
		for i := range window {
			name, ok := getName(window[i])
			if !ok {
				continue
			}
			if nameCounts[name] > 0 {
				renamed := name + "-" + nameSuffix(name)
				setName(&window[i], renamed)
				page.Names = append(page.Names, renamed)
			} else {
				page.Names = append(page.Names, name)
			}
			nameCounts[name]++
		}
		pages = append(pages, page)
	}
	return pages
}
