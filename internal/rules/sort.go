package rules

import (
	"bytes"
	"net/netip"
	"runtime"
	"sort"
	"strings"
	"sync"

	"clashforge/internal/model"
)

// sortKey carries everything the comparator needs so no parsing happens
// inside the sort loop.
type sortKey struct {
	typ    string
	target string
	addr   [16]byte
	hasIP  bool
	line   string
}

func makeKey(line string) sortKey {
	k := sortKey{line: line}
	rest := line
	if i := strings.IndexByte(rest, ','); i >= 0 {
		k.typ = rest[:i]
		rest = rest[i+1:]
	} else {
		k.typ = rest
		rest = ""
	}
	if i := strings.IndexByte(rest, ','); i >= 0 {
		k.target = rest[:i]
	} else {
		k.target = rest
	}
	if k.typ == string(model.RuleIPCIDR) || k.typ == string(model.RuleIPCIDR6) {
		host := k.target
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		if a, err := netip.ParseAddr(host); err == nil {
			k.addr = a.As16()
			k.hasIP = true
		}
	}
	return k
}

func keyLess(a, b *sortKey) bool {
	if a.typ != b.typ {
		return a.typ < b.typ
	}
	if a.typ == string(model.RuleIPCIDR) || a.typ == string(model.RuleIPCIDR6) {
		// Numeric order within each IP group. Unparseable addresses form a
		// defined bucket before all parseable ones.
		if a.hasIP != b.hasIP {
			return !a.hasIP
		}
		if a.hasIP {
			if c := bytes.Compare(a.addr[:], b.addr[:]); c != 0 {
				return c < 0
			}
		}
	}
	if a.target != b.target {
		return a.target < b.target
	}
	return a.line < b.line
}

// SortDedup orders canonical rule lines deterministically and removes
// adjacent exact duplicates. Primary key is the plain type string (this
// keeps IP-CIDR and IP-CIDR6 in separate contiguous groups), secondary key
// is numeric for IP types and lexicographic otherwise; the full line breaks
// remaining ties so the order is total.
//
// Key extraction is the expensive part and runs across all CPUs; the sort
// itself is single sort.Slice over precomputed keys.
func SortDedup(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}

	keys := make([]sortKey, len(lines))
	workers := runtime.NumCPU()
	if workers > len(lines) {
		workers = len(lines)
	}
	chunk := (len(lines) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(lines) {
			hi = len(lines)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				keys[i] = makeKey(lines[i])
			}
		}(lo, hi)
	}
	wg.Wait()

	sort.Slice(keys, func(i, j int) bool {
		return keyLess(&keys[i], &keys[j])
	})

	out := make([]string, 0, len(keys))
	for i := range keys {
		if i > 0 && keys[i].line == keys[i-1].line {
			continue
		}
		out = append(out, keys[i].line)
	}
	return out
}
