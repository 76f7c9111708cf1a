package output

import (
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestFixIndent_TwoSpaceListItems(t *testing.T) {
	in := "proxies:\n    - name: a\n      port: 443\n"
	got, err := FixIndent(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "\n  - name: a") {
		t.Fatalf("list item not re-indented:\n%s", got)
	}
}

func TestFixIndent_PreservesKeyOrder(t *testing.T) {
	in := "zebra: 1\nalpha: 2\nmiddle: 3\n"
	got, err := FixIndent(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zi := strings.Index(got, "zebra")
	ai := strings.Index(got, "alpha")
	if zi < 0 || ai < 0 || zi > ai {
		t.Fatalf("key order lost:\n%s", got)
	}
}

func TestFixIndent_InvalidYAML(t *testing.T) {
	if _, err := FixIndent("a: [unclosed"); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestRenderRules(t *testing.T) {
	got, err := RenderRules([]string{"DOMAIN,a.com,X", "MATCH,X"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "rules:\n  - DOMAIN,a.com,X\n  - MATCH,X"
	if got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
}

func TestPageFileName(t *testing.T) {
	cases := []struct {
		base         string
		index, total int
		prefix       string
		want         string
	}{
		{"output.yaml", 0, 12, "snap", "output_snap_01.yaml"},
		{"output.yaml", 11, 12, "snap", "output_snap_12.yaml"},
		{"output.yaml", 0, 5, "", "output_1.yaml"},
		{"dir/out.yml", 2, 100, "", "dir/out_003.yml"},
		{"noext", 0, 1, "", "noext_1"},
	}
	for _, c := range cases {
		got := PageFileName(c.base, c.index, c.total, c.prefix, "")
		if got != c.want {
			t.Fatalf("PageFileName(%q,%d,%d,%q)=%q, want=%q", c.base, c.index, c.total, c.prefix, got, c.want)
		}
	}
}

func TestCleanOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, p := range []string{"output_snap_1.yaml", "output_snap_2.yaml", "output.yaml", "other.yaml"} {
		if err := afero.WriteFile(fs, p, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}
	if err := CleanOutputs(fs, "output.yaml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var left []string
	for _, p := range []string{"output_snap_1.yaml", "output_snap_2.yaml", "output.yaml", "other.yaml"} {
		if ok, _ := afero.Exists(fs, p); ok {
			left = append(left, p)
		}
	}
	sort.Strings(left)
	if len(left) != 2 || left[0] != "other.yaml" || left[1] != "output.yaml" {
		t.Fatalf("left=%v, want=[other.yaml output.yaml]", left)
	}
}

func TestWriteConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := WriteConfig(fs, "out/output_1.yaml", "a: 1", "b: 2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := afero.ReadFile(fs, "out/output_1.yaml")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "a: 1\nb: 2\n" {
		t.Fatalf("content=%q", got)
	}
}
