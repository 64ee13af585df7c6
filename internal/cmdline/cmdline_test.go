package cmdline

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseQuoting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want []string
	}{
		{raw: "nbjob run --target pool", want: []string{"nbjob", "run", "--target", "pool"}},
		{raw: `em -batch "post process.tcl"`, want: []string{"em", "-batch", "post process.tcl"}},
		{raw: "em -batch 'post process.tcl'", want: []string{"em", "-batch", "post process.tcl"}},
		{raw: `em post\ process.tcl`, want: []string{"em", "post process.tcl"}},
		{raw: `em "a;b"`, want: []string{"em", "a;b"}},
	}
	for _, tc := range cases {
		tmpl, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tc.raw, err)
		}
		if got := tmpl.Args(); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Parse(%q): got=%v want=%v", tc.raw, got, tc.want)
		}
	}
}

func TestParseRejectsShellConstructs(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"nbjob run; rm -rf /",
		"nbstatus | head",
		"nbjob run && echo ok",
		"nbjob run > out.txt",
		"nbjob run `id`",
		"nbjob run $(id)",
		"nbjob run $HOME",
		`nbjob "unterminated`,
		`nbjob trailing\`,
		"   ",
		"bash -c 'nbjob run'",
		"/usr/bin/env FOO=1 sh -c x",
	} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q): expected error", raw)
		}
	}
}

func TestExpandSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	tmpl := MustParse("nbjob run --target {pool} --parallel slots={slots},slots_per_host={slots_per_host} --log-file {log} {solver}")
	got, err := tmpl.Expand(Vars{
		"pool":           "sc_normal",
		"slots":          "16",
		"slots_per_host": "8",
		"log":            "/work/em_x.log",
		"solver":         "em",
	})
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	want := []string{"nbjob", "run", "--target", "sc_normal", "--parallel", "slots=16,slots_per_host=8", "--log-file", "/work/em_x.log", "em"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected argv: got=%v want=%v", got, want)
	}
}

func TestExpandDropsEmptyOptionWithItsFlag(t *testing.T) {
	t.Parallel()

	tmpl := MustParse("nbjob run --target {pool} --class {class} --mail {mail} {solver}")
	got, err := tmpl.Expand(Vars{"pool": "p", "class": "", "mail": "me@example.com", "solver": "em"})
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	want := []string{"nbjob", "run", "--target", "p", "--mail", "me@example.com", "em"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected argv: got=%v want=%v", got, want)
	}
}

func TestExpandInputGlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"emsim_x2.in", "emsim_x1.in", "emsim_y1.in"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	tmpl := MustParse("em {input}")
	got, err := tmpl.Expand(Vars{"input": filepath.Join(dir, "emsim_x*.in")})
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	want := []string{"em", filepath.Join(dir, "emsim_x1.in"), filepath.Join(dir, "emsim_x2.in")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected argv: got=%v want=%v", got, want)
	}
}

func TestExpandInputGlobNoMatch(t *testing.T) {
	t.Parallel()

	tmpl := MustParse("em {input}")
	_, err := tmpl.Expand(Vars{"input": filepath.Join(t.TempDir(), "*.in")})
	if !errors.Is(err, ErrNoInputs) {
		t.Fatalf("expected ErrNoInputs, got %v", err)
	}
}

func TestExpandUnknownPlaceholder(t *testing.T) {
	t.Parallel()

	tmpl := MustParse("nbjob remove {jobid}")
	_, err := tmpl.Expand(Vars{"job": "123"})
	if err == nil || !strings.Contains(err.Error(), "{jobid}") {
		t.Fatalf("expected unknown placeholder error, got %v", err)
	}
}
