package main

import (
	"strings"
	"testing"
)

func lintSources(t *testing.T, files map[string]string) []violation {
	t.Helper()
	l := newLinter()
	for name, src := range files {
		if err := l.lintFile(name, src); err != nil {
			t.Fatalf("lintFile(%s): %v", name, err)
		}
	}
	return l.finish()
}

func TestLintAcceptsMarkedStatements(t *testing.T) {
	src := "package q\n" +
		"const cols = `id, amount, created_at`\n" +
		"const QSelect = `--sql 11111111-2222-3333-4444-555555555555\nselect ` + cols + ` from needs;`\n" +
		"const QUpdate = `--sql 11111111-2222-3333-4444-666666666666\nupdate needs set status = $2 where id = $1;`\n"

	if vs := lintSources(t, map[string]string{"q.go": src}); len(vs) != 0 {
		t.Fatalf("expected no violations, got %v", vs)
	}
}

func TestLintReportsMissingMarker(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"plain statement", "package q\nconst QDelete = `delete from needs where id = $1;`\n"},
		{"malformed uuid", "package q\nconst QDelete = `--sql not-a-uuid\ndelete from needs;`\n"},
		{"concatenated", "package q\nconst cols = `id`\nconst QSelect = `select ` + cols + ` from needs;`\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vs := lintSources(t, map[string]string{"q.go": tc.src})
			if len(vs) != 1 {
				t.Fatalf("expected one violation, got %v", vs)
			}
			if !strings.Contains(vs[0].message, "missing or invalid") {
				t.Fatalf("unexpected message %q", vs[0].message)
			}
		})
	}
}

func TestLintReportsDuplicateMarkers(t *testing.T) {
	a := "package q\nconst QA = `--sql 11111111-2222-3333-4444-555555555555\nselect 1;`\n"
	b := "package q\nconst QB = `--sql 11111111-2222-3333-4444-555555555555\nselect 2;`\n"

	vs := lintSources(t, map[string]string{"a.go": a, "b.go": b})
	if len(vs) != 1 {
		t.Fatalf("expected one duplicate violation, got %v", vs)
	}
	if !strings.Contains(vs[0].message, "duplicate marker") {
		t.Fatalf("unexpected message %q", vs[0].message)
	}
}
