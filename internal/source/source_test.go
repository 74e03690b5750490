package source

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitRef(t *testing.T) {
	cases := []struct {
		src, url, ref string
	}{
		{"https://github.com/acme/models.git", "https://github.com/acme/models.git", ""},
		{"https://github.com/acme/models.git#v1.2", "https://github.com/acme/models.git", "v1.2"},
		{"git://github.com/acme/models#main", "git://github.com/acme/models", "main"},
	}
	for _, tc := range cases {
		url, ref := splitRef(tc.src)
		if url != tc.url || ref != tc.ref {
			t.Fatalf("splitRef(%q) = %q, %q; want %q, %q", tc.src, url, ref, tc.url, tc.ref)
		}
	}
}

func TestIsGitSource(t *testing.T) {
	if !isGitSource("git://github.com/acme/models") {
		t.Fatalf("git:// prefix should be a git source")
	}
	if !isGitSource("https://github.com/acme/models.git#dev") {
		t.Fatalf(".git suffix with ref should be a git source")
	}
	if isGitSource("https://example.com/code.tar.gz") {
		t.Fatalf("tarball URL should not be a git source")
	}
}

func TestFetchTarGzArchive(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("def handler(ctx): pass\n")
	if err := tw.WriteHeader(&tar.Header{Name: "app/main.py", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	dest := t.TempDir()
	if err := Fetch(context.Background(), srv.URL+"/code.tar.gz", dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "app", "main.py"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("extracted content = %q, want %q", got, content)
	}
}

func TestFetchRejectsUnsupportedArchive(t *testing.T) {
	err := Fetch(context.Background(), "https://example.com/code.rar", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unsupported archive type") {
		t.Fatalf("expected unsupported archive error, got %v", err)
	}
}

func TestFetchRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("pwned")
	if err := tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	tw.Write(content)
	tw.Close()
	gz.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	err := Fetch(context.Background(), srv.URL+"/code.tar.gz", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "escapes destination") {
		t.Fatalf("expected escape rejection, got %v", err)
	}
}

func TestFetchLocalDirectory(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "handler.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := Fetch(context.Background(), src, dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "handler.py")); err != nil {
		t.Fatalf("expected copied file: %v", err)
	}
}
