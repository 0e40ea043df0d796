package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func executeCommand(t *testing.T, ctx context.Context, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(ctx, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOWNLINK_QUIET", "")
	t.Setenv("TQDM_DISABLE", "")
}

// fileServer serves "<name> contents" for every path and 404 for /missing*.
func fileServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(filepath.Base(r.URL.Path) + " contents"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLIHelp(t *testing.T) {
	code, stdout, _ := executeCommand(t, context.Background(), "--help")
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}

	for _, phrase := range []string{"downlink", "--output", "-o", "--dir", "-d", "--quiet", "-q", "--jobs", "DOWNLINK_QUIET"} {
		if !strings.Contains(stdout, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRequiresURL(t *testing.T) {
	code, _, stderr := executeCommand(t, context.Background())
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.HasPrefix(stderr, "Error: ") {
		t.Errorf("stderr = %q, want an Error: line", stderr)
	}
}

func TestCLIRejectsNonHTTPURL(t *testing.T) {
	code, _, stderr := executeCommand(t, context.Background(), "ftp://example.com/file", "-q")
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "unsupported URL scheme") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCLITwoURLsIntoNewDirectory(t *testing.T) {
	quietEnv(t)
	t.Chdir(t.TempDir())
	srv := fileServer(t, nil)

	code, stdout, stderr := executeCommand(t, context.Background(),
		srv.URL+"/first.txt", srv.URL+"/second.txt", "--dir", "out/", "-q")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(cwd, "out", "first.txt"), filepath.Join(cwd, "out", "second.txt")}
	got := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("stdout lines = %v, want %v", got, want)
	}

	for _, p := range want {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", p, err)
		}
		if string(data) != filepath.Base(p)+" contents" {
			t.Errorf("%s content = %q", p, data)
		}
	}
}

func TestCLISingleOutputFile(t *testing.T) {
	quietEnv(t)
	srv := fileServer(t, nil)
	output := filepath.Join(t.TempDir(), "nested", "renamed.bin")

	code, stdout, stderr := executeCommand(t, context.Background(), srv.URL+"/orig.bin", "-o", output, "-q")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != output {
		t.Errorf("stdout = %q, want %q", stdout, output)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestCLISingleOutputWithTrailingSlashIsDirectory(t *testing.T) {
	quietEnv(t)
	t.Chdir(t.TempDir())
	srv := fileServer(t, nil)

	code, stdout, stderr := executeCommand(t, context.Background(), srv.URL+"/orig.bin", "-o", "out/", "-q")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(cwd, "out", "orig.bin"); strings.TrimSpace(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestCLIRejectsOversizedChunk(t *testing.T) {
	quietEnv(t)
	srv := fileServer(t, nil)
	dir := t.TempDir()

	code, _, stderr := executeCommand(t, context.Background(), srv.URL+"/a.bin", "-d", dir, "-q", "--chunk-size", "64TB")
	if code != exitError {
		t.Fatalf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "chunk-size too large") {
		t.Errorf("stderr = %q", stderr)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("nothing should be written, found %d entries", len(entries))
	}
}

func TestCLIHTTPErrorAbortsBatch(t *testing.T) {
	quietEnv(t)
	var hits atomic.Int32
	srv := fileServer(t, &hits)
	dir := t.TempDir()

	code, stdout, stderr := executeCommand(t, context.Background(),
		srv.URL+"/missing.bin", srv.URL+"/b.bin", srv.URL+"/c.bin", "-d", dir, "-q")
	if code != exitError {
		t.Fatalf("exit code = %d, want %d", code, exitError)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server received %d requests, want 1", n)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.HasPrefix(stderr, "Error: ") || !strings.Contains(stderr, "404") {
		t.Errorf("stderr = %q, want an Error: line mentioning 404", stderr)
	}
	for _, name := range []string{"b.bin", "c.bin"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not be downloaded", name)
		}
	}
}

func TestCLIProgressOutput(t *testing.T) {
	srv := fileServer(t, nil)

	t.Run("enabled", func(t *testing.T) {
		quietEnv(t)
		out := filepath.Join(t.TempDir(), "p.bin")
		code, _, stderr := executeCommand(t, context.Background(), srv.URL+"/p.bin", "-o", out)
		if code != exitOK {
			t.Fatalf("exit code = %d, stderr = %q", code, stderr)
		}
		if !strings.Contains(stderr, "p.bin") {
			t.Errorf("stderr should show a progress bar labelled p.bin, got %q", stderr)
		}
	})

	t.Run("quiet flag", func(t *testing.T) {
		quietEnv(t)
		out := filepath.Join(t.TempDir(), "p.bin")
		code, _, stderr := executeCommand(t, context.Background(), srv.URL+"/p.bin", "-o", out, "--quiet")
		if code != exitOK {
			t.Fatalf("exit code = %d, stderr = %q", code, stderr)
		}
		if stderr != "" {
			t.Errorf("stderr = %q, want no progress output", stderr)
		}
		if data, _ := os.ReadFile(out); string(data) != "p.bin contents" {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("environment toggle", func(t *testing.T) {
		quietEnv(t)
		t.Setenv("DOWNLINK_QUIET", "1")
		out := filepath.Join(t.TempDir(), "p.bin")
		code, _, stderr := executeCommand(t, context.Background(), srv.URL+"/p.bin", "-o", out)
		if code != exitOK {
			t.Fatalf("exit code = %d, stderr = %q", code, stderr)
		}
		if stderr != "" {
			t.Errorf("stderr = %q, want no progress output", stderr)
		}
	})

	t.Run("json", func(t *testing.T) {
		quietEnv(t)
		out := filepath.Join(t.TempDir(), "p.bin")
		code, _, stderr := executeCommand(t, context.Background(), srv.URL+"/p.bin", "-o", out, "--progress", "json")
		if code != exitOK {
			t.Fatalf("exit code = %d, stderr = %q", code, stderr)
		}
		if !strings.Contains(stderr, `"status":"completed"`) {
			t.Errorf("stderr should contain a completed JSON status, got %q", stderr)
		}
	})
}

func TestCLIParallelJobsKeepOrder(t *testing.T) {
	quietEnv(t)
	srv := fileServer(t, nil)
	dir := t.TempDir()

	code, stdout, stderr := executeCommand(t, context.Background(),
		srv.URL+"/1", srv.URL+"/2", srv.URL+"/3", srv.URL+"/4", "-d", dir, "-j", "3")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}

	var want []string
	for _, name := range []string{"1", "2", "3", "4"} {
		want = append(want, filepath.Join(dir, name))
	}
	if got := strings.Split(strings.TrimRight(stdout, "\n"), "\n"); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("stdout lines = %v, want %v", got, want)
	}
	if stderr != "" {
		t.Errorf("parallel runs should not draw bars, stderr = %q", stderr)
	}
}

func TestCLISHA256RequiresSingleURL(t *testing.T) {
	code, _, stderr := executeCommand(t, context.Background(),
		"http://example.com/a", "http://example.com/b", "--sha256", strings.Repeat("ab", 32))
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "single URL") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCLIInterrupt(t *testing.T) {
	quietEnv(t)
	srv := fileServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, stdout, stderr := executeCommand(t, ctx, srv.URL+"/x.bin", "-d", t.TempDir(), "-q")
	if code != exitInterrupted {
		t.Fatalf("exit code = %d, want %d (stderr %q)", code, exitInterrupted, stderr)
	}
	if strings.TrimSpace(stderr) != "Download cancelled." {
		t.Errorf("stderr = %q, want cancellation notice", stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
}
