package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBenchmarks(t *testing.T) {
	out, err := execute(t, "benchmarks")
	if err != nil {
		t.Fatalf("benchmarks error = %v", err)
	}
	if !strings.Contains(out, "benchmark://cbench-v0/crc32\n") {
		t.Errorf("output missing crc32:\n%s", out)
	}
}

func TestFuzz(t *testing.T) {
	out, err := execute(t, "fuzz", "cbench-v0/crc32", "--episodes", "2", "--seed", "7")
	if err != nil {
		t.Fatalf("fuzz error = %v", err)
	}
	if !strings.HasPrefix(out, "ok: 2 episodes") {
		t.Errorf("got output %q", out)
	}
}

func TestFuzz_UnknownBenchmark(t *testing.T) {
	if _, err := execute(t, "fuzz", "nope-v0/x", "--episodes", "1"); err == nil {
		t.Error("expected error for unknown benchmark")
	}
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optenv.yaml")
	if err := os.WriteFile(path, []byte("observer: nonexistent\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "--config", path, "fuzz", "cbench-v0/crc32", "--episodes", "1"); err == nil {
		t.Error("expected error for unknown observer")
	}

	if _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "benchmarks"); err == nil {
		t.Error("expected error for missing config file")
	}
}
