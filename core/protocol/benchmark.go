package protocol

import (
	"fmt"
	"strings"
)

// BenchmarkScheme prefixes every canonical benchmark URI.
const BenchmarkScheme = "benchmark://"

// ParseBenchmarkURI normalizes a benchmark identity into canonical form
// "benchmark://<dataset>/<name>". The scheme is optional on input and the
// dataset segment is case-insensitive, so "cBench-v0/crc32" and
// "benchmark://cbench-v0/crc32" name the same benchmark. Every path segment
// must be non-empty and neither "." nor "..", so a benchmark has exactly one
// canonical identity.
func ParseBenchmarkURI(raw string) (string, error) {
	rest := strings.TrimSpace(raw)
	rest = strings.TrimPrefix(rest, BenchmarkScheme)

	dataset, name, ok := strings.Cut(rest, "/")
	if !ok || dataset == "" || name == "" {
		return "", fmt.Errorf("%w: malformed uri %q", ErrBenchmarkNotFound, raw)
	}
	if strings.Contains(dataset, ":") || strings.ContainsAny(rest, "\\\x00") {
		return "", fmt.Errorf("%w: malformed uri %q", ErrBenchmarkNotFound, raw)
	}
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: malformed uri %q", ErrBenchmarkNotFound, raw)
		}
	}

	return BenchmarkScheme + strings.ToLower(dataset) + "/" + name, nil
}

// BenchmarkKey strips the scheme from a canonical URI, yielding the
// "<dataset>/<name>" key used by benchmark stores.
func BenchmarkKey(uri string) string {
	return strings.TrimPrefix(uri, BenchmarkScheme)
}
