package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// executeCommand runs courier with args and returns what it printed.
func executeCommand(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := newRootCmd()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "courier.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

// serviceYAML renders a services block; each service maps to its endpoint
// URLs.
func serviceYAML(services map[string][]string) string {
	var b strings.Builder
	b.WriteString("services:\n")
	for name, urls := range services {
		fmt.Fprintf(&b, "  %s:\n    endpoints:\n", name)
		for _, u := range urls {
			fmt.Fprintf(&b, "      - url: %s\n", u)
		}
	}
	return b.String()
}
