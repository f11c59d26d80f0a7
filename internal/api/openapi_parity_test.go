package api

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestOpenAPIContainsImplementedPaths(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	openAPIPath := filepath.Join(repoRoot, "api", "openapi.yaml")

	content, err := os.ReadFile(openAPIPath)
	if err != nil {
		t.Fatalf("read openapi file error = %v", err)
	}
	text := string(content)

	requiredPaths := []string{
		"/v1/health:",
		"/v1/ready:",
		"/v1/metrics:",
		"  /:",
		"/v1/query:",
		"/v1/query/translate:",
		"/v1/sessions:",
		"/v1/sessions/{id}:",
		"/v1/sessions/{id}/turns:",
		"/v1/sessions/{id}/archive:",
		"/v1/sessions/{id}/transcripts:",
	}
	for _, path := range requiredPaths {
		if !strings.Contains(text, path) {
			t.Fatalf("openapi missing path %s", path)
		}
	}
}
