package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "deployments", "observability", "prometheus", "retailsearch_rules.yaml")

	requiredAlerts := []string{
		"RetailSearchExecutionLatencyP95High",
		"RetailSearchGenerationLatencyP95High",
		"RetailSearchPoolExhausted",
		"RetailSearchToolErrorRatioHigh",
		"RetailSearchGenerationUnavailable",
		"RetailSearchHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	recordings := readAsset(t, "deployments", "observability", "prometheus", "retailsearch_recording_rules.yaml")
	for _, ref := range regexp.MustCompile(`retailsearch:[a-z0-9_]+`).FindAllString(text, -1) {
		if !strings.Contains(recordings, "record: "+ref) {
			t.Fatalf("alert references unrecorded series %q", ref)
		}
	}
}

func TestPrometheusRecordingRulesUseExportedMetrics(t *testing.T) {
	text := readAsset(t, "deployments", "observability", "prometheus", "retailsearch_recording_rules.yaml")

	exported := exportedMetricNames(t)
	for _, name := range regexp.MustCompile(`retailsearch_[a-z_]+`).FindAllString(text, -1) {
		base := strings.TrimSuffix(name, "_bucket")
		if _, ok := exported[base]; !ok {
			t.Fatalf("recording rules reference unknown metric %q", name)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"retailsearch_rules.yaml",
		"retailsearch_recording_rules.yaml",
		"job_name: retailsearch-generate",
		"job_name: retailsearch-execute",
		"job_name: retailsearch-agent-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

// exportedMetricNames reads the collector names registered by the
// observability package.
func exportedMetricNames(t *testing.T) map[string]struct{} {
	t.Helper()
	names := map[string]struct{}{}
	pattern := regexp.MustCompile(`Name:\s+"(retailsearch_[a-z_]+)"`)
	for _, file := range []string{"metrics.go", "domain_metrics.go"} {
		source := readAsset(t, "internal", "observability", file)
		for _, match := range pattern.FindAllStringSubmatch(source, -1) {
			names[match[1]] = struct{}{}
		}
	}
	if len(names) == 0 {
		t.Fatal("no exported metric names found")
	}
	return names
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t)}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
