package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildCatalogPath returns the key of one catalog table snapshot.
func BuildCatalogPath(tableName string, generatedAt time.Time) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	ts := generatedAt.UTC()
	return path.Join(
		"catalog",
		tableName,
		fmt.Sprintf("%s-%s.parquet", tableName, ts.Format("20060102T150405Z")),
	), nil
}

// TranscriptPrefix is the key prefix holding every transcript of one session.
func TranscriptPrefix(root, appName, sessionID string) (string, error) {
	if err := validatePathComponent(appName, "app name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	if root == "" {
		root = "transcripts"
	}
	return path.Join(root, appName, "session="+sessionID) + "/", nil
}

// BuildTranscriptPath partitions transcripts by app, session and end time.
func BuildTranscriptPath(root, appName, sessionID string, endedAt time.Time) (string, error) {
	prefix, err := TranscriptPrefix(root, appName, sessionID)
	if err != nil {
		return "", err
	}
	ts := endedAt.UTC()
	return prefix + fmt.Sprintf("transcript-%s-%09d.parquet", ts.Format("20060102T150405Z"), ts.Nanosecond()), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
