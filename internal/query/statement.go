package query

import (
	"fmt"
	"regexp"
	"strings"
)

// fileFunctionPattern matches calls that read the server's filesystem or
// reach other databases.
var fileFunctionPattern = regexp.MustCompile(`(?i)\b(read_[a-z_]+|glob|parquet_[a-z_]+|sniff_csv|pg_read_file|pg_read_binary_file|pg_ls_dir|pg_stat_file|lo_import|lo_export|dblink[a-z_]*)\s*\(`)

// CheckStatement normalizes a statement and rejects anything other than one
// read query. Semicolons inside literals are rejected too, as are calls to
// file-reading table functions.
func CheckStatement(text string) (string, error) {
	normalized := stripTrailingSemicolons(text)
	if normalized == "" {
		return "", fmt.Errorf("%w: statement is empty", ErrInvalidStatement)
	}
	if !hasReadPrefix(normalized) {
		return "", ErrStatementNotAllowed
	}
	if strings.Contains(normalized, ";") {
		return "", ErrStatementNotAllowed
	}
	if fileFunctionPattern.MatchString(normalized) {
		return "", ErrStatementNotAllowed
	}
	return normalized, nil
}

func hasReadPrefix(sqlText string) bool {
	lower := strings.ToLower(sqlText)
	for _, keyword := range []string{"select", "with"} {
		if !strings.HasPrefix(lower, keyword) {
			continue
		}
		rest := lower[len(keyword):]
		if rest == "" {
			return true
		}
		switch rest[0] {
		case ' ', '\t', '\n', '\r', '(', '*':
			return true
		}
	}
	return false
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func withRowLimit(sqlText string, limit int) string {
	if limit <= 0 {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, limit)
}
