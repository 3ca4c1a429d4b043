// Package export renders resolved issue sets as downloadable documents.
package export

import (
	"strings"
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// FormatCSV is the delimited-text export format; FormatJSON is the default.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// csvHeader fixes the column order of the CSV document.
var csvHeader = []string{
	"title",
	"description",
	"status",
	"priority",
	"severity",
	"createdByName",
	"createdByEmail",
	"createdAt",
	"updatedAt",
}

// CSV renders issues as a delimited-text document. Creator name falls back to
// the creator email when blank; both are empty when no creator resolves.
func CSV(issues []domain.IssueWithCreator) string {
	lines := make([]string, 0, len(issues)+1)
	lines = append(lines, strings.Join(csvHeader, ","))

	for _, issue := range issues {
		severity := ""
		if issue.Severity != nil {
			severity = string(*issue.Severity)
		}
		name := issue.CreatorName
		if name == "" {
			name = issue.CreatorEmail
		}
		fields := []string{
			issue.Title,
			issue.Description,
			string(issue.Status),
			string(issue.Priority),
			severity,
			name,
			issue.CreatorEmail,
			formatTimestamp(issue.CreatedAt),
			formatTimestamp(issue.UpdatedAt),
		}
		for i, field := range fields {
			fields[i] = escapeField(field)
		}
		lines = append(lines, strings.Join(fields, ","))
	}

	return strings.Join(lines, "\n")
}

// escapeField wraps a value in double quotes when it contains a double quote,
// comma or newline, doubling internal quotes; otherwise the value is emitted raw.
func escapeField(value string) string {
	escaped := strings.ReplaceAll(value, `"`, `""`)
	if strings.ContainsAny(escaped, "\",\n") {
		return `"` + escaped + `"`
	}
	return escaped
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
