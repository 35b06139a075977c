// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-snapvault/pkg/backup"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
)

// OperationResult holds the result of an operation.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FormatOperationResult formats an operation result in the specified format.
func FormatOperationResult(result *OperationResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatTable:
		return formatResultTable(result)
	default:
		return formatResultText(result)
	}
}

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	result := &OperationResult{
		Success: false,
		Error:   err.Error(),
	}
	if backup.IsRetryable(err) {
		result.Data = map[string]any{"retryable": true}
	}
	return FormatOperationResult(result, format)
}

// FormatBackupList formats backup descriptors in the specified format.
func FormatBackupList(descs []backup.Descriptor, format OutputFormat) string {
	switch format {
	case FormatJSON:
		if descs == nil {
			descs = []backup.Descriptor{}
		}
		return formatJSON(map[string]any{"count": len(descs), "backups": descs})
	case FormatTable:
		return formatBackupTable(descs)
	default:
		return formatBackupText(descs)
	}
}

// FormatMetrics formats a vault metrics snapshot.
func FormatMetrics(snap backup.MetricsSnapshot, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(snap)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Archives created: %d\n", snap.ArchivesCreated)
	fmt.Fprintf(&b, "Archives deleted: %d\n", snap.ArchivesDeleted)
	fmt.Fprintf(&b, "Bytes uploaded: %s\n", formatSize(snap.BytesUploaded))
	fmt.Fprintf(&b, "Bytes downloaded: %s\n", formatSize(snap.BytesDownloaded))
	fmt.Fprintf(&b, "Restores completed: %d\n", snap.RestoresCompleted)
	fmt.Fprintf(&b, "Errors: %d\n", snap.TotalErrors)
	return b.String()
}

func formatResultText(result *OperationResult) string {
	if result.Success {
		if result.Message != "" {
			return result.Message + "\n"
		}
		return "Operation completed successfully\n"
	}
	return fmt.Sprintf("Error: %s\n", result.Error)
}

func formatResultTable(result *OperationResult) string {
	status, text := "SUCCESS", result.Message
	if !result.Success {
		status, text = "FAILED", result.Error
	}

	var b strings.Builder
	b.WriteString("┌────────────────────────────────────────────────────────┐\n")
	b.WriteString("│ Operation Result                                       │\n")
	b.WriteString("├────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&b, "│ Status: %-46s │\n", status)
	if text != "" {
		for _, line := range wrapText(text, 54) {
			fmt.Fprintf(&b, "│ %-54s │\n", line)
		}
	}
	b.WriteString("└────────────────────────────────────────────────────────┘\n")
	return b.String()
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": \"failed to marshal JSON: %s\"}\n", err)
	}
	return string(data) + "\n"
}

func formatBackupText(descs []backup.Descriptor) string {
	if len(descs) == 0 {
		return "No backups found\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d backup(s):\n\n", len(descs))
	for _, d := range descs {
		fmt.Fprintf(&b, "Sequence: %d (%s)\n", d.SequenceNumber, d.Kind)
		fmt.Fprintf(&b, "  Key: %s\n", d.Key())
		fmt.Fprintf(&b, "  Size: %s\n", formatSize(int64(d.SizeBytes)))
		if !d.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "  Created: %s\n", d.CreatedAt.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatBackupTable(descs []backup.Descriptor) string {
	if len(descs) == 0 {
		return "No backups found\n"
	}

	var b strings.Builder
	b.WriteString("┌──────────┬─────────────┬──────────────┬──────────────────────┐\n")
	b.WriteString("│ Sequence │ Kind        │ Size         │ Created              │\n")
	b.WriteString("├──────────┼─────────────┼──────────────┼──────────────────────┤\n")
	for _, d := range descs {
		created := ""
		if !d.CreatedAt.IsZero() {
			created = d.CreatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "│ %8d │ %-11s │ %-12s │ %-20s │\n", d.SequenceNumber, d.Kind, formatSize(int64(d.SizeBytes)), created)
	}
	b.WriteString("└──────────┴─────────────┴──────────────┴──────────────────────┘\n")
	fmt.Fprintf(&b, "Total: %d backup(s)\n", len(descs))
	return b.String()
}

// formatSize formats a byte size into a human-readable string.
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// wrapText wraps text at word boundaries, hard-wrapping words longer than maxWidth.
func wrapText(text string, maxWidth int) []string {
	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		for len(word) > maxWidth {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, word[:maxWidth])
			word = word[maxWidth:]
		}
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
