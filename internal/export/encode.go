package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

var settingsHeader = []string{
	"table_logical_name", "table_display_name", "solution_behaviour", "table_audit_enabled", "table_can_change",
	"column_logical_name", "column_display_name", "column_type", "column_audit_enabled", "column_can_change",
}

var changesHeader = []string{
	"table_logical_name", "table_display_name", "solution_behaviour",
	"table_audit_enabled", "table_was_enabled", "table_can_change", "table_outcome", "table_error",
	"column_logical_name", "column_display_name", "column_type",
	"column_audit_enabled", "column_was_enabled", "column_can_change", "column_outcome", "column_error",
}

// EncodeSettings writes a snapshot in the given format.
func EncodeSettings(w io.Writer, f Format, settings *auditing.AuditSettings) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, settings)
	case FormatYAML:
		return encodeYAML(w, settings)
	case FormatCSV:
		rows := [][]string{settingsHeader}
		for _, table := range settings.Tables {
			tableFields := []string{
				table.LogicalName, table.DisplayName, string(table.SolutionBehaviour),
				strconv.FormatBool(table.IsAuditEnabled), strconv.FormatBool(table.CanAuditBeChanged),
			}
			if len(table.Columns) == 0 {
				rows = append(rows, append(tableFields, "", "", "", "", ""))
				continue
			}
			for _, col := range table.Columns {
				rows = append(rows, append(append([]string(nil), tableFields...),
					col.LogicalName, col.DisplayName, string(col.TypeCode),
					strconv.FormatBool(col.IsAuditEnabled), strconv.FormatBool(col.CanAuditBeChanged),
				))
			}
		}
		return writeCSV(w, rows)
	default:
		return fmt.Errorf("cannot encode format %q", f)
	}
}

// EncodeChanges writes a change report in the given format.
func EncodeChanges(w io.Writer, f Format, report *auditing.ChangedAuditSettings) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, report)
	case FormatYAML:
		return encodeYAML(w, report)
	case FormatCSV:
		rows := [][]string{changesHeader}
		for _, table := range report.Tables {
			tableFields := []string{
				table.LogicalName, table.DisplayName, string(table.SolutionBehaviour),
				strconv.FormatBool(table.IsAuditEnabled), strconv.FormatBool(table.WasAuditEnabledBefore),
				strconv.FormatBool(table.CanAuditBeChanged), string(table.Outcome()), deref(table.ErrorMessage),
			}
			if len(table.Columns) == 0 {
				rows = append(rows, append(tableFields, "", "", "", "", "", "", "", ""))
				continue
			}
			for _, col := range table.Columns {
				rows = append(rows, append(append([]string(nil), tableFields...),
					col.LogicalName, col.DisplayName, string(col.TypeCode),
					strconv.FormatBool(col.IsAuditEnabled), strconv.FormatBool(col.WasAuditEnabledBefore),
					strconv.FormatBool(col.CanAuditBeChanged), string(col.Outcome()), deref(col.ErrorMessage),
				))
			}
		}
		return writeCSV(w, rows)
	default:
		return fmt.Errorf("cannot encode format %q", f)
	}
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// encodeYAML emits the JSON document as block-style YAML. Going through a
// yaml.Node keeps the JSON field names and their order.
func encodeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, child := range n.Content {
		blockStyle(child)
	}
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to encode CSV: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
