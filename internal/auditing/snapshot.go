package auditing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// buildTableSetting shapes a raw table record into a TableAuditSetting. Columns
// come from the table itself when handleAllAttributes is set or the solution
// ships all attributes, and from the registered column components otherwise.
func buildTableSetting(
	ctx context.Context,
	provider MetadataProvider,
	meta *TableMetadata,
	component TableComponent,
	handleAllAttributes bool,
) (TableAuditSetting, error) {
	attributes := meta.Attributes
	if !handleAllAttributes && component.Behaviour != AllAttributes {
		var err error
		attributes, err = provider.ListColumnComponents(ctx, component, meta.LogicalName)
		if err != nil {
			return TableAuditSetting{}, fmt.Errorf("failed to list column components of table %s: %w", meta.LogicalName, err)
		}
	}

	columns := make([]ColumnAuditSetting, 0, len(attributes))
	for _, attr := range attributes {
		if !auditable(attr) {
			continue
		}
		columns = append(columns, buildColumnSetting(attr, meta.LogicalName))
	}
	sortByDisplayName(columns, func(c ColumnAuditSetting) string { return c.DisplayName })

	enabled, changeable := flagState(meta.IsAuditEnabled)
	table := TableAuditSetting{
		MetadataID:        idOrNil(meta.MetadataID),
		LogicalName:       meta.LogicalName,
		DisplayName:       deref(meta.DisplayName),
		SolutionBehaviour: component.Behaviour,
		IsAuditEnabled:    enabled,
		CanAuditBeChanged: changeable,
		Columns:           columns,
	}

	slog.Debug("auditing: transformed table",
		"table", table.LogicalName,
		"behaviour", string(table.SolutionBehaviour),
		"columns", len(columns),
		"attributes", len(attributes))
	return table, nil
}

func buildColumnSetting(attr ColumnMetadata, tableLogicalName string) ColumnAuditSetting {
	entity := attr.EntityLogicalName
	if entity == "" {
		entity = tableLogicalName
	}
	enabled, changeable := flagState(attr.IsAuditEnabled)
	return ColumnAuditSetting{
		MetadataID:        idOrNil(attr.MetadataID),
		LogicalName:       attr.LogicalName,
		DisplayName:       deref(attr.DisplayName),
		TypeCode:          attr.AttributeType,
		EntityLogicalName: entity,
		IsAuditEnabled:    enabled,
		CanAuditBeChanged: changeable,
	}
}

// auditable excludes virtual columns and columns that describe another column.
func auditable(attr ColumnMetadata) bool {
	if attr.AttributeType == AttributeTypeVirtual {
		return false
	}
	return attr.AttributeOf == nil || *attr.AttributeOf == ""
}

func flagState(flag ManagedFlag) (enabled, changeable bool) {
	if flag == nil {
		return false, false
	}
	return flag.Enabled(), flag.Changeable()
}

func sortByDisplayName[T any](items []T, name func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		return strings.Compare(name(a), name(b))
	})
}

func idOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
