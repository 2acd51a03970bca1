package auditing

import "fmt"

// aggregator merges the unchanged, changed and locked classes of one
// Enable or Disable run into the report order.
type aggregator struct {
	target bool
	verb   string
}

// columns returns the merged column rows grouped by owning table, each group
// ordered by display name.
func (a aggregator) columns(c classification[ColumnAuditSetting], results []Result[ColumnAuditSetting]) map[string][]ChangedColumnAuditSetting {
	rows := make([]ChangedColumnAuditSetting, 0, len(c.unchanged)+len(results)+len(c.locked))
	for _, column := range c.unchanged {
		rows = append(rows, ChangedColumnAuditSetting{
			ColumnAuditSetting: column,
			Change:             Change{WasAuditEnabledBefore: column.IsAuditEnabled},
		})
	}
	for i, res := range results {
		column := c.eligible[i]
		column.IsAuditEnabled = a.stateAfter(res.Succeeded())
		rows = append(rows, ChangedColumnAuditSetting{
			ColumnAuditSetting: column,
			Change: Change{
				WasAuditEnabledBefore: c.eligible[i].IsAuditEnabled,
				ErrorMessage:          res.ErrorMessage(),
			},
		})
	}
	for _, column := range c.locked {
		msg := fmt.Sprintf("Auditing can not be %s for column %s of entity %s as customization is locked",
			a.verb, column.LogicalName, column.EntityLogicalName)
		rows = append(rows, ChangedColumnAuditSetting{
			ColumnAuditSetting: column,
			Change:             Change{WasAuditEnabledBefore: column.IsAuditEnabled, ErrorMessage: &msg},
		})
	}

	byTable := make(map[string][]ChangedColumnAuditSetting)
	for _, row := range rows {
		byTable[row.EntityLogicalName] = append(byTable[row.EntityLogicalName], row)
	}
	for _, group := range byTable {
		sortByDisplayName(group, func(c ChangedColumnAuditSetting) string { return c.DisplayName })
	}
	return byTable
}

// tables returns the merged table rows ordered by display name, each holding
// the column rows of its own logical name.
func (a aggregator) tables(
	c classification[TableAuditSetting],
	results []Result[TableAuditSetting],
	columnsByTable map[string][]ChangedColumnAuditSetting,
) []ChangedTableAuditSetting {
	row := func(table TableAuditSetting, isEnabled bool, change Change) ChangedTableAuditSetting {
		columns := columnsByTable[table.LogicalName]
		if columns == nil {
			columns = []ChangedColumnAuditSetting{}
		}
		return ChangedTableAuditSetting{
			MetadataID:        table.MetadataID,
			LogicalName:       table.LogicalName,
			DisplayName:       table.DisplayName,
			SolutionBehaviour: table.SolutionBehaviour,
			IsAuditEnabled:    isEnabled,
			CanAuditBeChanged: table.CanAuditBeChanged,
			Columns:           columns,
			Change:            change,
		}
	}

	rows := make([]ChangedTableAuditSetting, 0, len(c.unchanged)+len(results)+len(c.locked))
	for _, table := range c.unchanged {
		rows = append(rows, row(table, table.IsAuditEnabled, Change{WasAuditEnabledBefore: table.IsAuditEnabled}))
	}
	for i, res := range results {
		table := c.eligible[i]
		rows = append(rows, row(table, a.stateAfter(res.Succeeded()), Change{
			WasAuditEnabledBefore: table.IsAuditEnabled,
			ErrorMessage:          res.ErrorMessage(),
		}))
	}
	for _, table := range c.locked {
		msg := fmt.Sprintf("Auditing can't be %s for table %s as customization is locked", a.verb, table.LogicalName)
		rows = append(rows, row(table, table.IsAuditEnabled, Change{WasAuditEnabledBefore: table.IsAuditEnabled, ErrorMessage: &msg}))
	}

	sortByDisplayName(rows, func(t ChangedTableAuditSetting) string { return t.DisplayName })
	return rows
}

// stateAfter is the reported state of an attempted item. A failed mutation is
// assumed to have left the item at its previous state.
func (a aggregator) stateAfter(succeeded bool) bool {
	if succeeded {
		return a.target
	}
	return !a.target
}
