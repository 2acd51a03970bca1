package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
	"github.com/3mpowered/dataverse-convenience/internal/export"
	"github.com/3mpowered/dataverse-convenience/internal/history"
)

// printer writes human readable command output.
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) println(args ...any) {
	fmt.Fprintln(p.w, args...)
}

func (p *printer) success(msg string, args ...any) {
	fmt.Fprintf(p.w, msg+"\n", args...)
}

func (p *printer) warning(msg string, args ...any) {
	fmt.Fprintf(p.w, "Warning: "+msg+"\n", args...)
}

// table renders rows below an optional title, columns separated by two spaces.
func (p *printer) table(title string, headers []string, rows [][]string) {
	if title != "" {
		fmt.Fprintln(p.w, title)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return ""
}

func days(n int) string {
	return strconv.Itoa(n) + " days"
}

// solution prints the identity line of the solution a run worked on.
func (p *printer) solution(info auditing.SolutionInfo) {
	if info.UniqueName == "" {
		return
	}
	name := info.UniqueName
	if info.FriendlyName != "" && info.FriendlyName != info.UniqueName {
		name = fmt.Sprintf("%s (%s)", info.FriendlyName, info.UniqueName)
	}
	kind := "unmanaged"
	if info.IsManaged {
		kind = "managed"
	}
	if info.Version != "" {
		p.success("Solution %s, version %s, %s", name, info.Version, kind)
	} else {
		p.success("Solution %s, %s", name, kind)
	}
	p.println()
}

// settings renders the result of a list run.
func (p *printer) settings(solution string, s *auditing.AuditSettings) {
	p.solution(s.Solution)
	p.table("Global Audit Settings", []string{"Setting", "Value"}, [][]string{
		{"Is Audit Enabled", yesNo(s.IsAuditEnabled)},
		{"Audit Retention Period", days(s.AuditRetentionPeriodDays)},
		{"Is User Access Audit Enabled", yesNo(s.IsUserAccessAuditEnabled)},
		{"User Access Audit Retention Period", days(s.UserAccessRetentionPeriodDays)},
	})
	p.println()

	if len(s.Tables) == 0 {
		p.warning("Couldn't find any tables in solution %s", solution)
		return
	}

	p.success("Found %d tables in solution %s:", len(s.Tables), solution)
	rows := make([][]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		rows = append(rows, []string{
			t.DisplayName,
			t.LogicalName,
			t.SolutionBehaviour.Label(),
			strconv.Itoa(len(t.Columns)),
			mark(t.IsAuditEnabled),
		})
	}
	p.table("Entities", []string{"Entity", "Logical Name", "Solution Behaviour", "Attribute Count", "Is Audit Enabled"}, rows)

	for _, t := range s.Tables {
		rows := make([][]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			rows = append(rows, []string{c.DisplayName, c.LogicalName, c.TypeCode.Label(), mark(c.IsAuditEnabled)})
		}
		p.println()
		p.table(t.LogicalName, []string{"Attribute", "Logical Name", "Type", "Is Audit Enabled"}, rows)
	}
}

// changes renders the report of an enable or disable run.
func (p *printer) changes(operation string, r *auditing.ChangedAuditSettings) {
	past, gerund := "Enabled", "Enabling"
	state := "enabled"
	if operation == opDisable {
		past, gerund, state = "Disabled", "Disabling", "disabled"
	}

	p.solution(r.Solution)

	var changed, unchanged int
	var failedTables []auditing.ChangedTableAuditSetting
	for _, t := range r.Tables {
		switch t.Outcome() {
		case auditing.OutcomeChanged:
			changed++
		case auditing.OutcomeUnchanged:
			unchanged++
		}
		if t.ErrorMessage != nil {
			failedTables = append(failedTables, t)
		}
	}
	p.success("%s auditing for %d/%d tables. Auditing was already %s for %d tables.",
		past, changed, len(r.Tables), state, unchanged)

	if len(failedTables) > 0 {
		p.warning("%s auditing failed for %d tables:", gerund, len(failedTables))
		rows := make([][]string, 0, len(failedTables))
		for _, t := range failedTables {
			rows = append(rows, []string{t.DisplayName, t.LogicalName, *t.ErrorMessage})
		}
		p.println()
		p.table("Tables", []string{"Display Name", "Logical Name", "Error Message"}, rows)
	}

	var failedColumns []auditing.ChangedColumnAuditSetting
	for _, c := range r.Columns() {
		if c.ErrorMessage != nil {
			failedColumns = append(failedColumns, c)
		}
	}
	if len(failedColumns) > 0 {
		sort.SliceStable(failedColumns, func(i, j int) bool {
			if failedColumns[i].EntityLogicalName != failedColumns[j].EntityLogicalName {
				return failedColumns[i].EntityLogicalName < failedColumns[j].EntityLogicalName
			}
			return failedColumns[i].LogicalName < failedColumns[j].LogicalName
		})
		p.warning("%s auditing failed for %d columns:", gerund, len(failedColumns))
		rows := make([][]string, 0, len(failedColumns))
		for _, c := range failedColumns {
			rows = append(rows, []string{c.EntityLogicalName, c.LogicalName, *c.ErrorMessage})
		}
		p.println()
		p.table("Columns", []string{"Entity", "Column", "Error Message"}, rows)
	}

	if r.PublishError != nil {
		p.warning("Publishing the changed tables failed: %s", *r.PublishError)
	}
}

// exported prints where a report was written. A nil result means exporting
// is disabled.
func (p *printer) exported(result *export.Result) {
	if result == nil {
		return
	}
	p.println()
	p.success("Exported the audit results to file: %s", result.Location)
	if result.Replaced {
		p.warning("Replaced the previous export at that location")
	}
}

// runs renders recorded history entries.
func (p *printer) runs(runs []history.Run) {
	if len(runs) == 0 {
		p.println("No recorded runs.")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		published := ""
		if r.PublishError.Valid {
			published = "failed"
		}
		rows = append(rows, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.ID.String(),
			r.Operation,
			r.Solution,
			r.SolutionVersion,
			counts(r.Tables),
			counts(r.Columns),
			published,
		})
	}
	p.table("", []string{"Time", "Run", "Operation", "Solution", "Version", "Tables", "Columns", "Publish"}, rows)
}

// counts formats changed/total with failures and locks when there are any.
func counts(c history.Counts) string {
	s := fmt.Sprintf("%d/%d", c.Changed, c.Total())
	var extra []string
	if c.Failed > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", c.Failed))
	}
	if c.Locked > 0 {
		extra = append(extra, fmt.Sprintf("%d locked", c.Locked))
	}
	if len(extra) > 0 {
		s += " (" + strings.Join(extra, ", ") + ")"
	}
	return s
}
