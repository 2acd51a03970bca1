package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
	"github.com/3mpowered/dataverse-convenience/internal/telemetry"
)

const (
	opList    = "list"
	opEnable  = "enable"
	opDisable = "disable"
)

type auditingOptions struct {
	solution          string
	allAttributes     bool
	includeUserAccess bool
	noPublish         bool
}

func (o auditingOptions) changeOptions() auditing.ChangeOptions {
	opts := auditing.DefaultChangeOptions()
	opts.HandleAllAttributes = o.allAttributes
	opts.IgnoreUserAccess = !o.includeUserAccess
	opts.Publish = !o.noPublish
	return opts
}

func newAuditingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditing",
		Short: "Inspect and change the audit settings of a solution",
	}
	cmd.AddCommand(newAuditingListCmd())
	cmd.AddCommand(newAuditingChangeCmd(opEnable, "Enable auditing for the tables and columns of a solution"))
	cmd.AddCommand(newAuditingChangeCmd(opDisable, "Disable auditing for the tables and columns of a solution"))
	cmd.AddCommand(newAuditingHistoryCmd())
	return cmd
}

func addSolutionFlags(cmd *cobra.Command, o *auditingOptions) {
	cmd.Flags().StringVarP(&o.solution, "solution", "s", "", "Unique name of the solution (required)")
	cmd.Flags().BoolVar(&o.allAttributes, "all-attributes", false,
		"Include every column of tables added with selected attributes only")
	_ = cmd.MarkFlagRequired("solution")
}

func newAuditingListCmd() *cobra.Command {
	var o auditingOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the organization, table and column audit settings of a solution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.close()
			defer pushMetrics(context.WithoutCancel(cmd.Context()), cfg)

			return runList(cmd, e, o)
		},
	}
	addSolutionFlags(cmd, &o)
	return cmd
}

func runList(cmd *cobra.Command, e *env, o auditingOptions) error {
	ctx := cmd.Context()
	settings, err := e.service.Get(ctx, o.solution, o.allAttributes)
	if err != nil {
		return solutionError(err)
	}

	p := newPrinter(cmd.OutOrStdout())
	p.settings(o.solution, settings)
	if len(settings.Tables) == 0 {
		return nil
	}

	result, err := e.exporter.Settings(ctx, settings)
	if err != nil {
		return err
	}
	p.exported(result)
	return nil
}

func newAuditingChangeCmd(operation, short string) *cobra.Command {
	var o auditingOptions
	cmd := &cobra.Command{
		Use:   operation,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.close()
			defer pushMetrics(context.WithoutCancel(cmd.Context()), cfg)

			return runChange(cmd, e, operation, o)
		},
	}
	addSolutionFlags(cmd, &o)
	cmd.Flags().BoolVar(&o.includeUserAccess, "include-user-access", false,
		"Also change organization-wide auditing of user access")
	cmd.Flags().BoolVar(&o.noPublish, "no-publish", false,
		"Do not publish the changed tables")
	return cmd
}

func runChange(cmd *cobra.Command, e *env, operation string, o auditingOptions) error {
	ctx := cmd.Context()
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	change := e.service.Enable
	if operation == opDisable {
		change = e.service.Disable
	}
	report, err := change(ctx, o.solution, o.changeOptions())
	if err != nil {
		return solutionError(err)
	}
	countOutcomes(operation, report)

	p := newPrinter(cmd.OutOrStdout())
	p.changes(operation, report)

	e.record(ctx, operation, o.solution, report)

	result, err := e.exporter.Changes(ctx, operation, report)
	if err != nil {
		return err
	}
	p.exported(result)
	return nil
}

// solutionError adds a hint to unknown solution errors. The result still
// matches auditing.ErrSolutionNotFound.
func solutionError(err error) error {
	if auditing.IsSolutionNotFound(err) {
		return fmt.Errorf("%w (--solution takes the unique name of a top-level solution, not its display name)", err)
	}
	return err
}

// countOutcomes adds the items of report to the audit item counter.
func countOutcomes(operation string, report *auditing.ChangedAuditSettings) {
	for _, table := range report.Tables {
		telemetry.AuditItemsTotal.WithLabelValues(operation, "table", string(table.Outcome())).Inc()
		for _, col := range table.Columns {
			telemetry.AuditItemsTotal.WithLabelValues(operation, "column", string(col.Outcome())).Inc()
		}
	}
	slog.Debug("cli: outcomes counted", "operation", operation, "tables", len(report.Tables))
}
