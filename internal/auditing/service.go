package auditing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ChangeOptions controls Enable and Disable.
type ChangeOptions struct {
	// HandleAllAttributes treats every table as if the solution shipped all of its columns.
	HandleAllAttributes bool
	// IgnoreUserAccess leaves user-access auditing of the organization untouched.
	IgnoreUserAccess bool
	// Publish publishes the tables whose mutation succeeded.
	Publish bool
}

// DefaultChangeOptions returns the options used when none are given on the command line.
func DefaultChangeOptions() ChangeOptions {
	return ChangeOptions{IgnoreUserAccess: true, Publish: true}
}

// Service reads and reconciles audit settings through its collaborators.
type Service struct {
	provider MetadataProvider
	mutator  Mutator
}

// NewService creates a Service.
func NewService(provider MetadataProvider, mutator Mutator) *Service {
	return &Service{provider: provider, mutator: mutator}
}

// Get returns the current audit settings of the organization and of every
// table in the solution. Any read failure aborts the call.
func (s *Service) Get(ctx context.Context, solutionName string, handleAllAttributes bool) (*AuditSettings, error) {
	slog.Debug("auditing: reading audit settings", "solution", solutionName, "handle_all_attributes", handleAllAttributes)

	solution, err := s.provider.ResolveSolution(ctx, solutionName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve solution %s: %w", solutionName, err)
	}
	if solution == nil {
		slog.Error("auditing: solution not found", "solution", solutionName)
		return nil, &SolutionNotFoundError{UniqueName: solutionName}
	}

	components, err := s.provider.ListTableComponents(ctx, solution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list table components of solution %s: %w", solutionName, err)
	}

	tables := make([]TableAuditSetting, 0, len(components))
	for _, component := range components {
		if component.ObjectID == nil {
			continue
		}
		meta, err := s.provider.FetchTableMetadata(ctx, *component.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch table metadata %s: %w", component.ObjectID, err)
		}
		table, err := buildTableSetting(ctx, s.provider, meta, component, handleAllAttributes)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	sortByDisplayName(tables, func(t TableAuditSetting) string { return t.DisplayName })
	slog.Debug("auditing: transformed tables", "solution", solutionName, "tables", len(tables))

	org, err := s.provider.FetchOrganizationConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organization audit configuration: %w", err)
	}

	return &AuditSettings{OrganizationAuditConfig: *org, Tables: tables, Solution: solution.Info()}, nil
}

// Enable turns auditing on for the organization and for every changeable
// table and column of the solution.
func (s *Service) Enable(ctx context.Context, solutionName string, opts ChangeOptions) (*ChangedAuditSettings, error) {
	return s.change(ctx, solutionName, true, opts)
}

// Disable turns auditing off for the organization and for every changeable
// table and column of the solution.
func (s *Service) Disable(ctx context.Context, solutionName string, opts ChangeOptions) (*ChangedAuditSettings, error) {
	return s.change(ctx, solutionName, false, opts)
}

func (s *Service) change(ctx context.Context, solutionName string, target bool, opts ChangeOptions) (*ChangedAuditSettings, error) {
	snapshot, err := s.Get(ctx, solutionName, opts.HandleAllAttributes)
	if err != nil {
		return nil, err
	}
	verb := verbFor(target)

	if snapshot.IsAuditEnabled != target {
		if err := s.mutator.SetOrganizationAudit(ctx, snapshot.OrganizationID, target); err != nil {
			return nil, fmt.Errorf("failed to set organization auditing to %t: %w", target, err)
		}
	}
	userAccess := snapshot.IsUserAccessAuditEnabled
	if !opts.IgnoreUserAccess {
		if userAccess != target {
			if err := s.mutator.SetOrganizationUserAccessAudit(ctx, snapshot.OrganizationID, target); err != nil {
				return nil, fmt.Errorf("failed to set user access auditing to %t: %w", target, err)
			}
		}
		userAccess = target
	}

	tables := classify(snapshot.Tables, target, func(t TableAuditSetting) (bool, bool) {
		return t.IsAuditEnabled, t.CanAuditBeChanged
	})
	slog.Info("auditing: classified tables",
		"operation", verb,
		"eligible", len(tables.eligible),
		"locked", len(tables.locked),
		"unchanged", len(tables.unchanged),
		"eligible_tables", tableNames(tables.eligible),
		"locked_tables", tableNames(tables.locked))

	tableResults := make([]Result[TableAuditSetting], 0, len(tables.eligible))
	for _, table := range tables.eligible {
		res := s.mutator.SetTableAudit(ctx, table, target)
		if !res.Succeeded() {
			slog.Error("auditing: failed to update table", "table", table.LogicalName, "error", res.Err)
		}
		tableResults = append(tableResults, res)
	}
	logResults("tables", tableResults)

	var allColumns []ColumnAuditSetting
	for _, table := range snapshot.Tables {
		allColumns = append(allColumns, table.Columns...)
	}
	columns := classify(allColumns, target, func(c ColumnAuditSetting) (bool, bool) {
		return c.IsAuditEnabled, c.CanAuditBeChanged
	})
	slog.Info("auditing: classified columns",
		"operation", verb,
		"eligible", len(columns.eligible),
		"locked", len(columns.locked),
		"unchanged", len(columns.unchanged))

	columnResults := make([]Result[ColumnAuditSetting], 0, len(columns.eligible))
	for _, column := range columns.eligible {
		res := s.mutator.SetColumnAudit(ctx, column, solutionName, target)
		if !res.Succeeded() {
			slog.Error("auditing: failed to update column",
				"table", column.EntityLogicalName, "column", column.LogicalName, "error", res.Err)
		}
		columnResults = append(columnResults, res)
	}
	logResults("columns", columnResults)

	var publishError *string
	if opts.Publish {
		publishError = s.publish(ctx, tables.eligible, tableResults)
	}

	agg := aggregator{target: target, verb: verb}
	return &ChangedAuditSettings{
		OrganizationID:                  snapshot.OrganizationID,
		IsAuditEnabled:                  target,
		WasAuditEnabledBefore:           snapshot.IsAuditEnabled,
		AuditRetentionPeriodDays:        snapshot.AuditRetentionPeriodDays,
		IsUserAccessAuditEnabled:        userAccess,
		WasUserAccessAuditEnabledBefore: snapshot.IsUserAccessAuditEnabled,
		UserAccessRetentionPeriodDays:   snapshot.UserAccessRetentionPeriodDays,
		Tables: agg.tables(tables, tableResults,
			agg.columns(columns, columnResults)),
		Solution:     snapshot.Solution,
		PublishError: publishError,
	}, nil
}

// publish publishes the tables whose mutation succeeded and returns the
// failure message, if any.
func (s *Service) publish(ctx context.Context, eligible []TableAuditSetting, results []Result[TableAuditSetting]) *string {
	var names []string
	for i, res := range results {
		if res.Succeeded() {
			names = append(names, eligible[i].LogicalName)
		}
	}
	if len(names) == 0 {
		slog.Debug("auditing: nothing to publish")
		return nil
	}
	if err := s.mutator.Publish(ctx, names); err != nil {
		slog.Error("auditing: failed to publish tables", "tables", strings.Join(names, ", "), "error", err)
		msg := err.Error()
		return &msg
	}
	slog.Info("auditing: published tables", "count", len(names))
	return nil
}

type classification[T any] struct {
	eligible  []T
	locked    []T
	unchanged []T
}

// classify splits items by their distance to target. Items already at target
// are unchanged whatever their lock state.
func classify[T any](items []T, target bool, state func(T) (enabled, changeable bool)) classification[T] {
	var c classification[T]
	for _, item := range items {
		enabled, changeable := state(item)
		switch {
		case enabled == target:
			c.unchanged = append(c.unchanged, item)
		case changeable:
			c.eligible = append(c.eligible, item)
		default:
			c.locked = append(c.locked, item)
		}
	}
	return c
}

func logResults[T any](kind string, results []Result[T]) {
	var failed int
	for _, res := range results {
		if !res.Succeeded() {
			failed++
		}
	}
	slog.Info("auditing: applied changes",
		"kind", kind,
		"succeeded", len(results)-failed,
		"total", len(results),
		"failed", failed)
}

func tableNames(tables []TableAuditSetting) string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.LogicalName)
	}
	return strings.Join(names, ", ")
}

func verbFor(target bool) string {
	if target {
		return "enabled"
	}
	return "disabled"
}
