package auditing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type flag struct {
	enabled    bool
	changeable bool
}

func (f flag) Enabled() bool    { return f.enabled }
func (f flag) Changeable() bool { return f.changeable }

func strPtr(s string) *string { return &s }

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

type fakeTable struct {
	component TableComponent
	meta      TableMetadata
	// selected are the column components returned for SelectedAttributes tables.
	selected []ColumnMetadata
}

type fakeProvider struct {
	solution *Solution
	tables   []fakeTable
	org      OrganizationAuditConfig

	resolveErr error
	fetchErr   error
	orgErr     error

	columnComponentCalls []string
}

func (p *fakeProvider) ResolveSolution(_ context.Context, _ string) (*Solution, error) {
	return p.solution, p.resolveErr
}

func (p *fakeProvider) ListTableComponents(_ context.Context, _ uuid.UUID) ([]TableComponent, error) {
	components := make([]TableComponent, 0, len(p.tables))
	for _, t := range p.tables {
		components = append(components, t.component)
	}
	return components, nil
}

func (p *fakeProvider) ListColumnComponents(_ context.Context, component TableComponent, tableLogicalName string) ([]ColumnMetadata, error) {
	p.columnComponentCalls = append(p.columnComponentCalls, tableLogicalName)
	for _, t := range p.tables {
		if t.component.ID == component.ID {
			return t.selected, nil
		}
	}
	return nil, nil
}

func (p *fakeProvider) FetchTableMetadata(_ context.Context, id uuid.UUID) (*TableMetadata, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	for _, t := range p.tables {
		if t.component.ObjectID != nil && *t.component.ObjectID == id {
			meta := t.meta
			return &meta, nil
		}
	}
	return nil, errors.New("table not found")
}

func (p *fakeProvider) FetchOrganizationConfig(_ context.Context) (*OrganizationAuditConfig, error) {
	if p.orgErr != nil {
		return nil, p.orgErr
	}
	org := p.org
	return &org, nil
}

type fakeMutator struct {
	failTables  map[string]error
	failColumns map[string]error
	orgErr      error
	publishErr  error

	orgCalls        []bool
	userAccessCalls []bool
	tableCalls      []string
	columnCalls     []string
	published       [][]string
}

func (m *fakeMutator) SetOrganizationAudit(_ context.Context, _ uuid.UUID, enabled bool) error {
	m.orgCalls = append(m.orgCalls, enabled)
	return m.orgErr
}

func (m *fakeMutator) SetOrganizationUserAccessAudit(_ context.Context, _ uuid.UUID, enabled bool) error {
	m.userAccessCalls = append(m.userAccessCalls, enabled)
	return nil
}

func (m *fakeMutator) SetTableAudit(_ context.Context, table TableAuditSetting, _ bool) Result[TableAuditSetting] {
	m.tableCalls = append(m.tableCalls, table.LogicalName)
	if err := m.failTables[table.LogicalName]; err != nil {
		return Fail(table, err)
	}
	return Ok(table)
}

func (m *fakeMutator) SetColumnAudit(_ context.Context, column ColumnAuditSetting, _ string, _ bool) Result[ColumnAuditSetting] {
	m.columnCalls = append(m.columnCalls, column.EntityLogicalName+"."+column.LogicalName)
	if err := m.failColumns[column.LogicalName]; err != nil {
		return Fail(column, err)
	}
	return Ok(column)
}

func (m *fakeMutator) Publish(_ context.Context, names []string) error {
	m.published = append(m.published, names)
	return m.publishErr
}

func column(table, logicalName, displayName string, enabled, changeable bool) ColumnMetadata {
	return ColumnMetadata{
		MetadataID:        idPtr(uuid.New()),
		LogicalName:       logicalName,
		DisplayName:       strPtr(displayName),
		AttributeType:     AttributeTypeString,
		EntityLogicalName: table,
		IsAuditEnabled:    flag{enabled: enabled, changeable: changeable},
	}
}

func table(logicalName, displayName string, behaviour SolutionBehaviour, enabled, changeable bool, columns ...ColumnMetadata) fakeTable {
	id := uuid.New()
	return fakeTable{
		component: TableComponent{ID: uuid.New(), ObjectID: idPtr(id), Behaviour: behaviour},
		meta: TableMetadata{
			MetadataID:     idPtr(id),
			LogicalName:    logicalName,
			DisplayName:    strPtr(displayName),
			IsAuditEnabled: flag{enabled: enabled, changeable: changeable},
			Attributes:     columns,
		},
	}
}

func newProvider(tables ...fakeTable) *fakeProvider {
	return &fakeProvider{
		solution: &Solution{ID: uuid.New(), UniqueName: "contoso"},
		tables:   tables,
		org: OrganizationAuditConfig{
			OrganizationID:                uuid.New(),
			AuditRetentionPeriodDays:      30,
			UserAccessRetentionPeriodDays: 7,
		},
	}
}
