package auditing

import (
	"context"

	"github.com/google/uuid"
)

// ManagedFlag is a settable platform flag together with its lock state.
type ManagedFlag interface {
	Enabled() bool
	Changeable() bool
}

// TableComponent is a table registered as a component of a solution.
type TableComponent struct {
	ID uuid.UUID
	// ObjectID is the metadata id of the table; nil when the component has no target.
	ObjectID  *uuid.UUID
	Behaviour SolutionBehaviour
}

// TableMetadata is the raw platform record of a table.
type TableMetadata struct {
	MetadataID     *uuid.UUID
	LogicalName    string
	DisplayName    *string
	IsAuditEnabled ManagedFlag
	Attributes     []ColumnMetadata
}

// ColumnMetadata is the raw platform record of a column.
type ColumnMetadata struct {
	MetadataID        *uuid.UUID
	LogicalName       string
	DisplayName       *string
	AttributeType     AttributeType
	AttributeOf       *string
	EntityLogicalName string
	IsAuditEnabled    ManagedFlag
}

// MetadataProvider reads solution, table and organization metadata.
type MetadataProvider interface {
	// ResolveSolution returns nil, nil when no top-level solution has the unique name.
	ResolveSolution(ctx context.Context, uniqueName string) (*Solution, error)
	ListTableComponents(ctx context.Context, solutionID uuid.UUID) ([]TableComponent, error)
	ListColumnComponents(ctx context.Context, component TableComponent, tableLogicalName string) ([]ColumnMetadata, error)
	FetchTableMetadata(ctx context.Context, metadataID uuid.UUID) (*TableMetadata, error)
	FetchOrganizationConfig(ctx context.Context) (*OrganizationAuditConfig, error)
}

// Mutator applies audit changes. Table and column mutations report failure in
// their Result; organization mutations and Publish return errors.
type Mutator interface {
	SetOrganizationAudit(ctx context.Context, organizationID uuid.UUID, enabled bool) error
	SetOrganizationUserAccessAudit(ctx context.Context, organizationID uuid.UUID, enabled bool) error
	SetTableAudit(ctx context.Context, table TableAuditSetting, enabled bool) Result[TableAuditSetting]
	SetColumnAudit(ctx context.Context, column ColumnAuditSetting, solutionName string, enabled bool) Result[ColumnAuditSetting]
	Publish(ctx context.Context, tableLogicalNames []string) error
}
