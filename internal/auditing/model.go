// Package auditing implements the audit-settings reconciliation engine.
//
// Get builds a point-in-time snapshot of organization, table and column audit
// configuration for the tables of one solution. Enable and Disable classify
// every table and column of that snapshot as unchanged, eligible or locked,
// apply changes to the eligible items only, and merge the three classes back
// into one ordered report that carries both the previous and the new state of
// every item.
//
// The engine never talks to the platform directly. It consumes a
// MetadataProvider for reads and a Mutator for writes, both supplied by the
// caller (see internal/dataverse for the Web API implementation).
package auditing

import (
	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
)

// SolutionBehaviour describes how a table was included in a solution.
type SolutionBehaviour string

const (
	// AllAttributes means the solution ships every current and future column of the table.
	AllAttributes SolutionBehaviour = "AllAttributes"
	// SelectedAttributes means only the columns registered as components belong to the solution.
	SelectedAttributes SolutionBehaviour = "SelectedAttributes"
)

// Label returns the human readable form used in console output.
func (b SolutionBehaviour) Label() string {
	switch b {
	case AllAttributes:
		return "All Attributes"
	case SelectedAttributes:
		return "Selected Attributes"
	default:
		return ""
	}
}

// AttributeType is the platform data type of a column.
type AttributeType string

const (
	AttributeTypeBigInt           AttributeType = "BigInt"
	AttributeTypeBoolean          AttributeType = "Boolean"
	AttributeTypeCalendarRules    AttributeType = "CalendarRules"
	AttributeTypeCustomer         AttributeType = "Customer"
	AttributeTypeDateTime         AttributeType = "DateTime"
	AttributeTypeDecimal          AttributeType = "Decimal"
	AttributeTypeDouble           AttributeType = "Double"
	AttributeTypeEntityName       AttributeType = "EntityName"
	AttributeTypeInteger          AttributeType = "Integer"
	AttributeTypeLookup           AttributeType = "Lookup"
	AttributeTypeManagedProperty  AttributeType = "ManagedProperty"
	AttributeTypeMemo             AttributeType = "Memo"
	AttributeTypeMoney            AttributeType = "Money"
	AttributeTypeOwner            AttributeType = "Owner"
	AttributeTypePartyList        AttributeType = "PartyList"
	AttributeTypePicklist         AttributeType = "Picklist"
	AttributeTypeState            AttributeType = "State"
	AttributeTypeStatus           AttributeType = "Status"
	AttributeTypeString           AttributeType = "String"
	AttributeTypeUniqueidentifier AttributeType = "Uniqueidentifier"
	AttributeTypeVirtual          AttributeType = "Virtual"
)

var attributeTypeLabels = map[AttributeType]string{
	AttributeTypeBoolean:          "Yes/no",
	AttributeTypeCustomer:         "Customer",
	AttributeTypeDecimal:          "Decimal",
	AttributeTypeDouble:           "Float",
	AttributeTypeInteger:          "Whole number",
	AttributeTypeLookup:           "Lookup",
	AttributeTypeMemo:             "Text area",
	AttributeTypeMoney:            "Currency",
	AttributeTypeOwner:            "Owner",
	AttributeTypePicklist:         "Choice",
	AttributeTypeState:            "Status",
	AttributeTypeStatus:           "Status reason",
	AttributeTypeString:           "Text",
	AttributeTypeUniqueidentifier: "Unique identifier",
	AttributeTypeVirtual:          "Virtual",
	AttributeTypeBigInt:           "Whole number (Big)",
	AttributeTypeCalendarRules:    "Calendar rules",
	AttributeTypeDateTime:         "Date and time",
	AttributeTypeEntityName:       "Entity name",
	AttributeTypeManagedProperty:  "Managed property",
	AttributeTypePartyList:        "Activity party list",
}

// Label returns the maker-portal name of the type, or "" for unknown types.
func (t AttributeType) Label() string {
	return attributeTypeLabels[t]
}

// Solution is a resolved top-level solution.
type Solution struct {
	ID           uuid.UUID
	UniqueName   string
	FriendlyName string
	// Version is nil when the platform reports a version string that cannot be parsed.
	Version   *version.Version
	IsManaged bool
}

// Info returns the reportable identity of the solution.
func (s *Solution) Info() SolutionInfo {
	info := SolutionInfo{
		UniqueName:   s.UniqueName,
		FriendlyName: s.FriendlyName,
		IsManaged:    s.IsManaged,
	}
	if s.Version != nil {
		info.Version = s.Version.Original()
	}
	return info
}

// SolutionInfo identifies the solution a snapshot or report was taken from.
// Version is empty when the platform version string could not be parsed.
type SolutionInfo struct {
	UniqueName   string `json:"uniqueName"`
	FriendlyName string `json:"friendlyName"`
	Version      string `json:"version,omitempty"`
	IsManaged    bool   `json:"isManaged"`
}

// OrganizationAuditConfig is the organization-wide audit configuration.
type OrganizationAuditConfig struct {
	OrganizationID                uuid.UUID `json:"organizationId"`
	IsAuditEnabled                bool      `json:"isAuditEnabled"`
	AuditRetentionPeriodDays      int       `json:"auditRetentionPeriodDays"`
	IsUserAccessAuditEnabled      bool      `json:"isUserAccessAuditEnabled"`
	UserAccessRetentionPeriodDays int       `json:"userAccessRetentionPeriodDays"`
}

// ColumnAuditSetting is the audit state of one column.
type ColumnAuditSetting struct {
	MetadataID        uuid.UUID     `json:"metadataId"`
	LogicalName       string        `json:"logicalName"`
	DisplayName       string        `json:"displayName"`
	TypeCode          AttributeType `json:"typeCode"`
	EntityLogicalName string        `json:"entityLogicalName"`
	IsAuditEnabled    bool          `json:"isAuditEnabled"`
	CanAuditBeChanged bool          `json:"canAuditBeChanged"`
}

// TableAuditSetting is the audit state of one table and its columns, ordered by display name.
type TableAuditSetting struct {
	MetadataID        uuid.UUID            `json:"metadataId"`
	LogicalName       string               `json:"logicalName"`
	DisplayName       string               `json:"displayName"`
	SolutionBehaviour SolutionBehaviour    `json:"solutionBehaviour"`
	IsAuditEnabled    bool                 `json:"isAuditEnabled"`
	CanAuditBeChanged bool                 `json:"canAuditBeChanged"`
	Columns           []ColumnAuditSetting `json:"columns"`
}

// AuditSettings is an immutable, request-scoped snapshot returned by Get.
type AuditSettings struct {
	OrganizationAuditConfig
	Tables   []TableAuditSetting `json:"tables"`
	Solution SolutionInfo        `json:"solution"`
}

// Outcome tells how an item fared during Enable or Disable.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
	OutcomeFailed    Outcome = "failed"
	OutcomeLocked    Outcome = "locked"
)

// Change records the attempted transition of one item. A nil ErrorMessage with
// IsAuditEnabled != WasAuditEnabledBefore means the change was applied.
type Change struct {
	WasAuditEnabledBefore bool    `json:"wasAuditEnabledBefore"`
	ErrorMessage          *string `json:"errorMessage"`
}

// ChangedColumnAuditSetting is a column of a change report.
type ChangedColumnAuditSetting struct {
	ColumnAuditSetting
	Change
}

// Outcome classifies the column from its report fields alone.
func (c ChangedColumnAuditSetting) Outcome() Outcome {
	return outcomeOf(c.IsAuditEnabled, c.CanAuditBeChanged, c.Change)
}

// ChangedTableAuditSetting is a table of a change report with its own columns.
type ChangedTableAuditSetting struct {
	MetadataID        uuid.UUID                   `json:"metadataId"`
	LogicalName       string                      `json:"logicalName"`
	DisplayName       string                      `json:"displayName"`
	SolutionBehaviour SolutionBehaviour           `json:"solutionBehaviour"`
	IsAuditEnabled    bool                        `json:"isAuditEnabled"`
	CanAuditBeChanged bool                        `json:"canAuditBeChanged"`
	Columns           []ChangedColumnAuditSetting `json:"columns"`
	Change
}

// Outcome classifies the table from its report fields alone.
func (t ChangedTableAuditSetting) Outcome() Outcome {
	return outcomeOf(t.IsAuditEnabled, t.CanAuditBeChanged, t.Change)
}

// ChangedAuditSettings is the report produced by Enable and Disable.
type ChangedAuditSettings struct {
	OrganizationID                  uuid.UUID                  `json:"organizationId"`
	IsAuditEnabled                  bool                       `json:"isAuditEnabled"`
	WasAuditEnabledBefore           bool                       `json:"wasAuditEnabledBefore"`
	AuditRetentionPeriodDays        int                        `json:"auditRetentionPeriodDays"`
	IsUserAccessAuditEnabled        bool                       `json:"isUserAccessAuditEnabled"`
	WasUserAccessAuditEnabledBefore bool                       `json:"wasUserAccessAuditEnabledBefore"`
	UserAccessRetentionPeriodDays   int                        `json:"userAccessRetentionPeriodDays"`
	Tables                          []ChangedTableAuditSetting `json:"tables"`
	Solution                        SolutionInfo               `json:"solution"`
	// PublishError is set when the publish call after the table mutations failed.
	PublishError *string `json:"publishError,omitempty"`
}

// Columns returns every column of every table in report order.
func (r *ChangedAuditSettings) Columns() []ChangedColumnAuditSetting {
	var columns []ChangedColumnAuditSetting
	for _, table := range r.Tables {
		columns = append(columns, table.Columns...)
	}
	return columns
}

func outcomeOf(isEnabled, canBeChanged bool, change Change) Outcome {
	switch {
	case change.ErrorMessage != nil && !canBeChanged:
		return OutcomeLocked
	case change.ErrorMessage != nil:
		return OutcomeFailed
	case isEnabled != change.WasAuditEnabledBefore:
		return OutcomeChanged
	default:
		return OutcomeUnchanged
	}
}
