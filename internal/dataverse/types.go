package dataverse

import (
	"github.com/google/uuid"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

// Solution component types and root component behaviours of solutioncomponent.
const (
	componentTypeEntity    = 1
	componentTypeAttribute = 2

	behaviourIncludeSubcomponents      = 0
	behaviourDoNotIncludeSubcomponents = 1
	behaviourIncludeAsShellOnly        = 2
)

// BooleanManagedProperty is a managed boolean metadata property. It satisfies
// auditing.ManagedFlag.
type BooleanManagedProperty struct {
	Value        bool `json:"Value"`
	CanBeChanged bool `json:"CanBeChanged"`
	// ManagedPropertyLogicalName is echoed back on update.
	ManagedPropertyLogicalName string `json:"ManagedPropertyLogicalName,omitempty"`
}

func (p BooleanManagedProperty) Enabled() bool    { return p.Value }
func (p BooleanManagedProperty) Changeable() bool { return p.CanBeChanged }

// flag converts an optional property to the engine interface without
// producing a typed nil.
func flag(p *BooleanManagedProperty) auditing.ManagedFlag {
	if p == nil {
		return nil
	}
	return *p
}

// Label is the DisplayName structure of metadata records.
type Label struct {
	UserLocalizedLabel *LocalizedLabel `json:"UserLocalizedLabel"`
}

// LocalizedLabel is one language of a Label.
type LocalizedLabel struct {
	Label        string `json:"Label"`
	LanguageCode int    `json:"LanguageCode"`
}

func (l *Label) text() *string {
	if l == nil || l.UserLocalizedLabel == nil {
		return nil
	}
	return &l.UserLocalizedLabel.Label
}

type solutionRecord struct {
	SolutionID   uuid.UUID `json:"solutionid"`
	UniqueName   string    `json:"uniquename"`
	FriendlyName string    `json:"friendlyname"`
	Version      string    `json:"version"`
	IsManaged    bool      `json:"ismanaged"`
}

type solutionComponentRecord struct {
	SolutionComponentID   uuid.UUID  `json:"solutioncomponentid"`
	ComponentType         int        `json:"componenttype"`
	ObjectID              *uuid.UUID `json:"objectid"`
	RootComponentBehavior *int       `json:"rootcomponentbehavior"`
}

type entityDefinition struct {
	MetadataID     *uuid.UUID              `json:"MetadataId"`
	LogicalName    string                  `json:"LogicalName"`
	DisplayName    *Label                  `json:"DisplayName"`
	IsAuditEnabled *BooleanManagedProperty `json:"IsAuditEnabled"`
	Attributes     []attributeDefinition   `json:"Attributes"`
}

type attributeDefinition struct {
	MetadataID        *uuid.UUID              `json:"MetadataId"`
	LogicalName       string                  `json:"LogicalName"`
	DisplayName       *Label                  `json:"DisplayName"`
	AttributeType     string                  `json:"AttributeType"`
	AttributeOf       *string                 `json:"AttributeOf"`
	EntityLogicalName string                  `json:"EntityLogicalName"`
	IsAuditEnabled    *BooleanManagedProperty `json:"IsAuditEnabled"`
}

type organizationRecord struct {
	OrganizationID             uuid.UUID `json:"organizationid"`
	IsAuditEnabled             *bool     `json:"isauditenabled"`
	AuditRetentionPeriodV2     *int      `json:"auditretentionperiodv2"`
	IsUserAccessAuditEnabled   *bool     `json:"isuseraccessauditenabled"`
	UserAccessAuditingInterval *int      `json:"useraccessauditinginterval"`
}

func (a attributeDefinition) toColumnMetadata() auditing.ColumnMetadata {
	return auditing.ColumnMetadata{
		MetadataID:        a.MetadataID,
		LogicalName:       a.LogicalName,
		DisplayName:       a.DisplayName.text(),
		AttributeType:     auditing.AttributeType(a.AttributeType),
		AttributeOf:       a.AttributeOf,
		EntityLogicalName: a.EntityLogicalName,
		IsAuditEnabled:    flag(a.IsAuditEnabled),
	}
}

func (e entityDefinition) toTableMetadata() *auditing.TableMetadata {
	attrs := make([]auditing.ColumnMetadata, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs = append(attrs, a.toColumnMetadata())
	}
	return &auditing.TableMetadata{
		MetadataID:     e.MetadataID,
		LogicalName:    e.LogicalName,
		DisplayName:    e.DisplayName.text(),
		IsAuditEnabled: flag(e.IsAuditEnabled),
		Attributes:     attrs,
	}
}

func behaviourOf(value *int) (auditing.SolutionBehaviour, bool) {
	if value == nil {
		return "", false
	}
	switch *value {
	case behaviourIncludeSubcomponents:
		return auditing.AllAttributes, true
	case behaviourDoNotIncludeSubcomponents, behaviourIncludeAsShellOnly:
		return auditing.SelectedAttributes, true
	default:
		return "", false
	}
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
