package dataverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

const attributeSelect = "MetadataId,LogicalName,DisplayName,AttributeType,AttributeOf,EntityLogicalName,IsAuditEnabled"

// MetadataProvider reads solution, table and organization metadata.
type MetadataProvider struct {
	client *Client
}

var _ auditing.MetadataProvider = (*MetadataProvider)(nil)

// NewMetadataProvider creates a MetadataProvider.
func NewMetadataProvider(client *Client) *MetadataProvider {
	return &MetadataProvider{client: client}
}

// ResolveSolution looks up a top-level solution by unique name.
func (p *MetadataProvider) ResolveSolution(ctx context.Context, uniqueName string) (*auditing.Solution, error) {
	records, err := list[solutionRecord](ctx, p.client, "solutions", queryFrom(map[string]string{
		"$select": "solutionid,uniquename,friendlyname,version,ismanaged",
		"$filter": fmt.Sprintf("uniquename eq %s and _parentsolutionid_value eq null", quote(uniqueName)),
		"$top":    "1",
	}))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	solution := &auditing.Solution{
		ID:           rec.SolutionID,
		UniqueName:   rec.UniqueName,
		FriendlyName: rec.FriendlyName,
		IsManaged:    rec.IsManaged,
	}
	if v, err := version.NewVersion(rec.Version); err == nil {
		solution.Version = v
	} else {
		slog.Warn("dataverse: unparseable solution version", "solution", rec.UniqueName, "version", rec.Version)
	}
	slog.Debug("dataverse: resolved solution", "solution", rec.UniqueName, "id", rec.SolutionID, "version", rec.Version)
	return solution, nil
}

// ListTableComponents returns the entity components of a solution.
func (p *MetadataProvider) ListTableComponents(ctx context.Context, solutionID uuid.UUID) ([]auditing.TableComponent, error) {
	records, err := list[solutionComponentRecord](ctx, p.client, "solutioncomponents", queryFrom(map[string]string{
		"$select": "solutioncomponentid,componenttype,objectid,rootcomponentbehavior",
		"$filter": fmt.Sprintf("_solutionid_value eq %s and componenttype eq %d", solutionID, componentTypeEntity),
	}))
	if err != nil {
		return nil, err
	}

	components := make([]auditing.TableComponent, 0, len(records))
	for _, rec := range records {
		behaviour, ok := behaviourOf(rec.RootComponentBehavior)
		if !ok {
			return nil, fmt.Errorf("solution component %s has unsupported root component behaviour %v",
				rec.SolutionComponentID, valueOr(rec.RootComponentBehavior, -1))
		}
		components = append(components, auditing.TableComponent{
			ID:        rec.SolutionComponentID,
			ObjectID:  rec.ObjectID,
			Behaviour: behaviour,
		})
	}
	return components, nil
}

// ListColumnComponents returns the attribute components registered below a
// table component, resolved to their attribute metadata.
func (p *MetadataProvider) ListColumnComponents(ctx context.Context, component auditing.TableComponent, tableLogicalName string) ([]auditing.ColumnMetadata, error) {
	records, err := list[solutionComponentRecord](ctx, p.client, "solutioncomponents", queryFrom(map[string]string{
		"$select": "solutioncomponentid,componenttype,objectid",
		"$filter": fmt.Sprintf("componenttype eq %d and _rootsolutioncomponentid_value eq %s", componentTypeAttribute, component.ID),
	}))
	if err != nil {
		return nil, err
	}

	columns := make([]auditing.ColumnMetadata, 0, len(records))
	for _, rec := range records {
		if rec.ObjectID == nil {
			continue
		}
		attr, err := p.fetchAttribute(ctx, tableLogicalName, *rec.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch attribute %s of %s: %w", rec.ObjectID, tableLogicalName, err)
		}
		columns = append(columns, attr.toColumnMetadata())
	}
	return columns, nil
}

func (p *MetadataProvider) fetchAttribute(ctx context.Context, tableLogicalName string, id uuid.UUID) (*attributeDefinition, error) {
	var attr attributeDefinition
	err := p.client.do(ctx, request{
		method: http.MethodGet,
		path:   attributePath(tableLogicalName, id),
		query:  queryFrom(map[string]string{"$select": attributeSelect}),
	}, &attr)
	if err != nil {
		return nil, err
	}
	return &attr, nil
}

// FetchTableMetadata retrieves a table with all of its attributes, including
// unpublished changes.
func (p *MetadataProvider) FetchTableMetadata(ctx context.Context, metadataID uuid.UUID) (*auditing.TableMetadata, error) {
	var entity entityDefinition
	err := p.client.do(ctx, request{
		method: http.MethodGet,
		path:   entityPath(metadataID),
		query: queryFrom(map[string]string{
			"$select": "MetadataId,LogicalName,DisplayName,IsAuditEnabled",
			"$expand": "Attributes($select=" + attributeSelect + ")",
		}),
		headers: map[string]string{"Consistency": "Strong"},
	}, &entity)
	if err != nil {
		return nil, err
	}
	return entity.toTableMetadata(), nil
}

// ErrNoOrganization is returned when the organizations query is empty.
var ErrNoOrganization = errors.New("no organization record returned")

// FetchOrganizationConfig reads the organization audit settings.
func (p *MetadataProvider) FetchOrganizationConfig(ctx context.Context) (*auditing.OrganizationAuditConfig, error) {
	records, err := list[organizationRecord](ctx, p.client, "organizations", queryFrom(map[string]string{
		"$select": "organizationid,isauditenabled,auditretentionperiodv2,isuseraccessauditenabled,useraccessauditinginterval",
		"$top":    "1",
	}))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoOrganization
	}

	org := records[0]
	return &auditing.OrganizationAuditConfig{
		OrganizationID:                org.OrganizationID,
		IsAuditEnabled:                valueOr(org.IsAuditEnabled, false),
		AuditRetentionPeriodDays:      valueOr(org.AuditRetentionPeriodV2, 0),
		IsUserAccessAuditEnabled:      valueOr(org.IsUserAccessAuditEnabled, false),
		UserAccessRetentionPeriodDays: valueOr(org.UserAccessAuditingInterval, 0),
	}, nil
}

func entityPath(id uuid.UUID) string {
	return fmt.Sprintf("EntityDefinitions(%s)", id)
}

func attributePath(tableLogicalName string, id uuid.UUID) string {
	return fmt.Sprintf("EntityDefinitions(LogicalName=%s)/Attributes(%s)", quote(tableLogicalName), id)
}
