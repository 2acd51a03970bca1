package dataverse

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

// Mutator applies audit changes through the Web API.
type Mutator struct {
	client *Client
}

var _ auditing.Mutator = (*Mutator)(nil)

// NewMutator creates a Mutator.
func NewMutator(client *Client) *Mutator {
	return &Mutator{client: client}
}

// SetOrganizationAudit switches organization-wide auditing.
func (m *Mutator) SetOrganizationAudit(ctx context.Context, organizationID uuid.UUID, enabled bool) error {
	return m.patchOrganization(ctx, organizationID, map[string]any{"isauditenabled": enabled})
}

// SetOrganizationUserAccessAudit switches auditing of user access.
func (m *Mutator) SetOrganizationUserAccessAudit(ctx context.Context, organizationID uuid.UUID, enabled bool) error {
	return m.patchOrganization(ctx, organizationID, map[string]any{"isuseraccessauditenabled": enabled})
}

func (m *Mutator) patchOrganization(ctx context.Context, organizationID uuid.UUID, body map[string]any) error {
	return m.client.do(ctx, request{
		method: http.MethodPatch,
		path:   fmt.Sprintf("organizations(%s)", organizationID),
		body:   body,
	}, nil)
}

// SetTableAudit retrieves the full entity definition, changes its audit flag
// and writes it back.
func (m *Mutator) SetTableAudit(ctx context.Context, table auditing.TableAuditSetting, enabled bool) auditing.Result[auditing.TableAuditSetting] {
	path := entityPath(table.MetadataID)
	if err := m.updateDefinition(ctx, path, enabled, nil); err != nil {
		return auditing.Fail(table, err)
	}
	return auditing.Ok(table)
}

// SetColumnAudit retrieves the attribute definition, changes its audit flag
// and writes it back within the solution.
func (m *Mutator) SetColumnAudit(ctx context.Context, column auditing.ColumnAuditSetting, solutionName string, enabled bool) auditing.Result[auditing.ColumnAuditSetting] {
	path := attributePath(column.EntityLogicalName, column.MetadataID)
	headers := map[string]string{"MSCRM.SolutionUniqueName": solutionName}
	if err := m.updateDefinition(ctx, path, enabled, headers); err != nil {
		return auditing.Fail(column, err)
	}
	return auditing.Ok(column)
}

// updateDefinition round-trips a metadata definition with IsAuditEnabled.Value
// replaced. Metadata updates are full replacements, so unknown properties are
// kept as received.
func (m *Mutator) updateDefinition(ctx context.Context, path string, enabled bool, extraHeaders map[string]string) error {
	var definition map[string]any
	err := m.client.do(ctx, request{
		method:  http.MethodGet,
		path:    path,
		headers: map[string]string{"Consistency": "Strong"},
	}, &definition)
	if err != nil {
		return fmt.Errorf("failed to retrieve definition: %w", err)
	}

	audit, ok := definition["IsAuditEnabled"].(map[string]any)
	if !ok {
		return fmt.Errorf("definition %s has no IsAuditEnabled property", path)
	}
	audit["Value"] = enabled
	delete(definition, "@odata.context")

	headers := map[string]string{"MSCRM.MergeLabels": "true"}
	for k, v := range extraHeaders {
		headers[k] = v
	}
	err = m.client.do(ctx, request{
		method:  http.MethodPut,
		path:    path,
		headers: headers,
		body:    definition,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to update definition: %w", err)
	}
	return nil
}

// Publish publishes the customizations of the named tables.
func (m *Mutator) Publish(ctx context.Context, tableLogicalNames []string) error {
	if len(tableLogicalNames) == 0 {
		return nil
	}
	return m.client.do(ctx, request{
		method: http.MethodPost,
		path:   "PublishXml",
		body:   map[string]string{"ParameterXml": publishXML(tableLogicalNames)},
	}, nil)
}

func publishXML(tableLogicalNames []string) string {
	var b strings.Builder
	b.WriteString("<importexportxml><entities>")
	for _, name := range tableLogicalNames {
		b.WriteString("<entity>")
		_ = xml.EscapeText(&b, []byte(name))
		b.WriteString("</entity>")
	}
	b.WriteString("</entities></importexportxml>")
	return b.String()
}
