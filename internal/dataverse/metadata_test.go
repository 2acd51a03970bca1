package dataverse

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

func TestResolveSolution(t *testing.T) {
	solutionID := uuid.New()
	var filter string
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/solutions", r.URL.Path)
		filter = r.URL.Query().Get("$filter")
		assert.Equal(t, "1", r.URL.Query().Get("$top"))
		writeJSON(t, w, http.StatusOK, map[string]any{"value": []map[string]any{{
			"solutionid":   solutionID,
			"uniquename":   "contoso",
			"friendlyname": "Contoso",
			"version":      "1.2.0.5",
			"ismanaged":    true,
		}}})
	})

	solution, err := NewMetadataProvider(c).ResolveSolution(context.Background(), "contoso")
	require.NoError(t, err)
	require.NotNil(t, solution)
	assert.Equal(t, "uniquename eq 'contoso' and _parentsolutionid_value eq null", filter)
	assert.Equal(t, solutionID, solution.ID)
	assert.True(t, solution.IsManaged)
	require.NotNil(t, solution.Version)
	assert.Equal(t, "1.2.0.5", solution.Version.Original())
}

func TestResolveSolution_NotFound(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"value": []any{}})
	})

	solution, err := NewMetadataProvider(c).ResolveSolution(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, solution)
}

func TestListTableComponents(t *testing.T) {
	solutionID := uuid.New()
	objectID := uuid.New()
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("$filter"), "_solutionid_value eq "+solutionID.String())
		assert.Contains(t, r.URL.Query().Get("$filter"), "componenttype eq 1")
		writeJSON(t, w, http.StatusOK, map[string]any{"value": []map[string]any{
			{"solutioncomponentid": uuid.New(), "componenttype": 1, "objectid": objectID, "rootcomponentbehavior": 0},
			{"solutioncomponentid": uuid.New(), "componenttype": 1, "objectid": uuid.New(), "rootcomponentbehavior": 1},
			{"solutioncomponentid": uuid.New(), "componenttype": 1, "objectid": nil, "rootcomponentbehavior": 2},
		}})
	})

	components, err := NewMetadataProvider(c).ListTableComponents(context.Background(), solutionID)
	require.NoError(t, err)
	require.Len(t, components, 3)
	assert.Equal(t, auditing.AllAttributes, components[0].Behaviour)
	assert.Equal(t, objectID, *components[0].ObjectID)
	assert.Equal(t, auditing.SelectedAttributes, components[1].Behaviour)
	assert.Equal(t, auditing.SelectedAttributes, components[2].Behaviour)
	assert.Nil(t, components[2].ObjectID)
}

func TestListTableComponents_UnknownBehaviour(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"value": []map[string]any{
			{"solutioncomponentid": uuid.New(), "componenttype": 1, "objectid": uuid.New()},
		}})
	})

	_, err := NewMetadataProvider(c).ListTableComponents(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestListColumnComponents(t *testing.T) {
	tableComponent := auditing.TableComponent{ID: uuid.New(), Behaviour: auditing.SelectedAttributes}
	attributeID := uuid.New()
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/data/v9.2/solutioncomponents":
			assert.Contains(t, r.URL.Query().Get("$filter"), "_rootsolutioncomponentid_value eq "+tableComponent.ID.String())
			writeJSON(t, w, http.StatusOK, map[string]any{"value": []map[string]any{
				{"solutioncomponentid": uuid.New(), "componenttype": 2, "objectid": attributeID},
				{"solutioncomponentid": uuid.New(), "componenttype": 2, "objectid": nil},
			}})
		case strings.HasPrefix(r.URL.Path, "/api/data/v9.2/EntityDefinitions(LogicalName='account')/Attributes("):
			assert.Contains(t, r.URL.Path, attributeID.String())
			writeJSON(t, w, http.StatusOK, map[string]any{
				"MetadataId":        attributeID,
				"LogicalName":       "name",
				"DisplayName":       map[string]any{"UserLocalizedLabel": map[string]any{"Label": "Account Name", "LanguageCode": 1033}},
				"AttributeType":     "String",
				"AttributeOf":       nil,
				"EntityLogicalName": "account",
				"IsAuditEnabled":    map[string]any{"Value": true, "CanBeChanged": false},
			})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	})

	columns, err := NewMetadataProvider(c).ListColumnComponents(context.Background(), tableComponent, "account")
	require.NoError(t, err)
	require.Len(t, columns, 1)
	col := columns[0]
	assert.Equal(t, "name", col.LogicalName)
	require.NotNil(t, col.DisplayName)
	assert.Equal(t, "Account Name", *col.DisplayName)
	assert.Equal(t, auditing.AttributeTypeString, col.AttributeType)
	assert.True(t, col.IsAuditEnabled.Enabled())
	assert.False(t, col.IsAuditEnabled.Changeable())
}

func TestFetchTableMetadata(t *testing.T) {
	id := uuid.New()
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/EntityDefinitions("+id.String()+")", r.URL.Path)
		assert.Equal(t, "Strong", r.Header.Get("Consistency"))
		assert.True(t, strings.HasPrefix(r.URL.Query().Get("$expand"), "Attributes($select="))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"MetadataId":     id,
			"LogicalName":    "account",
			"DisplayName":    map[string]any{"UserLocalizedLabel": nil},
			"IsAuditEnabled": map[string]any{"Value": false, "CanBeChanged": true},
			"Attributes": []map[string]any{
				{"LogicalName": "name", "AttributeType": "String"},
				{"LogicalName": "owneridname", "AttributeType": "String", "AttributeOf": "ownerid"},
			},
		})
	})

	meta, err := NewMetadataProvider(c).FetchTableMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "account", meta.LogicalName)
	assert.Nil(t, meta.DisplayName)
	assert.False(t, meta.IsAuditEnabled.Enabled())
	assert.True(t, meta.IsAuditEnabled.Changeable())
	require.Len(t, meta.Attributes, 2)
	assert.Nil(t, meta.Attributes[0].IsAuditEnabled)
	require.NotNil(t, meta.Attributes[1].AttributeOf)
	assert.Equal(t, "ownerid", *meta.Attributes[1].AttributeOf)
}

func TestFetchOrganizationConfig(t *testing.T) {
	orgID := uuid.New()
	_, c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"value": []map[string]any{{
			"organizationid":             orgID,
			"isauditenabled":             true,
			"auditretentionperiodv2":     30,
			"isuseraccessauditenabled":   nil,
			"useraccessauditinginterval": 4,
		}}})
	})

	org, err := NewMetadataProvider(c).FetchOrganizationConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auditing.OrganizationAuditConfig{
		OrganizationID:                orgID,
		IsAuditEnabled:                true,
		AuditRetentionPeriodDays:      30,
		IsUserAccessAuditEnabled:      false,
		UserAccessRetentionPeriodDays: 4,
	}, *org)
}

func TestFetchOrganizationConfig_Empty(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"value": []any{}})
	})

	_, err := NewMetadataProvider(c).FetchOrganizationConfig(context.Background())
	assert.ErrorIs(t, err, ErrNoOrganization)
}
