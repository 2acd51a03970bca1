package dataverse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

func TestSetOrganizationAudit(t *testing.T) {
	orgID := uuid.New()
	var body map[string]any
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/data/v9.2/organizations("+orgID.String()+")", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})
	m := NewMutator(c)

	require.NoError(t, m.SetOrganizationAudit(context.Background(), orgID, true))
	assert.Equal(t, map[string]any{"isauditenabled": true}, body)

	require.NoError(t, m.SetOrganizationUserAccessAudit(context.Background(), orgID, false))
	assert.Equal(t, map[string]any{"isuseraccessauditenabled": false}, body)
}

func TestSetTableAudit(t *testing.T) {
	table := auditing.TableAuditSetting{MetadataID: uuid.New(), LogicalName: "account"}
	var put map[string]any
	var headers http.Header
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/EntityDefinitions("+table.MetadataID.String()+")", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, http.StatusOK, map[string]any{
				"@odata.context": "https://contoso/api/data/v9.2/$metadata#EntityDefinitions/$entity",
				"MetadataId":     table.MetadataID,
				"LogicalName":    "account",
				"SchemaName":     "Account",
				"IsAuditEnabled": map[string]any{"Value": false, "CanBeChanged": true, "ManagedPropertyLogicalName": "canmodifyauditsettings"},
			})
		case http.MethodPut:
			headers = r.Header
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&put))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	res := NewMutator(c).SetTableAudit(context.Background(), table, true)
	require.True(t, res.Succeeded(), "unexpected error: %v", res.Err)
	assert.Equal(t, "account", res.Value.LogicalName)

	assert.Equal(t, "true", headers.Get("MSCRM.MergeLabels"))
	assert.NotContains(t, put, "@odata.context")
	assert.Equal(t, "Account", put["SchemaName"])
	audit := put["IsAuditEnabled"].(map[string]any)
	assert.Equal(t, true, audit["Value"])
	assert.Equal(t, "canmodifyauditsettings", audit["ManagedPropertyLogicalName"])
}

func TestSetTableAudit_FailureIsCaptured(t *testing.T) {
	table := auditing.TableAuditSetting{MetadataID: uuid.New(), LogicalName: "account"}
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(t, w, http.StatusOK, map[string]any{"IsAuditEnabled": map[string]any{"Value": false}})
			return
		}
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": map[string]string{
			"code": "0x80040203", "message": "customization locked",
		}})
	})

	res := NewMutator(c).SetTableAudit(context.Background(), table, true)
	assert.False(t, res.Succeeded())
	assert.Equal(t, table, res.Value)
	require.NotNil(t, res.ErrorMessage())
	assert.Contains(t, *res.ErrorMessage(), "customization locked")
}

func TestSetTableAudit_MissingProperty(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"LogicalName": "account"})
	})

	res := NewMutator(c).SetTableAudit(context.Background(), auditing.TableAuditSetting{MetadataID: uuid.New()}, true)
	assert.False(t, res.Succeeded())
}

func TestSetColumnAudit(t *testing.T) {
	column := auditing.ColumnAuditSetting{MetadataID: uuid.New(), LogicalName: "name", EntityLogicalName: "account"}
	var headers http.Header
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/EntityDefinitions(LogicalName='account')/Attributes("+column.MetadataID.String()+")", r.URL.Path)
		if r.Method == http.MethodGet {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"@odata.type":    "#Microsoft.Dynamics.CRM.StringAttributeMetadata",
				"IsAuditEnabled": map[string]any{"Value": true, "CanBeChanged": true},
			})
			return
		}
		headers = r.Header
		var put map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&put))
		assert.Equal(t, "#Microsoft.Dynamics.CRM.StringAttributeMetadata", put["@odata.type"])
		assert.Equal(t, false, put["IsAuditEnabled"].(map[string]any)["Value"])
		w.WriteHeader(http.StatusNoContent)
	})

	res := NewMutator(c).SetColumnAudit(context.Background(), column, "contoso", false)
	require.True(t, res.Succeeded(), "unexpected error: %v", res.Err)
	assert.Equal(t, "contoso", headers.Get("MSCRM.SolutionUniqueName"))
	assert.Equal(t, "true", headers.Get("MSCRM.MergeLabels"))
}

func TestPublish(t *testing.T) {
	var body map[string]string
	calls := 0
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/data/v9.2/PublishXml", r.URL.Path)
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(data, &body))
		w.WriteHeader(http.StatusNoContent)
	})
	m := NewMutator(c)

	require.NoError(t, m.Publish(context.Background(), nil))
	assert.Equal(t, 0, calls)

	require.NoError(t, m.Publish(context.Background(), []string{"account", "contact"}))
	assert.Equal(t, 1, calls)
	assert.Equal(t,
		"<importexportxml><entities><entity>account</entity><entity>contact</entity></entities></importexportxml>",
		body["ParameterXml"])
}
