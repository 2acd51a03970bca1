package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
	"github.com/3mpowered/dataverse-convenience/internal/storage"
)

type recordingStorage struct {
	key         string
	contentType string
	data        []byte
	err         error
	existsErr   error
	uploads     int
}

func (s *recordingStorage) Upload(_ context.Context, key string, r io.Reader, contentType string) (*storage.UploadResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.key, s.contentType, s.data = key, contentType, data
	s.uploads++
	return &storage.UploadResult{Key: key, Location: "/tmp/" + key, Size: int64(len(data)), Checksum: storage.Checksum(data)}, nil
}

func (s *recordingStorage) Exists(_ context.Context, key string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.data != nil && s.key == key, nil
}

func strPtr(s string) *string { return &s }

func sampleSettings() *auditing.AuditSettings {
	return &auditing.AuditSettings{
		OrganizationAuditConfig: auditing.OrganizationAuditConfig{
			OrganizationID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			IsAuditEnabled:           true,
			AuditRetentionPeriodDays: 30,
		},
		Tables: []auditing.TableAuditSetting{
			{
				LogicalName:       "account",
				DisplayName:       "Account",
				SolutionBehaviour: auditing.AllAttributes,
				IsAuditEnabled:    true,
				CanAuditBeChanged: true,
				Columns: []auditing.ColumnAuditSetting{
					{LogicalName: "name", DisplayName: "Account Name", TypeCode: auditing.AttributeTypeString, EntityLogicalName: "account", IsAuditEnabled: true, CanAuditBeChanged: true},
					{LogicalName: "revenue", DisplayName: "Annual Revenue", TypeCode: auditing.AttributeTypeMoney, EntityLogicalName: "account"},
				},
			},
			{
				LogicalName:       "contact",
				DisplayName:       "Contact",
				SolutionBehaviour: auditing.SelectedAttributes,
				Columns:           []auditing.ColumnAuditSetting{},
			},
		},
	}
}

func sampleChanges() *auditing.ChangedAuditSettings {
	return &auditing.ChangedAuditSettings{
		IsAuditEnabled: true,
		Tables: []auditing.ChangedTableAuditSetting{
			{
				LogicalName:       "account",
				DisplayName:       "Account",
				SolutionBehaviour: auditing.SelectedAttributes,
				IsAuditEnabled:    true,
				CanAuditBeChanged: true,
				Columns: []auditing.ChangedColumnAuditSetting{
					{
						ColumnAuditSetting: auditing.ColumnAuditSetting{LogicalName: "name", DisplayName: "Account Name", TypeCode: auditing.AttributeTypeString, CanAuditBeChanged: true},
						Change:             auditing.Change{ErrorMessage: strPtr("dataverse: 400: rejected")},
					},
				},
			},
			{
				LogicalName: "contact",
				DisplayName: "Contact",
				Columns:     []auditing.ChangedColumnAuditSetting{},
				Change:      auditing.Change{ErrorMessage: strPtr("Auditing can't be enabled for table contact as customization is locked")},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"none", "json", "yaml", "csv"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, Format(s), f)
	}
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatNone, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "auditing-list.json", FileName("list", FormatJSON))
	assert.Equal(t, "auditing-enable.csv", FileName("enable", FormatCSV))
	assert.Equal(t, "auditing-disable.yaml", FileName("disable", FormatYAML))
}

func TestEncodeSettings_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSettings(&buf, FormatJSON, sampleSettings()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, true, doc["isAuditEnabled"])
	assert.Equal(t, float64(30), doc["auditRetentionPeriodDays"])
	tables := doc["tables"].([]any)
	require.Len(t, tables, 2)
	assert.Equal(t, "AllAttributes", tables[0].(map[string]any)["solutionBehaviour"])
	assert.Equal(t, "String", tables[0].(map[string]any)["columns"].([]any)[0].(map[string]any)["typeCode"])
	assert.True(t, strings.Contains(buf.String(), "\n  \""), "expected indented output")
}

func TestEncodeSettings_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSettings(&buf, FormatCSV, sampleSettings()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, settingsHeader, rows[0])
	assert.Equal(t, []string{"account", "Account", "AllAttributes", "true", "true", "name", "Account Name", "String", "true", "true"}, rows[1])
	assert.Equal(t, []string{"account", "Account", "AllAttributes", "true", "true", "revenue", "Annual Revenue", "Money", "false", "false"}, rows[2])
	assert.Equal(t, []string{"contact", "Contact", "SelectedAttributes", "false", "false", "", "", "", "", ""}, rows[3])
}

func TestEncodeChanges_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeChanges(&buf, FormatCSV, sampleChanges()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], len(changesHeader))
	assert.Equal(t, "changed", rows[1][6])
	assert.Equal(t, "failed", rows[1][14])
	assert.Equal(t, "dataverse: 400: rejected", rows[1][15])
	assert.Equal(t, "locked", rows[2][6])
	assert.Equal(t, "", rows[2][8])
}

func TestEncodeChanges_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeChanges(&buf, FormatYAML, sampleChanges()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "organizationId: "), "field order should follow the JSON document, got:\n%s", out)
	assert.NotContains(t, out, "{")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, true, doc["isAuditEnabled"])
	tables := doc["tables"].([]any)
	assert.Equal(t, "contact", tables[1].(map[string]any)["logicalName"])
}

func TestExporter_Settings(t *testing.T) {
	store := &recordingStorage{}
	result, err := New(store, FormatCSV).Settings(context.Background(), sampleSettings())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "auditing-list.csv", store.key)
	assert.Equal(t, "text/csv", store.contentType)
	assert.Equal(t, "/tmp/auditing-list.csv", result.Location)
}

func TestExporter_Changes(t *testing.T) {
	store := &recordingStorage{}
	_, err := New(store, FormatJSON).Changes(context.Background(), "disable", sampleChanges())
	require.NoError(t, err)
	assert.Equal(t, "auditing-disable.json", store.key)
	assert.Equal(t, "application/json", store.contentType)
}

func TestExporter_None(t *testing.T) {
	store := &recordingStorage{}
	e := New(store, FormatNone)
	assert.False(t, e.Enabled())

	result, err := e.Changes(context.Background(), "enable", sampleChanges())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, store.key)
}

func TestExporter_UploadError(t *testing.T) {
	store := &recordingStorage{err: errors.New("bucket gone")}
	_, err := New(store, FormatJSON).Settings(context.Background(), sampleSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auditing-list.json")
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestExporter_ReportsReplacedExport(t *testing.T) {
	store := &recordingStorage{}
	e := New(store, FormatJSON)

	first, err := e.Changes(context.Background(), "enable", sampleChanges())
	require.NoError(t, err)
	assert.False(t, first.Replaced)

	second, err := e.Changes(context.Background(), "enable", sampleChanges())
	require.NoError(t, err)
	assert.True(t, second.Replaced)
	assert.Equal(t, 2, store.uploads)

	other, err := e.Changes(context.Background(), "disable", sampleChanges())
	require.NoError(t, err)
	assert.False(t, other.Replaced)
}

func TestExporter_ExistsErrorStillUploads(t *testing.T) {
	store := &recordingStorage{existsErr: errors.New("head denied")}
	result, err := New(store, FormatCSV).Settings(context.Background(), sampleSettings())
	require.NoError(t, err)
	assert.False(t, result.Replaced)
	assert.Equal(t, 1, store.uploads)
	assert.Equal(t, "auditing-list.csv", store.key)
}
