package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

func TestEntityUnmarshal(t *testing.T) {
	body := `{
		"_id": "S1",
		"_type": [{"_id": "p1", "string": "person"}],
		"_parent": [{"_id": "p2", "reference": "C1"}, {"_id": "p3", "reference": "C2"}],
		"_thumbnail": "https://example.com/t.png",
		"forename": [{"_id": "p4", "string": "Mari"}]
	}`

	var entity model.Entity
	require.NoError(t, json.Unmarshal([]byte(body), &entity))

	assert.Equal(t, model.EntityID("S1"), entity.ID)
	assert.Equal(t, "person", entity.Type())
	assert.Equal(t, []model.EntityID{"C1", "C2"}, entity.References(model.PropertyParent))
	assert.True(t, entity.HasReference(model.PropertyParent, "C2"))
	assert.False(t, entity.HasReference(model.PropertyParent, "C3"))
	assert.Equal(t, []string{"Mari"}, entity.Strings("forename"))
	assert.NotContains(t, entity.Properties, "_thumbnail")
}

func TestEntityRoundTripKeepsID(t *testing.T) {
	entity := model.Entity{
		ID:         "T1",
		Properties: map[string][]model.Property{"grupp": {{Reference: "C1"}}},
	}

	data, err := json.Marshal(entity)
	require.NoError(t, err)

	var decoded model.Entity
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entity.ID, decoded.ID)
	assert.Equal(t, []model.EntityID{"C1"}, decoded.References("grupp"))
}

func TestGrantBatchByResource(t *testing.T) {
	batch := model.GrantBatch{Grants: []model.PermissionGrant{
		{Grantee: "S1", Resource: "T2", Kind: model.PermissionExpander},
		{Grantee: "S1", Resource: "T1", Kind: model.PermissionExpander},
		{Grantee: "S2", Resource: "T2", Kind: model.PermissionExpander},
	}}

	order, grouped := batch.ByResource()

	assert.Equal(t, []model.EntityID{"T2", "T1"}, order)
	assert.Equal(t, []model.EntityID{"S1", "S2"}, grouped["T2"])
	assert.Equal(t, []model.EntityID{"S1"}, grouped["T1"])
}

func TestCredentialExpiry(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	cred := model.Credential{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, cred.Expired(now))
	assert.Equal(t, time.Minute, cred.Remaining(now))
	assert.True(t, cred.Expired(now.Add(time.Minute)))
	assert.Equal(t, time.Duration(0), cred.Remaining(now.Add(time.Hour)))
	assert.Equal(t, "_expander", model.PermissionExpander.PropertyName())
}
