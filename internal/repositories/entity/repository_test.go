package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestRowRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		entity *models.Entity
	}{
		{"person", &models.Entity{
			ID: "p1", Type: models.EntityTypePerson, Name: "Ada", Confidence: 0.7,
			Sources:   []string{"crm"},
			Person:    &models.PersonFields{Emails: []models.EmailAddress{{Email: "ada@example.com", Primary: true}}},
			CreatedAt: ts, UpdatedAt: ts,
		}},
		{"organization", &models.Entity{
			ID: "o1", Type: models.EntityTypeOrganization, Name: "Acme", Confidence: 0.5,
			Organization: &models.OrganizationFields{Domains: []string{"acme.com"}, Website: "https://acme.com"},
			CreatedAt:    ts, UpdatedAt: ts,
		}},
		{"generic", &models.Entity{
			ID: "g1", Type: models.EntityTypeGeneric, Name: "Widget", Confidence: 0.5,
			Metadata:  map[string]any{"color": "blue"},
			CreatedAt: ts, UpdatedAt: ts,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := toRow(tt.entity)
			assert.Equal(t, string(tt.entity.Type), row.EntityType)

			got := row.toEntity()
			assert.Equal(t, tt.entity, got)
			require.NoError(t, got.Validate())
		})
	}
}

func TestRowScansJSONColumns(t *testing.T) {
	var row Row
	require.NoError(t, row.Person.Scan([]byte(`{"emails":[{"email":"a@b.com"}],"current_company":"Acme"}`)))
	require.NoError(t, row.Organization.Scan([]byte(`null`)))
	require.NoError(t, row.Sources.Scan(`["crm","erp"]`))
	row.ID = "p1"
	row.EntityType = "Person"

	e := row.toEntity()
	require.NotNil(t, e.Person)
	assert.Equal(t, "Acme", e.Person.CurrentCompany)
	assert.Nil(t, e.Organization)
	assert.Equal(t, []string{"crm", "erp"}, e.Sources)
}

func TestSearchQuery(t *testing.T) {
	query, args := searchQuery(models.EntityTypePerson, 50)
	assert.Contains(t, query, "SELECT id, entity_type, name FROM entities")
	assert.Contains(t, query, "WHERE entity_type = $1")
	assert.Contains(t, query, "ORDER BY id")
	assert.Contains(t, query, "LIMIT")
	assert.Equal(t, "Person", args[0])

	query, args = searchQuery("", 0)
	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "LIMIT")
	assert.Empty(t, args)
}

func TestGetQuery(t *testing.T) {
	query, args := getQuery("p1", false)
	assert.Contains(t, query, "WHERE id = $1")
	assert.NotContains(t, query, "FOR UPDATE")
	assert.Equal(t, []any{"p1"}, args)

	query, _ = getQuery("p1", true)
	assert.Contains(t, query, "FOR UPDATE")
}

func TestUpsertQuery(t *testing.T) {
	e := models.NewPerson("p1", "Ada", models.PersonFields{})
	query, args := upsertQuery([]Row{toRow(e), toRow(e)})

	assert.Contains(t, query, "INSERT INTO entities")
	assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE SET entity_type = EXCLUDED.entity_type")
	assert.NotContains(t, query, "created_at = EXCLUDED.created_at")
	assert.Len(t, args, 2*len(columns))
}

func TestUpdateQuery(t *testing.T) {
	e := models.NewGeneric("g1", "Widget", nil)
	query, args := updateQuery(toRow(e))
	assert.Contains(t, query, "UPDATE entities SET")
	assert.Contains(t, query, "WHERE id = $8")
	assert.Len(t, args, 8)
}
