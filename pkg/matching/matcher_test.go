package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func personWith(id, name string, fields models.PersonFields) *models.Entity {
	return models.NewPerson(id, name, fields)
}

func withEmail(email string) models.PersonFields {
	return models.PersonFields{Emails: []models.EmailAddress{{Email: email}}}
}

func withPhone(number string) models.PersonFields {
	return models.PersonFields{Phones: []models.PhoneNumber{{Number: number}}}
}

func TestCompareEntities_Person(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	t.Run("shared normalized email", func(t *testing.T) {
		match, err := m.CompareEntities(models.EntityTypePerson,
			personWith("a", "Ada Lovelace", withEmail("ADA@x.com")),
			personWith("b", "Zed Quux", withEmail(" ada@x.com")),
		)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Contains(t, match.MatchReasons, models.MatchReason{
			Field: "email", Type: models.MatchReasonExact, Score: 1.0, Details: "shared email ada@x.com",
		})
		assert.Equal(t, 1.0, match.Confidence)
		assert.Equal(t, models.ActionMerge, match.SuggestedAction)
	})

	t.Run("phone is the only shared signal", func(t *testing.T) {
		match, err := m.CompareEntities(models.EntityTypePerson,
			personWith("a", "Alice", withPhone("(555) 123-4567")),
			personWith("b", "Bob", withPhone("555.123.4567")),
		)
		require.NoError(t, err)
		require.NotNil(t, match)
		require.Len(t, match.MatchReasons, 1)
		assert.Equal(t, "phone", match.MatchReasons[0].Field)
		assert.Equal(t, 1.0, match.Confidence)
		assert.Equal(t, models.ActionMerge, match.SuggestedAction)
	})

	t.Run("email and similar company are weighted", func(t *testing.T) {
		f1 := withEmail("x@y.com")
		f1.CurrentCompany = "Acme Corp"
		f2 := withEmail("x@y.com")
		f2.CurrentCompany = "Acme Corp."

		match, err := m.CompareEntities(models.EntityTypePerson, personWith("a", "Ann", f1), personWith("b", "Zoe", f2))
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.InDelta(t, (1.0*1.0+0.9*0.3)/1.3, match.Confidence, 1e-9)
	})

	t.Run("matching name tokens", func(t *testing.T) {
		match, err := m.CompareEntities(models.EntityTypePerson,
			personWith("a", "John Smith", models.PersonFields{}),
			personWith("b", "smith john", models.PersonFields{}),
		)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, "name", match.MatchReasons[0].Field)
		assert.Equal(t, models.MatchReasonFuzzy, match.MatchReasons[0].Type)
	})

	t.Run("no shared signal", func(t *testing.T) {
		match, err := m.CompareEntities(models.EntityTypePerson,
			personWith("a", "John Smith", withEmail("j@x.com")),
			personWith("b", "Mary Jones", withEmail("m@x.com")),
		)
		require.NoError(t, err)
		assert.Nil(t, match)
	})
}

func TestCompareEntities_Organization(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	o1 := models.NewOrganization("o1", "Acme", models.OrganizationFields{
		Domains: []string{"WWW.Acme.com"},
		Website: "https://www.acme.com/",
	})
	o2 := models.NewOrganization("o2", "Acme Inc", models.OrganizationFields{
		Domains: []string{"acme.com"},
		Website: "acme.com",
	})

	match, err := m.CompareEntities(models.EntityTypeOrganization, o1, o2)
	require.NoError(t, err)
	require.NotNil(t, match)

	fields := make([]string, 0, len(match.MatchReasons))
	for _, r := range match.MatchReasons {
		fields = append(fields, r.Field)
	}
	assert.ElementsMatch(t, []string{"domain", "website"}, fields)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, models.EntityTypeOrganization, match.EntityType)
}

func TestCompareEntities_Generic(t *testing.T) {
	g1 := models.NewGeneric("g1", "Widget", nil)
	g1.Sources = []string{"crm"}
	g2 := models.NewGeneric("g2", "Gadget", nil)
	g2.Sources = []string{"crm"}

	t.Run("single shared source", func(t *testing.T) {
		match, err := NewMatcher(DefaultConfig()).CompareEntities(models.EntityTypeGeneric, g1, g2)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.InDelta(t, 0.5, match.Confidence, 1e-9)
		assert.Equal(t, models.ActionIgnore, match.SuggestedAction)
	})

	t.Run("below min confidence", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinConfidence = 0.6
		match, err := NewMatcher(cfg).CompareEntities(models.EntityTypeGeneric, g1, g2)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("source bonus is capped", func(t *testing.T) {
		a := models.NewGeneric("a", "", nil)
		a.Sources = []string{"s1", "s2", "s3", "s4"}
		b := models.NewGeneric("b", "", nil)
		b.Sources = []string{"s1", "s2", "s3", "s4"}

		match, err := NewMatcher(DefaultConfig()).CompareEntities(models.EntityTypeGeneric, a, b)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, 1.0, match.MatchReasons[0].Score)
		assert.Equal(t, 1.0, match.Confidence)
	})
}

func TestCompareEntities_MalformedShape(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	org := models.NewOrganization("o1", "Acme", models.OrganizationFields{})
	p := personWith("p1", "Ada", models.PersonFields{})

	tests := []struct {
		name       string
		entityType models.EntityType
		e1, e2     *models.Entity
	}{
		{"organization dispatched as person", models.EntityTypePerson, org, p},
		{"person dispatched as organization", models.EntityTypeOrganization, p, org},
		{"unknown type", models.EntityType("Vehicle"), p, p},
		{"nil entity", models.EntityTypePerson, p, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := m.CompareEntities(tt.entityType, tt.e1, tt.e2)
			assert.ErrorIs(t, err, models.ErrInvalidEntity)
			assert.Nil(t, match)
		})
	}
}

func TestAction(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	tests := []struct {
		confidence float64
		want       models.SuggestedAction
	}{
		{1.0, models.ActionMerge},
		{0.9, models.ActionMerge},
		{0.89, models.ActionLink},
		{0.7, models.ActionLink},
		{0.69, models.ActionIgnore},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Action(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestCompareEntities_ConfidenceBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FieldWeights = map[string]float64{"email": 5, "name": 0}
	m := NewMatcher(cfg)

	pairs := [][2]*models.Entity{
		{personWith("a", "Ann Lee", withEmail("a@x.com")), personWith("b", "Ann Lee", withEmail("a@x.com"))},
		{personWith("a", "Ann Lee", models.PersonFields{}), personWith("b", "Ann Lee", models.PersonFields{})},
		{personWith("a", "Ann", withPhone("1")), personWith("b", "Bo", withPhone("1"))},
	}

	for _, pair := range pairs {
		match, err := m.CompareEntities(models.EntityTypePerson, pair[0], pair[1])
		require.NoError(t, err)
		if match == nil {
			continue
		}
		assert.GreaterOrEqual(t, match.Confidence, 0.0)
		assert.LessOrEqual(t, match.Confidence, 1.0)
		if match.Confidence >= cfg.AutoMergeThreshold {
			assert.Equal(t, models.ActionMerge, match.SuggestedAction)
		}
	}
}
