package models

import (
	"fmt"
	"time"
)

// EntityType is the discriminant of the Entity union
type EntityType string

const (
	EntityTypePerson       EntityType = "Person"
	EntityTypeOrganization EntityType = "Organization"
	EntityTypeGeneric      EntityType = "Generic"
)

// EntityTypes lists every supported entity type in resolution order
var EntityTypes = []EntityType{EntityTypePerson, EntityTypeOrganization, EntityTypeGeneric}

// IsValid reports whether t is a known entity type
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypePerson, EntityTypeOrganization, EntityTypeGeneric:
		return true
	}
	return false
}

// ParseEntityType parses an entity type name. An empty string yields an empty type and no error.
func ParseEntityType(s string) (EntityType, error) {
	if s == "" {
		return "", nil
	}
	t := EntityType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidEntity, s)
	}
	return t, nil
}

// EmailAddress is a single email on a person
type EmailAddress struct {
	Email   string `json:"email" yaml:"email"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
	Primary bool   `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// PhoneNumber is a single phone number on a person
type PhoneNumber struct {
	Number string `json:"number" yaml:"number"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// PersonFields is the payload of a Person entity
type PersonFields struct {
	Emails         []EmailAddress `json:"emails,omitempty"`
	Phones         []PhoneNumber  `json:"phones,omitempty"`
	CurrentCompany string         `json:"current_company,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

// OrganizationFields is the payload of an Organization entity
type OrganizationFields struct {
	Domains []string `json:"domains,omitempty"`
	Website string   `json:"website,omitempty"`
}

// Entity is a resolvable record. Exactly one variant payload matching Type is set;
// Generic entities carry free-form Metadata instead.
type Entity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Sources    []string   `json:"sources"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Person       *PersonFields       `json:"person,omitempty"`
	Organization *OrganizationFields `json:"organization,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// NewPerson builds a Person entity
func NewPerson(id, name string, fields PersonFields) *Entity {
	now := time.Now().UTC()
	return &Entity{ID: id, Type: EntityTypePerson, Name: name, Confidence: 0.5, CreatedAt: now, UpdatedAt: now, Person: &fields}
}

// NewOrganization builds an Organization entity
func NewOrganization(id, name string, fields OrganizationFields) *Entity {
	now := time.Now().UTC()
	return &Entity{ID: id, Type: EntityTypeOrganization, Name: name, Confidence: 0.5, CreatedAt: now, UpdatedAt: now, Organization: &fields}
}

// NewGeneric builds a Generic entity
func NewGeneric(id, name string, metadata map[string]any) *Entity {
	now := time.Now().UTC()
	return &Entity{ID: id, Type: EntityTypeGeneric, Name: name, Confidence: 0.5, CreatedAt: now, UpdatedAt: now, Metadata: metadata}
}

// Validate checks that the variant payload agrees with the discriminant
func (e *Entity) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntity)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: entity %s confidence %v outside [0,1]", ErrInvalidEntity, e.ID, e.Confidence)
	}
	switch e.Type {
	case EntityTypePerson:
		if e.Person == nil || e.Organization != nil {
			return fmt.Errorf("%w: entity %s is a Person without a person payload", ErrInvalidEntity, e.ID)
		}
	case EntityTypeOrganization:
		if e.Organization == nil || e.Person != nil {
			return fmt.Errorf("%w: entity %s is an Organization without an organization payload", ErrInvalidEntity, e.ID)
		}
	case EntityTypeGeneric:
		if e.Person != nil || e.Organization != nil {
			return fmt.Errorf("%w: generic entity %s carries a typed payload", ErrInvalidEntity, e.ID)
		}
	default:
		return fmt.Errorf("%w: entity %s has unknown type %q", ErrInvalidEntity, e.ID, e.Type)
	}
	return nil
}

// Clone returns a deep copy of the entity
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Sources = append([]string(nil), e.Sources...)
	if e.Person != nil {
		p := *e.Person
		p.Emails = append([]EmailAddress(nil), e.Person.Emails...)
		p.Phones = append([]PhoneNumber(nil), e.Person.Phones...)
		c.Person = &p
	}
	if e.Organization != nil {
		o := *e.Organization
		o.Domains = append([]string(nil), e.Organization.Domains...)
		c.Organization = &o
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Summary returns the listing view of the entity
func (e *Entity) Summary() EntitySummary {
	return EntitySummary{ID: e.ID, Type: e.Type, Name: e.Name}
}

// Attributes flattens the entity into a document addressable by dotted paths
// such as "name", "emails.email" or "metadata.city". Metadata keys are also
// exposed at the top level when they do not shadow a built-in field.
func (e *Entity) Attributes() map[string]any {
	doc := map[string]any{
		"id":         e.ID,
		"type":       string(e.Type),
		"name":       e.Name,
		"confidence": e.Confidence,
		"sources":    toAnySlice(e.Sources),
	}

	if p := e.Person; p != nil {
		emails := make([]any, 0, len(p.Emails))
		for _, em := range p.Emails {
			emails = append(emails, map[string]any{"email": em.Email, "label": em.Label, "primary": em.Primary})
		}
		phones := make([]any, 0, len(p.Phones))
		for _, ph := range p.Phones {
			phones = append(phones, map[string]any{"number": ph.Number, "label": ph.Label})
		}
		doc["emails"] = emails
		doc["phones"] = phones
		doc["current_company"] = p.CurrentCompany
		doc["notes"] = p.Notes
	}

	if o := e.Organization; o != nil {
		doc["domains"] = toAnySlice(o.Domains)
		doc["website"] = o.Website
	}

	if len(e.Metadata) > 0 {
		doc["metadata"] = e.Metadata
		for k, v := range e.Metadata {
			if _, exists := doc[k]; !exists {
				doc[k] = v
			}
		}
	}

	return doc
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// EntitySummary is the listing view returned by store searches
type EntitySummary struct {
	ID   string     `json:"id"`
	Type EntityType `json:"type"`
	Name string     `json:"name"`
}

// EntityUpdate is a partial update. Nil fields are left untouched.
type EntityUpdate struct {
	Name         *string             `json:"name,omitempty"`
	Confidence   *float64            `json:"confidence,omitempty"`
	Sources      []string            `json:"sources,omitempty"`
	UpdatedAt    *time.Time          `json:"updated_at,omitempty"`
	Person       *PersonFields       `json:"person,omitempty"`
	Organization *OrganizationFields `json:"organization,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// UpdateFromEntity builds a full-state update from an entity
func UpdateFromEntity(e *Entity) EntityUpdate {
	c := e.Clone()
	return EntityUpdate{
		Name:         &c.Name,
		Confidence:   &c.Confidence,
		Sources:      c.Sources,
		UpdatedAt:    &c.UpdatedAt,
		Person:       c.Person,
		Organization: c.Organization,
		Metadata:     c.Metadata,
	}
}

// Apply writes the non-nil fields of the update onto the entity
func (u EntityUpdate) Apply(e *Entity) {
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.Confidence != nil {
		e.Confidence = *u.Confidence
	}
	if u.Sources != nil {
		e.Sources = append([]string(nil), u.Sources...)
	}
	if u.UpdatedAt != nil {
		e.UpdatedAt = *u.UpdatedAt
	}
	if u.Person != nil && e.Type == EntityTypePerson {
		p := *u.Person
		e.Person = &p
	}
	if u.Organization != nil && e.Type == EntityTypeOrganization {
		o := *u.Organization
		e.Organization = &o
	}
	if u.Metadata != nil {
		e.Metadata = u.Metadata
	}
}
