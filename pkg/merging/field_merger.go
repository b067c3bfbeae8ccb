package merging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// NotesSeparator joins the notes of merged entities
const NotesSeparator = "\n---\n"

// FieldMerger handles field-level merge logic
type FieldMerger struct {
	policy models.ConflictPolicy
}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger(policy models.ConflictPolicy) *FieldMerger {
	if policy == "" {
		policy = models.ConflictPolicySurvivor
	}
	return &FieldMerger{policy: policy}
}

// Outcome is the merged state plus the bookkeeping of which fields changed or clashed
type Outcome struct {
	Entity     *models.Entity
	Conflicted []string
	Resolved   []string
}

func (o *Outcome) conflict(field string) { o.Conflicted = append(o.Conflicted, field) }
func (o *Outcome) resolve(field string)  { o.Resolved = append(o.Resolved, field) }

// SelectSurvivor orders two entities as survivor and merged. Higher confidence wins, then
// more sources, then the older record, then the smaller id.
func SelectSurvivor(a, b *models.Entity) (survivor, merged *models.Entity) {
	switch {
	case a.Confidence != b.Confidence:
		if a.Confidence > b.Confidence {
			return a, b
		}
		return b, a
	case len(a.Sources) != len(b.Sources):
		if len(a.Sources) > len(b.Sources) {
			return a, b
		}
		return b, a
	case !a.CreatedAt.Equal(b.CreatedAt):
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	case a.ID <= b.ID:
		return a, b
	default:
		return b, a
	}
}

// Merge folds merged into a copy of survivor. Neither input is modified.
func (m *FieldMerger) Merge(survivor, merged *models.Entity, confidenceBoost float64, now time.Time) Outcome {
	out := Outcome{
		Entity:     survivor.Clone(),
		Conflicted: []string{},
		Resolved:   []string{},
	}
	e := out.Entity
	mergedIsNewer := merged.UpdatedAt.After(survivor.UpdatedAt)

	if sources, added := union(e.Sources, merged.Sources, func(s string) string { return s }); added {
		e.Sources = sources
		out.resolve("sources")
	}

	e.Name = m.scalar(&out, "name", e.Name, merged.Name, mergedIsNewer)
	e.Confidence = min(1.0, e.Confidence+confidenceBoost)
	e.UpdatedAt = now

	switch e.Type {
	case models.EntityTypePerson:
		m.mergePerson(&out, merged.Person, mergedIsNewer)
	case models.EntityTypeOrganization:
		m.mergeOrganization(&out, merged.Organization, mergedIsNewer)
	case models.EntityTypeGeneric:
		// generic entities only carry metadata
	}

	m.mergeMetadata(&out, merged.Metadata, mergedIsNewer)

	return out
}

func (m *FieldMerger) mergePerson(out *Outcome, from *models.PersonFields, mergedIsNewer bool) {
	p := out.Entity.Person
	if p == nil || from == nil {
		return
	}

	if emails, added := unionEmails(p.Emails, from.Emails); added {
		p.Emails = emails
		out.resolve("emails")
	}
	if phones, added := unionPhones(p.Phones, from.Phones); added {
		p.Phones = phones
		out.resolve("phones")
	}

	p.CurrentCompany = m.scalar(out, "current_company", p.CurrentCompany, from.CurrentCompany, mergedIsNewer)

	a, b := strings.TrimSpace(p.Notes), strings.TrimSpace(from.Notes)
	switch {
	case b == "" || a == b:
	case a == "":
		p.Notes = from.Notes
		out.resolve("notes")
	default:
		p.Notes = p.Notes + NotesSeparator + from.Notes
		out.resolve("notes")
	}
}

func (m *FieldMerger) mergeOrganization(out *Outcome, from *models.OrganizationFields, mergedIsNewer bool) {
	o := out.Entity.Organization
	if o == nil || from == nil {
		return
	}

	if domains, added := union(o.Domains, from.Domains, normalizers.NormalizeDomain); added {
		o.Domains = domains
		out.resolve("domains")
	}

	if normalizers.NormalizeWebsite(o.Website) != normalizers.NormalizeWebsite(from.Website) {
		o.Website = m.scalar(out, "website", o.Website, from.Website, mergedIsNewer)
	}
}

func (m *FieldMerger) mergeMetadata(out *Outcome, from map[string]any, mergedIsNewer bool) {
	if len(from) == 0 {
		return
	}
	e := out.Entity
	if e.Metadata == nil {
		e.Metadata = make(map[string]any, len(from))
	}

	keys := make([]string, 0, len(from))
	for k := range from {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		incoming := from[k]
		current, ok := e.Metadata[k]
		switch {
		case !ok || isEmpty(current):
			if !isEmpty(incoming) {
				e.Metadata[k] = incoming
				out.resolve("metadata." + k)
			}
		case isEmpty(incoming) || fmt.Sprintf("%v", current) == fmt.Sprintf("%v", incoming):
		default:
			out.conflict("metadata." + k)
			if m.policy == models.ConflictPolicyMostRecent && mergedIsNewer {
				e.Metadata[k] = incoming
			}
		}
	}
}

// scalar applies non-empty-over-empty. Two different non-empty values are a conflict settled by the policy.
func (m *FieldMerger) scalar(out *Outcome, field, current, incoming string, mergedIsNewer bool) string {
	c, i := strings.TrimSpace(current), strings.TrimSpace(incoming)
	switch {
	case i == "" || c == i:
		return current
	case c == "":
		out.resolve(field)
		return incoming
	default:
		out.conflict(field)
		if m.policy == models.ConflictPolicyMostRecent && mergedIsNewer {
			return incoming
		}
		return current
	}
}

func union(base, extra []string, key func(string) string) ([]string, bool) {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, v := range base {
		k := key(v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	added := false
	for _, v := range extra {
		k := key(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
		added = true
	}
	return out, added
}

func unionEmails(base, extra []models.EmailAddress) ([]models.EmailAddress, bool) {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]models.EmailAddress, 0, len(base)+len(extra))
	for _, e := range base {
		k := normalizers.NormalizeEmail(e.Email)
		if !seen[k] {
			seen[k] = true
			out = append(out, e)
		}
	}
	added := false
	for _, e := range extra {
		k := normalizers.NormalizeEmail(e.Email)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		e.Primary = false
		out = append(out, e)
		added = true
	}
	return out, added
}

func unionPhones(base, extra []models.PhoneNumber) ([]models.PhoneNumber, bool) {
	key := func(p models.PhoneNumber) string {
		if d := normalizers.NormalizePhone(p.Number); d != "" {
			return d
		}
		return strings.ToLower(strings.TrimSpace(p.Number))
	}

	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]models.PhoneNumber, 0, len(base)+len(extra))
	for _, p := range base {
		k := key(p)
		if !seen[k] {
			seen[k] = true
			out = append(out, p)
		}
	}
	added := false
	for _, p := range extra {
		k := key(p)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
		added = true
	}
	return out, added
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
