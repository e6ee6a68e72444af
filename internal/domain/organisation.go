// Package domain holds WebCAF's entities and the value rules that belong to
// them (choice lists, normalisation, display references).
package domain

import (
	"strings"
	"time"
)

// Choice is a stored id with its display label.
type Choice struct {
	ID    string
	Label string
}

// OrganisationTypes lists the organisation_type choices in display order.
var OrganisationTypes = []Choice{
	{"ministerial-department", "Ministerial department"},
	{"non-ministerial-department", "Non-ministerial department"},
	{"executive-agency", "Executive agency"},
	{"executive-ndpb", "Executive non-departmental public body"},
	{"advisory-ndpb", "Advisory non-departmental public body"},
	{"public-corporation", "Public corporation"},
	{"devolved-administration", "Devolved administration"},
	{"local-authority", "Local authority"},
	{"other", "Other"},
}

// OrganisationTypeID resolves a display label ("Other") to its stored id.
// Unknown labels return "" and false.
func OrganisationTypeID(label string) (string, bool) {
	for _, c := range OrganisationTypes {
		if strings.EqualFold(c.Label, strings.TrimSpace(label)) {
			return c.ID, true
		}
	}
	return "", false
}

// OrganisationTypeLabel returns the label for a stored id, or the id itself.
func OrganisationTypeLabel(id string) string {
	for _, c := range OrganisationTypes {
		if c.ID == id {
			return c.Label
		}
	}
	return id
}

// ValidOrganisationType reports whether id is a known organisation type.
func ValidOrganisationType(id string) bool {
	for _, c := range OrganisationTypes {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Organisation owns systems and is referenced by user profiles.
type Organisation struct {
	ID               int64
	Name             string
	OrganisationType string
	ContactName      string
	ContactRole      string
	ContactEmail     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormaliseName folds case and collapses whitespace. Two names with the same
// normalised form are the same organisation.
func NormaliseName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// OrganisationContact is the editable contact block.
type OrganisationContact struct {
	ContactName  string
	ContactRole  string
	ContactEmail string
}

// Contact returns the organisation's current contact block.
func (o Organisation) Contact() OrganisationContact {
	return OrganisationContact{
		ContactName:  o.ContactName,
		ContactRole:  o.ContactRole,
		ContactEmail: o.ContactEmail,
	}
}
