package domain

import "time"

// System is an information system registered by an organisation.
type System struct {
	ID                     int64
	OrganisationID         int64
	Name                   string
	SystemType             string
	LastAssessed           string
	SystemOwner            []string
	HostingType            []string
	CorporateServices      []string
	CorporateServicesOther string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CorporateServicesOtherID is the corporate services choice that needs a description.
const CorporateServicesOtherID = "other"

// Choice lists for the system form.
var (
	SystemTypes = []Choice{
		{"directly_supports_organisation_mission", "The system directly supports the organisation's mission"},
		{"supports_essential_service", "The system supports an essential service"},
		{"corporate_system", "The system is a corporate or back-office system"},
	}
	OwnerTypes = []Choice{
		{"in_house", "Owned and operated in-house"},
		{"third_party", "Operated by a third party"},
		{"shared_service", "Shared service with another organisation"},
	}
	HostingTypes = []Choice{
		{"on_premise", "On premise"},
		{"public_cloud", "Public cloud"},
		{"private_cloud", "Private cloud"},
		{"hybrid", "Hybrid"},
		{"internet_facing", "Internet facing"},
	}
	AssessedChoices = []Choice{
		{"assessed_in_2425", "Assessed in 2024/25"},
		{"assessed_in_2324", "Assessed in 2023/24"},
		{"not_assessed", "Not assessed before"},
	}
	CorporateServices = []Choice{
		{"payroll", "Payroll"},
		{"finance", "Finance"},
		{"hr", "Human resources"},
		{"email", "Email and collaboration"},
		{"none", "None"},
		{CorporateServicesOtherID, "Other"},
	}
)

// ChoiceIDs returns the ids of a choice list.
func ChoiceIDs(choices []Choice) []string {
	ids := make([]string, len(choices))
	for i, c := range choices {
		ids[i] = c.ID
	}
	return ids
}
