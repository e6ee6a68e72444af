package handlers

import (
	"fmt"
	"strings"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
)

// Page paths. The access gate's own paths live in middleware.
const (
	PathDraftAssessments   = "/draft-assessments/"
	PathChangeOrganisation = "/change-organisation/"
	PathMyOrganisation     = "/my-organisation/"
	PathEditOrgType        = "/edit-my-organisation/type/"
	PathEditOrgContact     = "/edit-my-organisation/contact/"

	PathViewSystems      = "/view-systems/"
	PathCreateSystem     = "/create-new-system/"
	PathCreateOrSkipSys  = "/create-or-skip-new-system/"
	PathViewProfiles     = "/view-profiles/"
	PathCreateProfile    = "/create-new-profile/"
	PathCreateOrSkipUser = "/create-or-skip-new-profile/"

	PathCreateDraft   = "/create-draft-assessment/"
	PathNotifications = "/notifications/"
)

// Wizard sub-steps, appended to the create or edit base path.
const (
	stepChooseSystem     = "choose-system/"
	stepChooseProfile    = "choose-profile/"
	stepChooseReviewType = "choose-review-type/"
)

func editSystemPath(id int64) string { return fmt.Sprintf("/edit-system/%d/", id) }
func editProfilePath(id int64) string { return fmt.Sprintf("/edit-profile/%d/", id) }
func removeProfilePath(id int64) string { return fmt.Sprintf("/remove-profile/%d/", id) }
func editDraftPath(id int64) string { return fmt.Sprintf("/edit-draft-assessment/%d/", id) }
func exportPath(id int64) string { return fmt.Sprintf("/download-submitted-assessment/%d", id) }

// wizardBase is the create path for a new draft and the edit path otherwise.
func wizardBase(assessmentID int64) string {
	if assessmentID == 0 {
		return PathCreateDraft
	}
	return editDraftPath(assessmentID)
}

func outcomePath(id int64, objective, outcome string) string {
	return fmt.Sprintf("%sobjective/%s/outcome/%s/", editDraftPath(id), objective, outcome)
}

// safeNext accepts only same-site absolute paths.
func safeNext(next string) bool {
	return strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, `/\`)
}

func nextOrAccount(next string) string {
	if safeNext(next) {
		return next
	}
	return middleware.PathMyAccount
}
