package workflow

import (
	"strings"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// Bucket groups an outcome's indicators.
type Bucket string

const (
	BucketAchieved          Bucket = "achieved"
	BucketPartiallyAchieved Bucket = "partially-achieved"
	BucketNotAchieved       Bucket = "not-achieved"
)

// Buckets lists the buckets in display order.
var Buckets = []Bucket{BucketAchieved, BucketPartiallyAchieved, BucketNotAchieved}

// Fill directives.
const (
	DirectiveAll  = "all"
	DirectiveSome = "some"
)

// Confirmation choices for the confirm sub-step.
const (
	ConfirmChoice       = "confirm"
	ConfirmChoiceLabel  = "Confirm, and write a contributing outcome summary"
	ConfirmField        = "confirm_outcome"
	ConfirmCommentField = "confirm_outcome_confirm_comment"
)

// BucketOf returns the bucket named by the identifier prefix (the text
// before the first "_"), or "" when it has none of the known prefixes.
func BucketOf(id string) Bucket {
	prefix, _, found := strings.Cut(id, "_")
	if !found {
		return ""
	}
	for _, b := range Buckets {
		if Bucket(prefix) == b {
			return b
		}
	}
	return ""
}

// GroupIndicators splits identifiers into buckets, keeping input order.
func GroupIndicators(ids []string) map[Bucket][]string {
	grouped := make(map[Bucket][]string, len(Buckets))
	for _, id := range ids {
		if b := BucketOf(id); b != "" {
			grouped[b] = append(grouped[b], id)
		}
	}
	return grouped
}

// ApplyDirective returns the items a fill directive checks:
// "all" checks every item, "some" checks the first and, when there are at
// least three, the third; anything else checks nothing.
func ApplyDirective(directive string, items []string) []string {
	switch directive {
	case DirectiveAll:
		out := make([]string, len(items))
		copy(out, items)
		return out
	case DirectiveSome:
		if len(items) == 0 {
			return nil
		}
		out := []string{items[0]}
		if len(items) >= 3 {
			out = append(out, items[2])
		}
		return out
	default:
		return nil
	}
}

// DeriveStatus computes an outcome status from the checked indicators.
// Any checked not-achieved statement wins; every achieved statement checked
// gives Achieved; every partially-achieved statement checked gives Partially
// achieved. Everything else is Not achieved.
func DeriveStatus(all []string, checked map[string]bool) string {
	grouped := GroupIndicators(all)
	for _, id := range grouped[BucketNotAchieved] {
		if checked[id] {
			return domain.OutcomeNotAchieved
		}
	}
	if allChecked(grouped[BucketAchieved], checked) {
		return domain.OutcomeAchieved
	}
	if allChecked(grouped[BucketPartiallyAchieved], checked) {
		return domain.OutcomePartiallyAchieved
	}
	return domain.OutcomeNotAchieved
}

func allChecked(ids []string, checked map[string]bool) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !checked[id] {
			return false
		}
	}
	return true
}

// FillOutcome builds an outcome record from the checked identifiers. The
// record is not confirmed until Confirm is applied.
func FillOutcome(all []string, checkedIDs []string) domain.OutcomeRecord {
	known := make(map[string]bool, len(all))
	for _, id := range all {
		known[id] = true
	}
	checked := make(map[string]bool, len(all))
	for _, id := range all {
		checked[id] = false
	}
	for _, id := range checkedIDs {
		if known[id] {
			checked[id] = true
		}
	}
	return domain.OutcomeRecord{
		Indicators: checked,
		Status:     DeriveStatus(all, checked),
	}
}

// Confirm validates the confirm sub-step and records it on rec.
func Confirm(rec domain.OutcomeRecord, choice, comment string) (domain.OutcomeRecord, error) {
	var fieldErrs []apperrors.FieldError
	if choice != ConfirmChoice {
		fieldErrs = append(fieldErrs, apperrors.FieldError{
			Field: ConfirmField, Code: apperrors.CodeFieldRequired, Message: "Select an option.",
		})
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		fieldErrs = append(fieldErrs, apperrors.FieldError{
			Field: ConfirmCommentField, Code: apperrors.CodeFieldRequired, Message: "Enter a contributing outcome summary.",
		})
	}
	if len(fieldErrs) > 0 {
		return rec, apperrors.Validation(fieldErrs...)
	}
	rec.Confirmation = choice
	rec.Comments = comment
	return rec, nil
}
