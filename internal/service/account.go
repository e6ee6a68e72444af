package service

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/framework"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// AccountService backs the my-account and change-organisation pages.
type AccountService struct {
	repos Repos
}

// NewAccountService creates an AccountService.
func NewAccountService(repos Repos) *AccountService {
	return &AccountService{repos: repos}
}

// ActiveProfile resolves the profile the session should act through. A
// current id that is not one of the user's profiles is ignored and the first
// profile by id is used instead. profileCount is the number of profiles the
// user holds.
func (s *AccountService) ActiveProfile(ctx context.Context, userID, currentID int64) (profile *domain.UserProfile, profileCount int, err error) {
	profiles, err := s.repos.Profiles.ListByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, 0, apperrors.Wrap(apperrors.ErrNoProfile, apperrors.CodeNoActiveProfile,
			"you do not have a profile in any organisation", http.StatusForbidden)
	}
	for i := range profiles {
		if profiles[i].ID == currentID {
			return &profiles[i], len(profiles), nil
		}
	}
	return &profiles[0], len(profiles), nil
}

// Profiles lists the user's profiles for the change-organisation page.
func (s *AccountService) Profiles(ctx context.Context, userID int64) ([]domain.UserProfile, error) {
	profiles, err := s.repos.Profiles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// ChangeOrganisation checks that profileID belongs to the user and returns it.
func (s *AccountService) ChangeOrganisation(ctx context.Context, userID, profileID int64) (*domain.UserProfile, error) {
	profile, err := s.repos.Profiles.GetByID(ctx, profileID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrPermissionDenied("you cannot switch to that organisation")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if profile.UserID != userID {
		logger.Warn("switch to another user's profile refused",
			zap.Int64("user_id", userID),
			zap.Int64("profile_id", profileID),
		)
		return nil, apperrors.ErrPermissionDenied("you cannot switch to that organisation")
	}
	return profile, nil
}

// AccountSummary is the my-account dashboard.
type AccountSummary struct {
	Organisation   *domain.Organisation
	SystemCount    int
	Drafts         []DraftSummary
	Submitted      []domain.Assessment
	CompleteDrafts int
}

// DraftSummary is a draft with its progress through the CAF profile.
type DraftSummary struct {
	domain.Assessment
	Done     int
	Total    int
	Complete bool
}

// Summary builds the dashboard for the caller's organisation. Lists are
// ordered by last update, newest first.
func (s *AccountService) Summary(ctx context.Context, caller Caller) (*AccountSummary, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	org, err := s.repos.Organisations.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	count, err := s.repos.Systems.CountByOrganisation(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("count systems: %w", err)
	}
	drafts, err := s.repos.Assessments.ListByOrganisation(ctx, orgID, domain.StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	submitted, err := s.repos.Assessments.ListByOrganisation(ctx, orgID, domain.StatusSubmitted, domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list submitted: %w", err)
	}

	summary := &AccountSummary{Organisation: org, SystemCount: count, Submitted: submitted}
	for _, d := range drafts {
		ds := summariseDraft(d)
		if ds.Complete {
			summary.CompleteDrafts++
		}
		summary.Drafts = append(summary.Drafts, ds)
	}
	return summary, nil
}

func summariseDraft(a domain.Assessment) DraftSummary {
	ds := DraftSummary{Assessment: a}
	fw, err := framework.Get(a.Framework)
	if err != nil {
		logger.Warn("draft references unknown framework",
			zap.Int64("assessment_id", a.ID),
			zap.String("framework", a.Framework),
		)
		return ds
	}
	ds.Done, ds.Total = fw.Progress(a.CAFProfile, a.Data)
	ds.Complete = fw.IsComplete(a.CAFProfile, a.Data)
	return ds
}
