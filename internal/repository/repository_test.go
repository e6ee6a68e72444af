package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock)
}

var (
	userCols = []string{"id", "username", "email", "first_name", "last_name", "password_hash",
		"is_staff", "is_superuser", "is_active", "otp_secret", "last_login_at", "created_at"}
	systemCols = []string{"id", "organisation_id", "name", "system_type", "last_assessed",
		"system_owner", "hosting_type", "corporate_services", "corporate_services_other", "created_at", "updated_at"}
	profileCols = []string{"id", "user_id", "organisation_id", "role", "created_at",
		"username", "email", "first_name", "last_name", "is_staff", "org_name", "org_type"}
	assessmentCols = []string{"id", "system_id", "assessment_period", "framework", "caf_profile", "review_type",
		"status", "assessments_data", "created_by", "last_updated_by", "created_on", "last_updated",
		"submission_due_date", "submitted_at", "system_name", "organisation_id", "organisation_name", "created_by_name"}
)

func TestUserRepository_Get(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	login := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setup     func(pgxmock.PgxPoolIface)
		call      func(*Store) (*domain.User, error)
		wantLogin *time.Time
		wantCode  string
	}{
		{
			name: "by id never logged in",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("FROM users WHERE id").WithArgs(int64(7)).WillReturnRows(
					pgxmock.NewRows(userCols).AddRow(int64(7), "jo@x.gov.uk", "jo@x.gov.uk", "Jo", "Bloggs", "",
						false, false, true, "", epoch, created))
			},
			call: func(s *Store) (*domain.User, error) { return s.Users.GetByID(context.Background(), 7) },
		},
		{
			name: "by username with last login",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`WHERE lower\(username\) = lower\(\$1\)`).WithArgs("Jo@X.gov.uk").WillReturnRows(
					pgxmock.NewRows(userCols).AddRow(int64(7), "jo@x.gov.uk", "jo@x.gov.uk", "Jo", "Bloggs", "",
						false, false, true, "SECRET", login, created))
			},
			call:      func(s *Store) (*domain.User, error) { return s.Users.GetByUsername(context.Background(), "Jo@X.gov.uk") },
			wantLogin: &login,
		},
		{
			name: "missing",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("FROM users WHERE lower").WithArgs("nobody@x.gov.uk").WillReturnError(pgx.ErrNoRows)
			},
			call:     func(s *Store) (*domain.User, error) { return s.Users.GetByEmail(context.Background(), "nobody@x.gov.uk") },
			wantCode: apperrors.CodeUserNotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock, store := newMock(t)
			tt.setup(mock)

			u, err := tt.call(store)
			if tt.wantCode != "" {
				appErr, ok := apperrors.IsAppError(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantCode, appErr.Code)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(7), u.ID)
				assert.Equal(t, "Jo Bloggs", u.FullName())
				assert.Equal(t, tt.wantLogin, u.LastLoginAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_CreateConflict(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("jo@x.gov.uk", "jo@x.gov.uk", "", "", "", false, false, true, "").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Users.Create(context.Background(), &domain.User{Username: "jo@x.gov.uk", Email: "jo@x.gov.uk", IsActive: true})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUserExists, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateKeepsUsernameWhenEmpty(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectExec(`username = COALESCE\(NULLIF\(\$8, ''\), username\)`).
		WithArgs(int64(7), "jo@x.gov.uk", "Jo", "", false, false, true, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Users.Update(context.Background(), domain.User{ID: 7, Email: "jo@x.gov.uk", FirstName: "Jo", IsActive: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganisationRepository_FindOrCreateByName(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "name", "organisation_type", "contact_name", "contact_role", "contact_email", "created_at", "updated_at", "inserted"}

	mock, store := newMock(t)
	mock.ExpectQuery("INSERT INTO organisations").
		WithArgs("Cabinet  Office", "cabinet office").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(int64(3), "Cabinet Office", "ministerial-department", "", "", "", now, now, false))

	org, created, err := store.Organisations.FindOrCreateByName(context.Background(), "  Cabinet  Office ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(3), org.ID)
	assert.Equal(t, "Cabinet Office", org.Name)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, _, err = store.Organisations.FindOrCreateByName(context.Background(), "   ")
	assert.Error(t, err)
}

func TestSystemRepository(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("candidates", func(t *testing.T) {
		t.Parallel()
		mock, store := newMock(t)
		mock.ExpectQuery("FROM systems s").
			WithArgs(int64(1), "2025/26", int64(0)).
			WillReturnRows(pgxmock.NewRows(systemCols).
				AddRow(int64(11), int64(1), "Big System", "corporate_system", "assessed_in_2324",
					[]string{"in_house"}, []string{"public_cloud"}, []string{"hr"}, "", now, now))

		got, err := store.Systems.Candidates(context.Background(), 1, "2025/26", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Big System", got[0].Name)
		assert.Equal(t, []string{"public_cloud"}, got[0].HostingType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()
		mock, store := newMock(t)
		mock.ExpectQuery("INSERT INTO systems").
			WithArgs(int64(1), "Prod", "", "", []string{}, []string{}, []string{}, "").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := store.Systems.Create(context.Background(), &domain.System{OrganisationID: 1, Name: "Prod"})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "A system with this name Prod already exists.", appErr.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("name taken", func(t *testing.T) {
		t.Parallel()
		mock, store := newMock(t)
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(1), "Prod", int64(4)).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		taken, err := store.Systems.NameTaken(context.Background(), 1, "Prod", 4)
		require.NoError(t, err)
		assert.True(t, taken)
	})
}

func TestProfileRepository_ListByUser(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	mock, store := newMock(t)
	mock.ExpectQuery("FROM user_profiles p").WithArgs(int64(5)).WillReturnRows(
		pgxmock.NewRows(profileCols).
			AddRow(int64(1), int64(5), int64(0), domain.RoleCyberAdvisor, now, "admin", "", "", "", true, "", "").
			AddRow(int64(2), int64(5), int64(9), domain.RoleOrganisationLead, now, "admin", "", "", "", true, "Cabinet Office", "ministerial-department"))

	got, err := store.Profiles.ListByUser(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Nil(t, got[0].OrganisationID)
	assert.Nil(t, got[0].Organisation)
	assert.Equal(t, int64(9), got[1].OrgID())
	assert.Equal(t, "Cabinet Office", got[1].Organisation.Name)
	assert.Equal(t, int64(5), got[1].User.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_DeleteMissing(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectExec("DELETE FROM user_profiles").WithArgs(int64(42)).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.Profiles.Delete(context.Background(), 42)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeProfileNotFound, appErr.Code)
}

func TestAssessmentRepository_GetForOrganisation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 31, 22, 59, 0, 0, time.UTC)
	data := []byte(`{"A":{"A1.a":{"indicators":{"achieved_A1.a.1":true},"status":"Achieved","confirmation":"confirm","comments":"ok"}}}`)

	mock, store := newMock(t)
	mock.ExpectQuery("FROM assessments a").
		WithArgs(int64(42), int64(1), []string{"draft"}).
		WillReturnRows(pgxmock.NewRows(assessmentCols).AddRow(
			int64(42), int64(11), "2025/26", "caf32", domain.ProfileBaseline, domain.ReviewSelfAssessment,
			domain.StatusDraft, data, int64(5), int64(5), now, now,
			due, epoch, "Big System", int64(1), "Cabinet Office", "jo@x.gov.uk"))

	a, err := store.Assessments.GetForOrganisation(context.Background(), 42, 1, domain.StatusDraft)
	require.NoError(t, err)

	rec, ok := a.Data.Outcome("A", "A1.a")
	require.True(t, ok)
	assert.True(t, rec.Confirmed())
	assert.Equal(t, due, *a.SubmissionDueDate)
	assert.Nil(t, a.SubmittedAt)
	assert.Equal(t, "WCAF-202526-00042", a.Reference())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepository_Transition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected int64
		wantErr  bool
	}{
		{"moved", 1, false},
		{"wrong status", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock, store := newMock(t)
			mock.ExpectExec("UPDATE assessments").
				WithArgs(int64(42), "draft", "submitted", int64(5)).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err := store.Assessments.Transition(context.Background(), 42, domain.StatusDraft, domain.StatusSubmitted, 5)
			if tt.wantErr {
				assert.True(t, apperrors.IsForbidden(err))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConfigurationRepository_SetDefaultInTx(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE configurations SET is_default = FALSE").WithArgs("26/27").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE configurations SET is_default = TRUE").WithArgs("26/27").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx *Store) error {
		return tx.Configurations.SetDefault(context.Background(), "26/27")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigurationRepository_SetDefaultUnknownRollsBack(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE configurations SET is_default = FALSE").WithArgs("99/00").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE configurations SET is_default = TRUE").WithArgs("99/00").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx *Store) error {
		return tx.Configurations.SetDefault(context.Background(), "99/00")
	})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConfigurationNotFound, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigurationRepository_Default(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	mock, store := newMock(t)
	mock.ExpectQuery("FROM configurations WHERE is_default").WillReturnRows(
		pgxmock.NewRows([]string{"id", "name", "is_default", "config_data", "created_at"}).
			AddRow(int64(1), "25/26", true, []byte(`{"current_assessment_period":"2025/26","assessment_period_end":"31 March 2026 11:59pm","default_framework":"caf32"}`), now))

	c, err := store.Configurations.Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025/26", c.CurrentAssessmentPeriod())
	assert.Equal(t, "caf32", c.DefaultFramework())
}

func TestNotificationRepository_DeleteBefore(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock, store := newMock(t)
	mock.ExpectExec("DELETE FROM notifications").WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := store.Notifications.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Insert(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("audit-1", "profile.deleted", "jo@x.gov.uk", "user_profile", "4", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Audit.Insert(context.Background(), domain.AuditEntry{
		ID: "audit-1", Action: "profile.deleted", Actor: "jo@x.gov.uk", ResourceType: "user_profile", ResourceID: "4",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
