package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/session"
)

type fakeUsers map[int64]domain.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
	}
	return &u, nil
}

type fakeProfiles map[int64][]domain.UserProfile

func (f fakeProfiles) ActiveProfile(_ context.Context, userID, currentID int64) (*domain.UserProfile, int, error) {
	list := f[userID]
	if len(list) == 0 {
		return nil, 0, apperrors.Wrap(apperrors.ErrNoProfile, apperrors.CodeNoActiveProfile, "none", http.StatusForbidden)
	}
	for i := range list {
		if list[i].ID == currentID {
			return &list[i], len(list), nil
		}
	}
	return &list[0], len(list), nil
}

func TestAttributionAndRequireAction(t *testing.T) {
	t.Parallel()
	org := int64(5)
	users := fakeUsers{
		1: {ID: 1, Username: "lead", IsActive: true},
		2: {ID: 2, Username: "user", IsActive: true},
		3: {ID: 3, Username: "nobody", IsActive: true},
		4: {ID: 4, Username: "gone", IsActive: false},
	}
	profiles := fakeProfiles{
		1: {{ID: 10, UserID: 1, OrganisationID: &org, Role: domain.RoleOrganisationLead}},
		2: {{ID: 20, UserID: 2, OrganisationID: &org, Role: domain.RoleOrganisationUser}},
	}
	p := policy.New()

	tests := []struct {
		name         string
		userID       int64
		wantStatus   int
		wantLocation string
	}{
		{"lead may view users", 1, http.StatusOK, ""},
		{"organisation user refused", 2, http.StatusForbidden, ""},
		{"no profile page", 3, http.StatusForbidden, ""},
		{"inactive user signed out", 4, http.StatusFound, PathIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, cookie := newEngine(t, &session.Data{UserID: tt.userID, Verified: true})
			r.Use(Attribution(users, profiles))
			r.GET("/users/", RequireAction(p, policy.ActionViewUsers), func(c *gin.Context) {
				caller, ok := CallerFrom(c)
				assert.True(t, ok)
				assert.Equal(t, int64(10), caller.Profile.ID)
				c.String(http.StatusOK, "users")
			})

			w := do(r, http.MethodGet, "/users/", cookie, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}
