package service

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// choiceLists back the "choice" validation tag: `validate:"choice=hosting_type"`.
var choiceLists = map[string][]domain.Choice{
	"organisation_type":  domain.OrganisationTypes,
	"system_type":        domain.SystemTypes,
	"system_owner":       domain.OwnerTypes,
	"hosting_type":       domain.HostingTypes,
	"last_assessed":      domain.AssessedChoices,
	"corporate_services": domain.CorporateServices,
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name, _, _ := strings.Cut(f.Tag.Get("form"), ","); name != "" && name != "-" {
				return name
			}
			return f.Name
		})
		_ = v.RegisterValidation("choice", func(fl validator.FieldLevel) bool {
			return slices.Contains(domain.ChoiceIDs(choiceLists[fl.Param()]), fl.Field().String())
		})
		_ = v.RegisterValidation("assignable_role", func(fl validator.FieldLevel) bool {
			return domain.Role(fl.Field().String()).Assignable()
		})
		validate = v
	})
	return validate
}

// fieldMessages holds the copy shown next to a field, keyed "field.tag".
// A missing key falls back to the generic message for the tag.
var fieldMessages = map[string]string{
	"name.required":               "Enter the system name.",
	"system_type.required":        "Select the system type.",
	"system_owner.required":       "Select who owns the system.",
	"hosting_type.required":       "Select how the system is hosted.",
	"last_assessed.required":      "Select when the system was last assessed.",
	"corporate_services.required": "Select the corporate services the system supports.",
	"organisation_type.required":  "Select the organisation type.",
	"contact_name.required":       "Enter the contact name.",
	"contact_role.required":       "Enter the contact role.",
	"contact_email.required":      "Enter the contact email address.",
	"contact_email.email":         "Enter an email address in the correct format, like name@example.com.",
	"email.required":              "Enter an email address.",
	"email.email":                 "Enter an email address in the correct format, like name@example.com.",
	"first_name.required":         "Enter a first name.",
	"last_name.required":          "Enter a last name.",
	"role.required":               "Select a role.",
	"role.assignable_role":        "Select a role.",
	"username.required":           "Enter your username.",
	"password.required":           "Enter your password.",
}

// validateForm runs the struct tags of form and converts failures to a
// validation AppError, one FieldError per field.
func validateForm(form any) error {
	err := formValidator().Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var fieldErrs []apperrors.FieldError
	seen := map[string]bool{}
	for _, fe := range verrs {
		field := fe.Field()
		// Slice elements report as "hosting_type[0]".
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		if seen[field] {
			continue
		}
		seen[field] = true
		fieldErrs = append(fieldErrs, apperrors.FieldError{
			Field:   field,
			Code:    codeFor(fe.Tag()),
			Message: messageFor(field, fe.Tag()),
		})
	}
	return apperrors.Validation(fieldErrs...)
}

func codeFor(tag string) string {
	if tag == "required" || tag == "min" {
		return apperrors.CodeFieldRequired
	}
	return apperrors.CodeFieldInvalid
}

func messageFor(field, tag string) string {
	if tag == "min" {
		tag = "required"
	}
	if msg, ok := fieldMessages[field+"."+tag]; ok {
		return msg
	}
	if tag == "required" {
		return "This field is required."
	}
	return "Select a valid choice."
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SystemForm is the create/edit system form.
type SystemForm struct {
	Name                   string   `form:"name" validate:"required"`
	SystemType             string   `form:"system_type" validate:"required,choice=system_type"`
	SystemOwner            []string `form:"system_owner" validate:"min=1,dive,choice=system_owner"`
	HostingType            []string `form:"hosting_type" validate:"min=1,dive,choice=hosting_type"`
	LastAssessed           string   `form:"last_assessed" validate:"required,choice=last_assessed"`
	CorporateServices      []string `form:"corporate_services" validate:"min=1,dive,choice=corporate_services"`
	CorporateServicesOther string   `form:"corporate_services_other"`
}

// FromSystem fills the form for editing.
func FromSystem(s domain.System) SystemForm {
	return SystemForm{
		Name:                   s.Name,
		SystemType:             s.SystemType,
		SystemOwner:            s.SystemOwner,
		HostingType:            s.HostingType,
		LastAssessed:           s.LastAssessed,
		CorporateServices:      s.CorporateServices,
		CorporateServicesOther: s.CorporateServicesOther,
	}
}

func (f *SystemForm) normalise() {
	f.Name = strings.TrimSpace(f.Name)
	f.CorporateServicesOther = strings.TrimSpace(f.CorporateServicesOther)
	f.SystemOwner = trimAll(f.SystemOwner)
	f.HostingType = trimAll(f.HostingType)
	f.CorporateServices = trimAll(f.CorporateServices)
}

// OrganisationTypeForm is the first step of the organisation edit flow.
type OrganisationTypeForm struct {
	OrganisationType string `form:"organisation_type" validate:"required,choice=organisation_type"`
}

// ContactForm is the second step of the organisation edit flow.
type ContactForm struct {
	ContactName  string `form:"contact_name" validate:"required"`
	ContactRole  string `form:"contact_role" validate:"required"`
	ContactEmail string `form:"contact_email" validate:"required,email"`
}

func (f *ContactForm) normalise() {
	f.ContactName = strings.TrimSpace(f.ContactName)
	f.ContactRole = strings.TrimSpace(f.ContactRole)
	f.ContactEmail = strings.TrimSpace(f.ContactEmail)
}

// ProfileForm creates or edits a user profile.
type ProfileForm struct {
	Email     string `form:"email" validate:"required,email"`
	FirstName string `form:"first_name" validate:"required"`
	LastName  string `form:"last_name" validate:"required"`
	Role      string `form:"role" validate:"required,assignable_role"`
}

func (f *ProfileForm) normalise() {
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Role = strings.TrimSpace(f.Role)
}

// LoginForm is the local sign-in form used when SSO is disabled.
type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}
