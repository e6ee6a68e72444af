package errors

// Error code constants. Backend logs are always in English; pages map codes to
// GOV.UK error copy.

// Assessment error codes.
const (
	CodeAssessmentNotFound     = "ASSESSMENT_NOT_FOUND"
	CodeAssessmentNotEditable  = "ASSESSMENT_NOT_EDITABLE"
	CodeAssessmentIncomplete   = "ASSESSMENT_INCOMPLETE"
	CodeAssessmentWrongStatus  = "ASSESSMENT_WRONG_STATUS"
	CodeDraftIncomplete        = "DRAFT_INCOMPLETE"
	CodeOutcomeNotFound        = "OUTCOME_NOT_FOUND"
	CodeOutcomeNotConfirmed    = "OUTCOME_NOT_CONFIRMED"
	CodeInvalidCAFProfile      = "INVALID_CAF_PROFILE"
	CodeInvalidReviewType      = "INVALID_REVIEW_TYPE"
	CodeConfigurationNotFound  = "CONFIGURATION_NOT_FOUND"
	CodeFrameworkNotFound      = "FRAMEWORK_NOT_FOUND"
	CodeSubmissionWindowClosed = "SUBMISSION_WINDOW_CLOSED"
	CodeAssessmentExists       = "ASSESSMENT_ALREADY_EXISTS"
)

// Registry error codes.
const (
	CodeOrganisationNotFound = "ORGANISATION_NOT_FOUND"
	CodeSystemNotFound       = "SYSTEM_NOT_FOUND"
	CodeSystemExists         = "SYSTEM_ALREADY_EXISTS"
	CodeProfileNotFound      = "PROFILE_NOT_FOUND"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeUserExists           = "USER_ALREADY_EXISTS"
	CodeProfileExists        = "PROFILE_ALREADY_EXISTS"
	CodeInvalidRole          = "INVALID_ROLE"
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
)

// Permission error codes.
const (
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeCrossOrganisation  = "CROSS_ORGANISATION_ACCESS"
	CodeNoActiveProfile    = "NO_ACTIVE_PROFILE"
	CodeSelfDeletion       = "SELF_DELETION_FORBIDDEN"
	CodeLastLeadDeletion   = "LAST_LEAD_DELETION_FORBIDDEN"
	CodeCSRFTokenInvalid   = "CSRF_TOKEN_INVALID"
	CodeRoleNotPermitted   = "ROLE_NOT_PERMITTED"
	CodeSessionUnavailable = "SESSION_UNAVAILABLE"
)

// Auth error codes.
const (
	CodeAuthFailed         = "AUTH_FAILED"
	CodeClaimsRejected     = "CLAIMS_REJECTED"
	CodeStateMismatch      = "OIDC_STATE_MISMATCH"
	CodeTokenExchange      = "OIDC_TOKEN_EXCHANGE_FAILED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeOTPInvalid         = "OTP_INVALID"
	CodeOTPExhausted       = "OTP_ATTEMPTS_EXHAUSTED"
	CodeRateLimited        = "RATE_LIMITED"
)

// Request error codes.
const (
	CodePageNotFound = "PAGE_NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
)

// Validation error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeFieldRequired    = "required"
	CodeFieldInvalid     = "invalid"
	CodeFieldDuplicate   = "duplicate"
)

// ErrAssessmentNotFound creates the standard missing-assessment error.
func ErrAssessmentNotFound() *AppError {
	return NotFound(CodeAssessmentNotFound, "assessment not found")
}

// ErrPermissionDenied creates the standard permission error.
func ErrPermissionDenied(message string) *AppError {
	return Forbidden(CodePermissionDenied, message)
}
