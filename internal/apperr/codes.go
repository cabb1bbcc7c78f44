// Package apperr defines the typed failures surfaced by guards and services.
package apperr

import "net/http"

// Code is a machine-readable failure code. It doubles as the i18n message key.
type Code string

const (
	// Authentication, recoverable by re-authenticating.
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeMissingCredential      Code = "MISSING_CREDENTIAL"
	CodeInvalidCredential      Code = "INVALID_CREDENTIAL"

	// Authorization, surfaced verbatim and never retried.
	CodePermissionDenied        Code = "PERMISSION_DENIED"
	CodeCrossTenantAccessDenied Code = "CROSS_TENANT_ACCESS_DENIED"
	CodeNoOrganization          Code = "NO_ORGANIZATION"

	// Organizations and invites.
	CodeOrganizationNotFound  Code = "ORGANIZATION_NOT_FOUND"
	CodeOrganizationInactive  Code = "ORGANIZATION_INACTIVE"
	CodeOrganizationNameTaken Code = "ORGANIZATION_NAME_TAKEN"
	CodeInviteNotFound        Code = "INVITE_NOT_FOUND"
	CodeInviteExpired         Code = "INVITE_EXPIRED"
	CodeInviteAlreadyUsed     Code = "INVITE_ALREADY_USED"
	CodeDuplicateActiveInvite Code = "DUPLICATE_ACTIVE_INVITE"
	CodeEmailMismatch         Code = "EMAIL_MISMATCH"

	// Profiles and resources.
	CodeEmailAlreadyRegistered Code = "EMAIL_ALREADY_REGISTERED"
	CodeProfileNotFound        Code = "PROFILE_NOT_FOUND"
	CodeVehicleNotFound        Code = "VEHICLE_NOT_FOUND"
	CodeInvalidInput           Code = "INVALID_INPUT"

	// Upstream failures. Not retried here.
	CodeUpstreamTimeout     Code = "UPSTREAM_TIMEOUT"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"

	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps a code to its HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthenticationRequired, CodeMissingCredential, CodeInvalidCredential:
		return http.StatusUnauthorized
	case CodePermissionDenied, CodeCrossTenantAccessDenied, CodeNoOrganization:
		return http.StatusForbidden
	case CodeOrganizationNotFound, CodeInviteNotFound, CodeProfileNotFound, CodeVehicleNotFound:
		return http.StatusNotFound
	case CodeOrganizationInactive, CodeInviteExpired, CodeInviteAlreadyUsed, CodeEmailMismatch, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeDuplicateActiveInvite, CodeEmailAlreadyRegistered, CodeOrganizationNameTaken:
		return http.StatusConflict
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
