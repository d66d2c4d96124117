package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Taxonomy sentinels. Packages wrap these so handlers can map any failure to a
// status code without knowing which layer produced it.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInvalidState           = errors.New("invalid_state")
	ErrInvalidInput           = errors.New("invalid_input")
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrConsentDenied          = errors.New("consent_denied")
	ErrNotFound               = errors.New("not_found")
	ErrConflict               = errors.New("conflict")
	ErrProviderExchangeFailed = errors.New("provider_exchange_failed")
	ErrUpstreamFailed         = errors.New("upstream_failed")
	ErrStoreUnavailable       = errors.New("store_unavailable")
	ErrFeatureDisabled        = errors.New("feature_disabled")

	// ErrMissingState is a refinement of ErrInvalidState for callbacks without any state.
	ErrMissingState = fmt.Errorf("state_missing: %w", ErrInvalidState)
)

// Kind describes how a taxonomy sentinel is rendered to clients.
type Kind struct {
	Sentinel error
	Status   int
	Code     string
	Message  string
}

// Order matters: the first sentinel matched by errors.Is wins.
var kinds = []Kind{
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Authentication is required"},
	{ErrMissingState, http.StatusUnauthorized, "state_missing", "State token is missing"},
	{ErrInvalidState, http.StatusUnauthorized, "state_invalid", "State token is not valid"},
	{ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials", "Invalid credentials"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input", "The request is invalid"},
	{ErrConsentDenied, http.StatusForbidden, "consent_denied", "Authorization was denied at the provider"},
	{ErrNotFound, http.StatusNotFound, "not_found", "The requested resource was not found"},
	{ErrConflict, http.StatusConflict, "conflict", "The resource already exists"},
	{ErrProviderExchangeFailed, http.StatusBadGateway, "exchange_failed", "The provider could not complete the authorization"},
	{ErrUpstreamFailed, http.StatusBadGateway, "upstream_failed", "An upstream service failed"},
	{ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable", "Storage is temporarily unavailable"},
	{ErrFeatureDisabled, http.StatusServiceUnavailable, "feature_disabled", "This feature is not configured"},
}

var internalKind = Kind{
	Status:  http.StatusInternalServerError,
	Code:    "internal_error",
	Message: "An unexpected error occurred",
}

// Classify returns the rendering for err. Unknown errors classify as internal.
func Classify(err error) (Kind, bool) {
	if err == nil {
		return internalKind, false
	}
	for _, kind := range kinds {
		if errors.Is(err, kind.Sentinel) {
			return kind, true
		}
	}
	return internalKind, false
}

// Code returns the reason code for err, suitable for redirect query strings.
func Code(err error) string {
	kind, _ := Classify(err)
	return kind.Code
}

// Status returns the HTTP status for err.
func Status(err error) int {
	kind, _ := Classify(err)
	return kind.Status
}
