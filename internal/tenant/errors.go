package tenant

import "net/http"

// Resolution failure codes. The set is closed; callers map codes to their
// own presentation.
const (
	CodeTenantRequired        = "TENANT_REQUIRED"
	CodeTenantNotFound        = "TENANT_NOT_FOUND"
	CodeTenantSuspended       = "TENANT_SUSPENDED"
	CodeTenantResolutionError = "TENANT_RESOLUTION_ERROR"
	CodeStoreIDRequired       = "STORE_ID_REQUIRED"
	CodeStoreNotFound         = "STORE_NOT_FOUND"
	CodeStoreAccessDenied     = "STORE_ACCESS_DENIED"
	CodeStoreInactive         = "STORE_INACTIVE"
	CodeStoreResolutionError  = "STORE_RESOLUTION_ERROR"
)

// ResolutionError is the typed failure returned by tenant and store
// resolution. It never wraps an internal error visible to callers.
type ResolutionError struct {
	Code   string
	Status int
	Reason string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return "tenant: " + e.Code + ": " + e.Reason
}

func errTenantRequired() *ResolutionError {
	return &ResolutionError{Code: CodeTenantRequired, Status: http.StatusBadRequest, Reason: "no tenant identifier provided"}
}

func errTenantNotFound(identifier string) *ResolutionError {
	return &ResolutionError{Code: CodeTenantNotFound, Status: http.StatusNotFound, Reason: "tenant " + identifier + " does not exist"}
}

func errTenantSuspended(identifier string) *ResolutionError {
	return &ResolutionError{Code: CodeTenantSuspended, Status: http.StatusForbidden, Reason: "tenant " + identifier + " is suspended"}
}

func errTenantResolution() *ResolutionError {
	return &ResolutionError{Code: CodeTenantResolutionError, Status: http.StatusServiceUnavailable, Reason: "tenant directory unavailable"}
}

func errStoreIDRequired() *ResolutionError {
	return &ResolutionError{Code: CodeStoreIDRequired, Status: http.StatusBadRequest, Reason: "no store identifier provided"}
}

func errStoreNotFound(id string) *ResolutionError {
	return &ResolutionError{Code: CodeStoreNotFound, Status: http.StatusNotFound, Reason: "store " + id + " does not exist"}
}

func errStoreAccessDenied() *ResolutionError {
	return &ResolutionError{Code: CodeStoreAccessDenied, Status: http.StatusForbidden, Reason: "store belongs to a different tenant"}
}

func errStoreInactive(id string) *ResolutionError {
	return &ResolutionError{Code: CodeStoreInactive, Status: http.StatusForbidden, Reason: "store " + id + " is inactive"}
}

func errStoreResolution() *ResolutionError {
	return &ResolutionError{Code: CodeStoreResolutionError, Status: http.StatusServiceUnavailable, Reason: "store directory unavailable"}
}
