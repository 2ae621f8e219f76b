package response

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Stable error codes shared with the dashboard frontend.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeAccountBanned       = "ACCOUNT_BANNED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotGuildMember      = "NOT_GUILD_MEMBER"
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeConflictingLink     = "CONFLICTING_LINK"
	CodeInvalidRole         = "INVALID_ROLE"
	CodeRoleManaged         = "ROLE_MANAGED_BY_DISCORD"
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

// DecodeJSON decodes JSON from request body into the provided struct
func DecodeJSON(body io.ReadCloser, v interface{}) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// OK sends a 200 OK response
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WithMeta sends a response with pagination metadata
func WithMeta(w http.ResponseWriter, data interface{}, meta Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := Response{
		Success: true,
		Data:    data,
		Meta:    &meta,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(resp)
}

// ErrorWithDetails sends an error response with details
func ErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(resp)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden sends a 403 Forbidden response
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, CodeForbidden, message)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict sends a 409 Conflict response
func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, CodeConflict, message)
}

// ValidationError sends a 422 Unprocessable Entity response
func ValidationError(w http.ResponseWriter, details map[string]string) {
	ErrorWithDetails(w, http.StatusUnprocessableEntity, CodeValidation, "Validation failed", details)
}

// InternalError sends a 500 Internal Server Error response
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
}

// TooManyRequests sends a 429 Too Many Requests response
func TooManyRequests(w http.ResponseWriter) {
	Error(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, please try again later")
}

// AccountBanned sends a 403 for a banned account
func AccountBanned(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, CodeAccountBanned, "Your account has been banned")
}

// InsufficientPermission sends a 403 listing the roles that would have been accepted
func InsufficientPermission(w http.ResponseWriter, required []string) {
	ErrorWithDetails(w, http.StatusForbidden, CodeForbidden, "Insufficient permissions", map[string]string{
		"required_roles": strings.Join(required, ","),
	})
}

// NotGuildMember sends a 403 for users outside the Discord server
func NotGuildMember(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, CodeNotGuildMember, "You must be a member of the Discord server")
}

// ExternalUnavailable sends a 503 when Discord cannot be reached
func ExternalUnavailable(w http.ResponseWriter) {
	Error(w, http.StatusServiceUnavailable, CodeExternalUnavailable, "Discord is unavailable, please try again later")
}

// ConflictingLink sends a 409 when a Discord account is linked elsewhere
func ConflictingLink(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, CodeConflictingLink, message)
}

// RoleManaged sends a 409 for a role only Discord can grant
func RoleManaged(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, CodeRoleManaged, message)
}

// InvalidRole sends a 422 for labels outside the role vocabulary
func InvalidRole(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, CodeInvalidRole, message)
}
