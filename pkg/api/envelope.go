// Package api defines the wire-format DTOs exchanged over HTTP and
// the socket protocol, and the {success, data}/{success:false, reason}
// response envelope every HTTP handler returns.
package api

// Reason enumerates the refusal reasons a failed response may carry.
type Reason string

const (
	ReasonBadRequest     Reason = "bad_request"
	ReasonBadSignature   Reason = "bad_signature"
	ReasonIncorrectCode  Reason = "incorrect_code"
	ReasonServerError    Reason = "server_error"
	ReasonStale          Reason = "stale"
	ReasonForbidden      Reason = "forbidden"
	ReasonTombstoned     Reason = "tombstoned"
)

// Response is the single JSON envelope shape every HTTP handler
// returns.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Reason  Reason `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// Ok wraps a successful payload.
func Ok(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail wraps a refusal with its reason and optional detail.
func Fail(reason Reason, details string) Response {
	return Response{Success: false, Reason: reason, Details: details}
}
