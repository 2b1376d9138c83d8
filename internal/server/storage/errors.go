package storage

import "errors"

// Sentinel storage errors. HTTP handlers translate these to the
// {success:false, reason} enum via errors.Is, never by string match.
var (
	ErrInstanceNotFound   = errors.New("instance not found")
	ErrInstanceExists     = errors.New("instance already exists")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrRequestCodeExpired = errors.New("request code expired or unknown")
)
