package storage

import "errors"

// Sentinel client storage errors.
var (
	// ErrIdentityNotFound indicates no keypair has been provisioned yet.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrMembershipNotFound indicates the client holds no membership
	// record for a SKU it was asked to operate on.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrStorageClosed indicates that storage is closed.
	ErrStorageClosed = errors.New("storage is closed")
)
