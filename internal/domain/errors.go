package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the requested blob does not exist in the store
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidRef indicates a string is not a well-formed blob reference
	ErrInvalidRef = errors.New("invalid blob reference")

	// ErrMalformedQuery indicates a raw query could not be decoded
	ErrMalformedQuery = errors.New("malformed raw query")

	// ErrUnsupportedQuery indicates a store cannot evaluate a raw constraint
	ErrUnsupportedQuery = errors.New("unsupported query constraint")

	// ErrClosed indicates an operation on a closed session, subscription or store
	ErrClosed = errors.New("closed")

	// ErrNotPermanode indicates a claim was issued against a non-permanode blob
	ErrNotPermanode = errors.New("blob is not a permanode")
)
