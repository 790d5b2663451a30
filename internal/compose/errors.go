package compose

import (
	"errors"
	"fmt"
	"net/http"

	"traitforge/pkg/models"
)

// ValidationError reports a malformed compose request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports that the master record does not exist.
type NotFoundError struct {
	MasterID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("master %s not found", e.MasterID)
}

// AssetFetchError fails the whole fetch batch; no partial composites.
type AssetFetchError struct {
	TraitID models.TraitID
	URL     string
	Cause   error
}

func (e *AssetFetchError) Error() string {
	return fmt.Sprintf("fetch trait %s (%s): %v", e.TraitID, e.URL, e.Cause)
}

func (e *AssetFetchError) Unwrap() error { return e.Cause }

type CompositionError struct {
	Cause error
}

func (e *CompositionError) Error() string { return "compose layers: " + e.Cause.Error() }

func (e *CompositionError) Unwrap() error { return e.Cause }

type PublishError struct {
	Cause error
}

func (e *PublishError) Error() string { return "publish composite: " + e.Cause.Error() }

func (e *PublishError) Unwrap() error { return e.Cause }

// PersistenceError means the composite was pinned but the master record
// was not linked to it. CID is kept so operators can reconcile by hand.
type PersistenceError struct {
	MasterID string
	CID      string
	Cause    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("link master %s to %s: %v", e.MasterID, e.CID, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// StageError is the single error a pipeline run returns on failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("compose pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) HTTPStatus() int {
	var (
		ve *ValidationError
		nf *NotFoundError
	)
	switch {
	case errors.As(e.Err, &ve):
		return http.StatusBadRequest
	case errors.As(e.Err, &nf):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-visible text for the failure. Internal causes
// stay in the logs.
func (e *StageError) Message() string {
	var (
		ve *ValidationError
		nf *NotFoundError
		af *AssetFetchError
		ce *CompositionError
		pe *PublishError
		se *PersistenceError
	)
	switch {
	case errors.As(e.Err, &ve):
		return ve.Msg
	case errors.As(e.Err, &nf):
		return fmt.Sprintf("Master with the tokenId %s not found", nf.MasterID)
	case errors.As(e.Err, &af):
		return "Failed to download remotely"
	case errors.As(e.Err, &ce):
		return "Failed composing images"
	case errors.As(e.Err, &pe):
		return "Failed to upload a file to ipfs."
	case errors.As(e.Err, &se):
		return fmt.Sprintf("Failed to update master nft with the id %s.", se.MasterID)
	default:
		return "internal error"
	}
}
