package domain

import "errors"

var (
	// ErrScoreExceedsTotal indicates a caller bug: a history entry whose
	// score is larger than its total.
	ErrScoreExceedsTotal = errors.New("history entry score exceeds total")
	// ErrUnknownTrack is returned for a track outside CSP/CR.
	ErrUnknownTrack = errors.New("unknown exam track")
	// ErrCloudUnavailable wraps transport failures talking to the cloud store.
	ErrCloudUnavailable = errors.New("cloud store unavailable")
	// ErrSyncNotAllowed is returned when sync is attempted below FULL tier
	// or without an authenticated user.
	ErrSyncNotAllowed = errors.New("cloud sync requires the full tier and a signed-in user")
	// ErrUnknownProduct is returned for a purchase of an unregistered product ID.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrPurchaseTimeout is returned when the store never answers an order.
	ErrPurchaseTimeout = errors.New("purchase timed out waiting for store approval")
	// ErrPurchasePending is returned when a purchase for the same product
	// is already in flight.
	ErrPurchasePending = errors.New("purchase already pending for product")
)
