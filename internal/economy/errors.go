package economy

import "errors"

// Business-rule rejections. Actions return these instead of mutating state;
// callers test with errors.Is. None of them are fatal.
var (
	ErrInsufficientFunds = errors.New("insufficient company balance")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrWorkerBounds      = errors.New("worker count outside allowed range")
	ErrNoOffice          = errors.New("company has no office in this country")
	ErrDuplicateOffice   = errors.New("company already has an office in this country")
	ErrNoInventory       = errors.New("facility has no inventory")
	ErrWrongKind         = errors.New("operation not supported by facility kind")
	ErrMinSize           = errors.New("facility already at minimum size")
	ErrNotFound          = errors.New("not found")
	ErrNotOwner          = errors.New("facility not owned by company")
	ErrSelfTrade         = errors.New("buyer and seller are the same company")
	ErrSameFacility      = errors.New("route endpoints must be different facilities")
	ErrNoStorageEndpoint = errors.New("internal route requires a storage endpoint")
	ErrBadAmount         = errors.New("amount must be positive")
)
