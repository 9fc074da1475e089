package domain

import "errors"

var (
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrDuplicateDeliveryItem  = errors.New("item already exists in the delivery")
	ErrAlreadyFinalized       = errors.New("delivery item already finalized")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrItemNotFound        = errors.New("delivery item not found")
	ErrDeliveryNotFound    = errors.New("delivery not found")
	ErrDeliveryClosed      = errors.New("delivery already completed")
	ErrDeliveryIncomplete  = errors.New("delivery has unresolved items")
	ErrInvalidItemIdentity = errors.New("invalid item identity")
	ErrInvalidLocation     = errors.New("invalid location")
	ErrInvalidStatus       = errors.New("invalid item status")
	ErrInvalidReceiver     = errors.New("invalid receiver identity")
)
