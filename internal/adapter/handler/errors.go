package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

var errorTable = []struct {
	err      error
	httpCode int
	grpcCode codes.Code
}{
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrInvalidItemIdentity, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrInvalidLocation, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrInvalidStatus, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrInvalidReceiver, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrItemNotFound, http.StatusNotFound, codes.NotFound},
	{domain.ErrDeliveryNotFound, http.StatusNotFound, codes.NotFound},
	{domain.ErrInsufficientStock, http.StatusUnprocessableEntity, codes.FailedPrecondition},
	{domain.ErrDuplicateDeliveryItem, http.StatusConflict, codes.AlreadyExists},
	{domain.ErrAlreadyFinalized, http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrInvalidTransition, http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrDeliveryClosed, http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrDeliveryIncomplete, http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrConcurrentModification, http.StatusConflict, codes.Aborted},
}

func httpStatus(err error) int {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.httpCode
		}
	}
	return http.StatusInternalServerError
}

func grpcError(err error) error {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return status.Error(e.grpcCode, err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}

// publicMessage hides infrastructure errors from callers.
func publicMessage(err error) string {
	if httpStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
