package service

import "net/http"

// InvoiceError is a creation failure surfaced to the caller: a descriptive,
// possibly multi-line message plus an HTTP-style status.
type InvoiceError struct {
	Status  int
	Message string
}

func (e *InvoiceError) Error() string {
	return e.Message
}

var (
	ErrInvalidEmail = &InvoiceError{
		Status:  http.StatusBadRequest,
		Message: "InvalidEmail: buyer email is not a valid mailbox address",
	}
	ErrInvalidExpiration = &InvoiceError{
		Status:  http.StatusBadRequest,
		Message: "InvalidExpiration: expiration must be at least 30 seconds after invoice creation",
	}
	ErrStoreNotFound = &InvoiceError{
		Status:  http.StatusNotFound,
		Message: "store not found",
	}
)
