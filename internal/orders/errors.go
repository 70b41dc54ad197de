package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing order, line, or referenced master record.
	ErrNotFound = errors.New("record not found")
	// ErrValidation indicates rejected input (bad quantity, price, or sequence).
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an operation disallowed in the document's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid document state")
	// ErrSequenceConflict indicates a raced or duplicate order number.
	ErrSequenceConflict = errors.New("sequence conflict")
)

// Stable machine-readable codes attached to state errors.
const (
	CodeClosed    = "PEDIDO_ASENTADO"
	CodeVoided    = "PEDIDO_ANULADO"
	CodeInvoiced  = "PEDIDO_FACTURADO"
	CodeNoLines   = "PEDIDO_SIN_LINEAS"
	CodeNotClosed = "PEDIDO_NO_ASENTADO"
)

// StateError reports a rejected lifecycle transition with a stable code.
type StateError struct {
	Code  string
	State DocState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid document state: %s (%s)", e.Code, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// SequenceConflictError carries the full counter key so an operator can
// diagnose which allocation raced.
type SequenceConflictError struct {
	CompanyID int64
	Series    string
	BranchID  int64
	Sequence  string
}

func (e *SequenceConflictError) Error() string {
	return fmt.Sprintf("sequence %s already issued for company=%d series=%s branch=%d",
		e.Sequence, e.CompanyID, e.Series, e.BranchID)
}

func (e *SequenceConflictError) Unwrap() error { return ErrSequenceConflict }
