package orders

// DocState is the explicit lifecycle state of an order document, computed
// once per read from the persisted timestamps and the derived invoiced flag.
type DocState string

const (
	StateOpen     DocState = "OPEN"
	StateClosed   DocState = "CLOSED"
	StateVoided   DocState = "VOIDED"
	StateInvoiced DocState = "INVOICED"
)

// StateOf derives the tagged state. Invoiced dominates: a document linked
// from the billing system is terminal regardless of its own timestamps.
func StateOf(doc *OrderDocument) DocState {
	switch {
	case doc.Invoiced:
		return StateInvoiced
	case doc.VoidedAt != nil:
		return StateVoided
	case doc.ClosedAt != nil:
		return StateClosed
	default:
		return StateOpen
	}
}

// EnsureMutable rejects header and line mutation for anything but Open.
func EnsureMutable(s DocState) error {
	switch s {
	case StateInvoiced:
		return &StateError{Code: CodeInvoiced, State: s}
	case StateVoided:
		return &StateError{Code: CodeVoided, State: s}
	case StateClosed:
		return &StateError{Code: CodeClosed, State: s}
	}
	return nil
}

// EnsureCanClose validates Open -> Closed. Requires at least one line.
func EnsureCanClose(s DocState, lineCount int) error {
	if err := EnsureMutable(s); err != nil {
		return err
	}
	if lineCount == 0 {
		return &StateError{Code: CodeNoLines, State: s}
	}
	return nil
}

// EnsureCanReopen validates Closed -> Open.
func EnsureCanReopen(s DocState) error {
	switch s {
	case StateInvoiced:
		return &StateError{Code: CodeInvoiced, State: s}
	case StateVoided:
		return &StateError{Code: CodeVoided, State: s}
	case StateClosed:
		return nil
	}
	return &StateError{Code: CodeNotClosed, State: s}
}

// EnsureCanVoid validates {Open, Closed} -> Voided. Invoiced blocks Void.
func EnsureCanVoid(s DocState) error {
	switch s {
	case StateInvoiced:
		return &StateError{Code: CodeInvoiced, State: s}
	case StateVoided:
		return &StateError{Code: CodeVoided, State: s}
	}
	return nil
}

// EnsureCanDelete validates hard deletion: Open only.
func EnsureCanDelete(s DocState) error {
	return EnsureMutable(s)
}
