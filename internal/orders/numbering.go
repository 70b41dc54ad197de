package orders

import (
	"context"
	"fmt"
)

const sequenceWidth = 8

// SequenceSource is the slice of transactional storage the allocator needs.
// All methods run inside the caller's transaction; CounterFor must lock the
// counter row for the duration of the unit of work.
type SequenceSource interface {
	CounterFor(ctx context.Context, companyID int64, series string, branchID int64) (int64, bool, error)
	MaxSequence(ctx context.Context, companyID int64, series string) (int64, error)
	SequenceExists(ctx context.Context, companyID int64, series, sequence string) (bool, error)
	SaveCounter(ctx context.Context, companyID int64, series string, branchID int64, last int64) error
}

// FormatSequence renders a sequence number as the zero-padded 8-digit string
// used on printed documents.
func FormatSequence(n int64) string {
	return fmt.Sprintf("%0*d", sequenceWidth, n)
}

// AllocateSequence issues the next order number for (company, series, branch)
// inside the caller's transaction. When the counter row is missing it falls
// back to MAX(sequence)+1 over the series. explicit, when non-empty, must
// equal the computed next value. A duplicate found by the secondary
// uniqueness check surfaces as SequenceConflictError; the caller must
// re-allocate in a fresh transaction.
func AllocateSequence(ctx context.Context, src SequenceSource, companyID int64, series string, branchID int64, explicit string) (string, error) {
	last, found, err := src.CounterFor(ctx, companyID, series, branchID)
	if err != nil {
		return "", fmt.Errorf("read counter: %w", err)
	}
	if !found {
		last, err = src.MaxSequence(ctx, companyID, series)
		if err != nil {
			return "", fmt.Errorf("max sequence fallback: %w", err)
		}
	}

	next := last + 1
	sequence := FormatSequence(next)

	if explicit != "" && explicit != sequence {
		return "", fmt.Errorf("%w: sequence %s does not match expected %s", ErrValidation, explicit, sequence)
	}

	// Secondary defense: counters can lag behind documents inserted by an
	// interleaved allocator on the same key.
	exists, err := src.SequenceExists(ctx, companyID, series, sequence)
	if err != nil {
		return "", fmt.Errorf("check sequence uniqueness: %w", err)
	}
	if exists {
		return "", &SequenceConflictError{
			CompanyID: companyID,
			Series:    series,
			BranchID:  branchID,
			Sequence:  sequence,
		}
	}

	if err := src.SaveCounter(ctx, companyID, series, branchID, next); err != nil {
		return "", fmt.Errorf("persist counter: %w", err)
	}
	return sequence, nil
}
