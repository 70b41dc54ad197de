package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOf(t *testing.T) {
	now := time.Now()

	t.Run("open by default", func(t *testing.T) {
		assert.Equal(t, StateOpen, StateOf(&OrderDocument{}))
	})

	t.Run("closed timestamp wins over open", func(t *testing.T) {
		assert.Equal(t, StateClosed, StateOf(&OrderDocument{ClosedAt: &now}))
	})

	t.Run("voided wins over closed", func(t *testing.T) {
		assert.Equal(t, StateVoided, StateOf(&OrderDocument{ClosedAt: &now, VoidedAt: &now}))
	})

	t.Run("invoiced dominates everything", func(t *testing.T) {
		doc := &OrderDocument{ClosedAt: &now, VoidedAt: &now, Invoiced: true}
		assert.Equal(t, StateInvoiced, StateOf(doc))
	})
}

func TestEnsureMutable(t *testing.T) {
	require.NoError(t, EnsureMutable(StateOpen))

	var stateErr *StateError

	err := EnsureMutable(StateClosed)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeClosed, stateErr.Code)
	assert.ErrorIs(t, err, ErrInvalidState)

	err = EnsureMutable(StateVoided)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeVoided, stateErr.Code)

	err = EnsureMutable(StateInvoiced)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeInvoiced, stateErr.Code)
}

func TestEnsureCanClose(t *testing.T) {
	require.NoError(t, EnsureCanClose(StateOpen, 3))

	var stateErr *StateError

	err := EnsureCanClose(StateOpen, 0)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeNoLines, stateErr.Code)

	err = EnsureCanClose(StateClosed, 3)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeClosed, stateErr.Code)
}

func TestEnsureCanReopen(t *testing.T) {
	require.NoError(t, EnsureCanReopen(StateClosed))

	var stateErr *StateError

	err := EnsureCanReopen(StateOpen)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeNotClosed, stateErr.Code)

	err = EnsureCanReopen(StateVoided)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeVoided, stateErr.Code)

	err = EnsureCanReopen(StateInvoiced)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeInvoiced, stateErr.Code)
}

func TestEnsureCanVoid(t *testing.T) {
	require.NoError(t, EnsureCanVoid(StateOpen))
	require.NoError(t, EnsureCanVoid(StateClosed))

	var stateErr *StateError

	err := EnsureCanVoid(StateVoided)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeVoided, stateErr.Code)

	err = EnsureCanVoid(StateInvoiced)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeInvoiced, stateErr.Code)
}

func TestEnsureCanDelete(t *testing.T) {
	require.NoError(t, EnsureCanDelete(StateOpen))

	var stateErr *StateError
	err := EnsureCanDelete(StateClosed)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, CodeClosed, stateErr.Code)
}
