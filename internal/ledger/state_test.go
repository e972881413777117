package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jay-S9/backend-foundation/pkg/money"
)

func newTestAccount(t *testing.T, balance string, state State) Account {
	t.Helper()
	a, err := NewAccount("acct-1", money.MustParse(balance), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	a.State = state
	return a
}

func TestTransition_Table(t *testing.T) {
	states := []State{StateActive, StateFrozen, StateClosed}
	allowed := map[[2]State]bool{
		{StateActive, StateFrozen}: true,
		{StateActive, StateClosed}: true,
		{StateFrozen, StateActive}: true,
		{StateFrozen, StateClosed}: true,
	}

	for _, from := range states {
		for _, to := range states {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				a := newTestAccount(t, "100", from)

				next, err := a.Transition(to)

				if allowed[[2]State{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, next.State)
					assert.True(t, next.Balance.Equal(a.Balance))
					return
				}

				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
				var lerr *Error
				require.ErrorAs(t, err, &lerr)
				assert.Equal(t, from, lerr.From)
				assert.Equal(t, to, lerr.To)
				assert.Equal(t, from, next.State, "input returned unchanged")
			})
		}
	}
}

func TestTransition_FreezeDoesNotTouchBalance(t *testing.T) {
	a := newTestAccount(t, "42.5", StateActive)
	frozen, err := a.Transition(StateFrozen)
	require.NoError(t, err)
	assert.Equal(t, "42.5", frozen.Balance.String())
	assert.Equal(t, StateActive, a.State, "original value untouched")
}

func TestAllowedTransitions(t *testing.T) {
	assert.ElementsMatch(t, []State{StateFrozen, StateClosed}, AllowedTransitions(StateActive))
	assert.Empty(t, AllowedTransitions(StateClosed))

	// callers cannot mutate the table
	got := AllowedTransitions(StateActive)
	got[0] = StateClosed
	assert.True(t, CanTransition(StateActive, StateFrozen))
}

func TestParseState(t *testing.T) {
	for _, s := range []State{StateActive, StateFrozen, StateClosed} {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseState("deleted")
	assert.Error(t, err)
	assert.False(t, State(0).Valid())
	assert.Equal(t, "state(9)", State(9).String())
}
