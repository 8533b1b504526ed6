package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, NotStarted, l.State())

	assert.ErrorIs(t, l.Pass(), ErrIllegalTransition)
	assert.ErrorIs(t, l.Fail(), ErrIllegalTransition)

	require.NoError(t, l.Start())
	assert.Equal(t, Running, l.State())
	assert.ErrorIs(t, l.Start(), ErrIllegalTransition)

	require.NoError(t, l.Fail())
	assert.Equal(t, Failed, l.State())
	assert.True(t, l.State().Terminal())

	assert.ErrorIs(t, l.Pass(), ErrIllegalTransition)
	assert.ErrorIs(t, l.Start(), ErrIllegalTransition)
	assert.Equal(t, Failed, l.State())
}

func TestLifecyclePass(t *testing.T) {
	var l Lifecycle
	require.NoError(t, l.Start())
	require.NoError(t, l.Pass())
	assert.Equal(t, Passed, l.State())
	assert.ErrorIs(t, l.Fail(), ErrIllegalTransition)
}

func TestStateText(t *testing.T) {
	data, err := json.Marshal(map[string]State{"s": Running})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"Running"}`, string(data))

	var s State
	require.NoError(t, s.UnmarshalText([]byte("Passed")))
	assert.Equal(t, Passed, s)
	assert.Error(t, s.UnmarshalText([]byte("Done")))
	assert.Equal(t, "State(9)", State(9).String())
	assert.False(t, Running.Terminal())
}

func TestFailureError(t *testing.T) {
	a := ExpectText(orderNow, "Order now")
	f := (&Failure{Kind: AssertionMismatch, Expected: `"x"`, Actual: `"y"`}).at(3, &a)
	assert.Equal(t,
		`AssertionMismatch at action 3 (expect_text getByRole("button", {name: "Order now"}) "Order now"): expected "x", got "y"`,
		f.Error())

	setup := (&Failure{Kind: DriverError, Message: "boom"}).at(-1, nil)
	assert.Equal(t, "DriverError during setup: boom", setup.Error())
}
