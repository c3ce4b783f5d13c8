package tickets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusActive, StatusUsed, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusExpired, true},
		{StatusUsed, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
		{StatusExpired, StatusCancelled, false},
		{StatusActive, Status("BOGUS"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminality(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusUsed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusActive.IsValid())
	assert.False(t, Status("REFUNDED").IsValid())
}
