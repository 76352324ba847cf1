package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, AppointmentStatus("BOOKED").Valid())
}

func TestStatusMachine(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("+55 11 98765-4321")
	h2 := HashPhone("+55 11 98765-4321")
	h3 := HashPhone("+55 11 00000-0000")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "98765", "raw digits must not leak into the hash")
}
