package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "limsd/pkg/domain"
)

func TestStatusAdvancesForwardOnly(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusOpen, StatusInvestigating, true},
		{StatusInvestigating, StatusCorrectiveAction, true},
		{StatusCorrectiveAction, StatusClosed, true},
		{StatusOpen, StatusCorrectiveAction, false},
		{StatusOpen, StatusClosed, false},
		{StatusInvestigating, StatusOpen, false},
		{StatusClosed, StatusOpen, false},
		{StatusClosed, StatusClosed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanAdvanceTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAdvanceStampsClosure(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	closer := id.NewUserID()
	inv := &Investigation{Status: StatusCorrectiveAction}

	inv.Advance(StatusClosed, closer, now)
	assert.Equal(t, StatusClosed, inv.Status)
	assert.True(t, inv.Terminal())
	assert.Equal(t, closer, inv.ClosedBy)
	if assert.NotNil(t, inv.ClosedAt) {
		assert.Equal(t, now, *inv.ClosedAt)
	}
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, TypeNCR.Valid())
	assert.False(t, Type("TICKET").Valid())
	assert.True(t, SeverityMajor.Valid())
	assert.True(t, SeverityCritical.Valid())
	assert.False(t, Severity("BLOCKER").Valid())
	assert.True(t, StatusOpen.Valid())
	assert.False(t, Status("PARKED").Valid())
}
