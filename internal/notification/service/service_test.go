package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limsd/internal/events"
	"limsd/internal/notification/store"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(store.NewMemoryStore())
	require.NoError(t, err)
	return svc
}

func userCtx(userID id.UserID) context.Context {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
		ID: userID, Role: requestcontext.RoleAnalyst,
	})
	return requestcontext.WithTime(ctx, fixedNow)
}

func TestDeliverAddressedEventLandsInInbox(t *testing.T) {
	svc := newService(t)
	userID := id.NewUserID()
	sampleID := id.NewSampleID()

	err := svc.Deliver(context.Background(), events.Event{
		Kind:         events.KindSampleReceived,
		OccurredAt:   fixedNow,
		NotifyUserID: userID,
		SampleID:     sampleID,
		SampleNumber: "J-2026-0001-01",
		Message:      "sample received in acceptable condition",
	})
	require.NoError(t, err)

	inbox, err := svc.List(userCtx(userID), false, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Sample J-2026-0001-01 received", inbox[0].Title)
	assert.Equal(t, sampleID, inbox[0].SampleID)
	assert.False(t, inbox[0].Read)
}

func TestDeliverUnaddressedEventIsIgnored(t *testing.T) {
	svc := newService(t)
	userID := id.NewUserID()

	err := svc.Deliver(context.Background(), events.Event{
		Kind:       events.KindQCViolation,
		OccurredAt: fixedNow,
	})
	require.NoError(t, err)

	n, err := svc.UnreadCount(userCtx(userID))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInboxIsPerUser(t *testing.T) {
	svc := newService(t)
	alice := id.NewUserID()
	bob := id.NewUserID()

	for i, userID := range []id.UserID{alice, alice, bob} {
		require.NoError(t, svc.Deliver(context.Background(), events.Event{
			Kind:         events.KindResultAuthorized,
			OccurredAt:   fixedNow.Add(time.Duration(i) * time.Minute),
			NotifyUserID: userID,
			SampleNumber: "J-2026-0001-01",
		}))
	}

	inbox, err := svc.List(userCtx(alice), false, 0)
	require.NoError(t, err)
	assert.Len(t, inbox, 2)
	assert.True(t, inbox[0].CreatedAt.After(inbox[1].CreatedAt), "newest first")

	n, err := svc.UnreadCount(userCtx(bob))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMarkRead(t *testing.T) {
	svc := newService(t)
	alice := id.NewUserID()
	bob := id.NewUserID()

	require.NoError(t, svc.Deliver(context.Background(), events.Event{
		Kind:         events.KindInvestigationOpened,
		OccurredAt:   fixedNow,
		NotifyUserID: alice,
		NCRNumber:    "NCR-2026-0001",
	}))

	inbox, err := svc.List(userCtx(alice), true, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	_, err = svc.MarkRead(userCtx(bob), inbox[0].ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "cannot read another user's inbox")

	read, err := svc.MarkRead(userCtx(alice), inbox[0].ID)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)
	assert.Equal(t, fixedNow, *read.ReadAt)

	unread, err := svc.List(userCtx(alice), true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	again, err := svc.MarkRead(userCtx(alice), inbox[0].ID)
	require.NoError(t, err, "marking twice is idempotent")
	assert.Equal(t, *read.ReadAt, *again.ReadAt)

	_, err = svc.MarkRead(userCtx(alice), id.NewNotificationID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
