package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivate_Success(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.seed(t, "secret", groupAlpha)

	err := f.svc.Activate(context.Background(), ActivationRequest{
		GroupID:    " -2 ",
		GroupName:  " beta ",
		InviteCode: "secret ",
	})
	req.NoError(err)

	group := f.load(t)
	req.Equal([]string{"-3", "-2"}, group.ReceivingGroupIDs())
	req.Equal(groupBeta, group.ReceivingGroups[1])

	req.Len(f.messenger.pushes, 2)
	req.Equal([]string{"-2"}, f.messenger.pushes[0].groupIDs)
	req.Equal([]string{msgActivatedGroup}, f.messenger.pushes[0].texts)
	req.Equal([]string{controllingGroup.GroupID}, f.messenger.pushes[1].groupIDs)
	req.Equal([]string{"beta is now receiving announcements"}, f.messenger.pushes[1].texts)
	req.True(f.messenger.pushes[0].silent)
	req.True(f.messenger.pushes[1].silent)
}

func TestActivate_Repeated(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.seed(t, "secret")
	ctx := context.Background()
	activation := ActivationRequest{GroupID: "-2", GroupName: "beta", InviteCode: "secret"}

	req.NoError(f.svc.Activate(ctx, activation))
	req.ErrorIs(f.svc.Activate(ctx, activation), ErrAlreadyActivated)

	req.Len(f.load(t).ReceivingGroups, 1)
	req.Len(f.messenger.pushes, 2)
}

func TestActivate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		request ActivationRequest
		want    error
	}{
		{"missing group id", ActivationRequest{GroupName: "beta", InviteCode: "secret"}, ErrBadInput},
		{"blank invite code", ActivationRequest{GroupID: "-2", InviteCode: "   "}, ErrBadInput},
		{"wrong invite code", ActivationRequest{GroupID: "-2", InviteCode: "guess"}, ErrInvalidInviteCode},
		{"controlling group", ActivationRequest{GroupID: controllingGroup.GroupID, InviteCode: "secret"}, ErrBadInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "secret")
			saves := f.registry.Saves()

			err := f.svc.Activate(context.Background(), tc.request)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, saves, f.registry.Saves())
			assert.Empty(t, f.messenger.pushes)
		})
	}
}

func TestActivate_BeforeSetup(t *testing.T) {
	t.Run("no controlling group", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.Activate(context.Background(), ActivationRequest{GroupID: "-2", InviteCode: "x"})
		require.ErrorIs(t, err, ErrInvalidInviteCode)
	})

	t.Run("invite code not configured", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, "")
		err := f.svc.Activate(context.Background(), ActivationRequest{GroupID: "-2", InviteCode: "x"})
		require.ErrorIs(t, err, ErrInvalidInviteCode)
	})
}

func TestActivate_NameDefaultsToID(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "secret")

	require.NoError(t, f.svc.Activate(context.Background(), ActivationRequest{GroupID: "-2", InviteCode: "secret"}))
	assert.Equal(t, "-2", f.load(t).ReceivingGroups[0].GroupName)
}

func TestActivate_PushFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "secret")
	f.messenger.pushErr = errors.New("blocked")

	err := f.svc.Activate(context.Background(), ActivationRequest{GroupID: "-2", InviteCode: "secret"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadInput))
	// The group stays registered; only the confirmation failed.
	assert.Len(t, f.load(t).ReceivingGroups, 1)
}
