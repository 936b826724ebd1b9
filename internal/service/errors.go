package service

import "errors"

// Events failing one of these checks are logged and dropped
var (
	ErrNotAGroupSource     = errors.New("event did not come from a group")
	ErrNotControllingGroup = errors.New("event did not come from the controlling group")
	ErrNotReceivingGroup   = errors.New("group is not a receiving group")
)

// ErrUnsupportedMessageType cancels an announcement whose content cannot be relayed
var ErrUnsupportedMessageType = errors.New("unsupported message type")

// Activation failures
var (
	ErrBadInput          = errors.New("bad input")
	ErrInvalidInviteCode = errors.New("invalid invite code")
	ErrAlreadyActivated  = errors.New("already activated")
)

// errIgnored marks an event that matched no transition
var errIgnored = errors.New("event ignored")

func isDropped(err error) bool {
	return errors.Is(err, ErrNotAGroupSource) ||
		errors.Is(err, ErrNotControllingGroup) ||
		errors.Is(err, ErrNotReceivingGroup)
}
