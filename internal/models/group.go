package models

import (
	"sort"

	"github.com/samber/lo"
)

// Group identifies a chat group by its platform id and cached display name
type Group struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// ReceivingGroup is a group subscribed to announcements.
// Two receiving groups are the same group when their ids match.
type ReceivingGroup = Group

// Phase is the conversation phase derived from the controlling group record
type Phase string

const (
	PhaseUninitialized        Phase = "uninitialized"
	PhaseAwaitingInviteCode   Phase = "awaiting_invite_code"
	PhaseIdle                 Phase = "idle"
	PhaseAwaitingAnnouncement Phase = "awaiting_announcement"
)

// PendingAnnouncement marks that the bot is waiting for the next message of
// InvokedBy to use as the announcement payload.
type PendingAnnouncement struct {
	InvokedBy string
}

// ControllingGroup is the singleton record of the group allowed to issue
// announcements, together with the groups that receive them.
type ControllingGroup struct {
	Group
	InviteCode      string
	Pending         *PendingAnnouncement
	ReceivingGroups []ReceivingGroup
}

// NewControllingGroup creates the record for the first group the bot joins
func NewControllingGroup(group Group) *ControllingGroup {
	return &ControllingGroup{Group: group}
}

// Phase returns the current conversation phase
func (c *ControllingGroup) Phase() Phase {
	switch {
	case c == nil:
		return PhaseUninitialized
	case c.InviteCode == "":
		return PhaseAwaitingInviteCode
	case c.Pending != nil:
		return PhaseAwaitingAnnouncement
	default:
		return PhaseIdle
	}
}

// IsControllingGroup reports whether groupID is the controlling group
func (c *ControllingGroup) IsControllingGroup(groupID string) bool {
	return c.GroupID == groupID
}

// IsReceivingGroup reports whether the group is subscribed, matching by id
func (c *ControllingGroup) IsReceivingGroup(group Group) bool {
	return lo.ContainsBy(c.ReceivingGroups, func(g ReceivingGroup) bool {
		return g.GroupID == group.GroupID
	})
}

// AddReceivingGroup appends the group unless it is already subscribed.
// It returns false when nothing was added.
func (c *ControllingGroup) AddReceivingGroup(group Group) bool {
	if c.IsReceivingGroup(group) {
		return false
	}
	c.ReceivingGroups = append(c.ReceivingGroups, group)
	return true
}

// RemoveReceivingGroup drops the group with a matching id and returns the
// removed entry.
func (c *ControllingGroup) RemoveReceivingGroup(group Group) (ReceivingGroup, bool) {
	_, idx, found := lo.FindIndexOf(c.ReceivingGroups, func(g ReceivingGroup) bool {
		return g.GroupID == group.GroupID
	})
	if !found {
		return ReceivingGroup{}, false
	}
	removed := c.ReceivingGroups[idx]
	c.ReceivingGroups = append(c.ReceivingGroups[:idx:idx], c.ReceivingGroups[idx+1:]...)
	return removed, true
}

// ReceivingGroupIDs returns the subscribed group ids in subscription order
func (c *ControllingGroup) ReceivingGroupIDs() []string {
	return lo.Map(c.ReceivingGroups, func(g ReceivingGroup, _ int) string {
		return g.GroupID
	})
}

// ReceivingGroupNames returns the subscribed group names sorted lexicographically
func (c *ControllingGroup) ReceivingGroupNames() []string {
	names := lo.Map(c.ReceivingGroups, func(g ReceivingGroup, _ int) string {
		return g.GroupName
	})
	sort.Strings(names)
	return names
}

// StartAnnouncement records userID as the member allowed to send the next
// announcement.
func (c *ControllingGroup) StartAnnouncement(userID string) {
	c.Pending = &PendingAnnouncement{InvokedBy: userID}
}

// ClearAnnouncement returns the conversation to idle
func (c *ControllingGroup) ClearAnnouncement() {
	c.Pending = nil
}

// IsAwaitingFrom reports whether an announcement is pending from userID
func (c *ControllingGroup) IsAwaitingFrom(userID string) bool {
	return c.Pending != nil && userID != "" && c.Pending.InvokedBy == userID
}

// MigrateGroup moves the group with oldID to newID, whether it is the
// controlling group or a receiving group. A receiving group that migrates
// onto an id already subscribed is merged into that entry. It returns false
// when no group has oldID.
func (c *ControllingGroup) MigrateGroup(oldID, newID string) bool {
	if c.GroupID == oldID {
		c.GroupID = newID
		return true
	}

	_, idx, found := lo.FindIndexOf(c.ReceivingGroups, func(g ReceivingGroup) bool {
		return g.GroupID == oldID
	})
	if !found {
		return false
	}
	if c.IsReceivingGroup(Group{GroupID: newID}) {
		c.RemoveReceivingGroup(Group{GroupID: oldID})
		return true
	}
	c.ReceivingGroups[idx].GroupID = newID
	return true
}
