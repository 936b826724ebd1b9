package models

// ControllingGroupRecord is the persisted layout of a ControllingGroup:
// flat fields plus the embedded list of receiving groups.
type ControllingGroupRecord struct {
	GroupID            string           `json:"group_id" db:"group_id"`
	GroupName          string           `json:"group_name" db:"group_name"`
	InviteCode         string           `json:"invite_code" db:"invite_code"`
	WaitingForInput    bool             `json:"waiting_for_input" db:"waiting_for_input"`
	UserInvokedCommand string           `json:"user_invoked_command" db:"user_invoked_command"`
	ReceivingGroups    []ReceivingGroup `json:"receiving_groups" db:"receiving_groups"`
}

// Record flattens the controlling group for storage
func (c *ControllingGroup) Record() ControllingGroupRecord {
	rec := ControllingGroupRecord{
		GroupID:         c.GroupID,
		GroupName:       c.GroupName,
		InviteCode:      c.InviteCode,
		ReceivingGroups: make([]ReceivingGroup, len(c.ReceivingGroups)),
	}
	copy(rec.ReceivingGroups, c.ReceivingGroups)
	if c.Pending != nil {
		rec.WaitingForInput = true
		rec.UserInvokedCommand = c.Pending.InvokedBy
	}
	return rec
}

// ControllingGroup rebuilds the domain record. A waiting flag without an
// invoking user is read as idle since nobody could answer the prompt.
func (r ControllingGroupRecord) ControllingGroup() *ControllingGroup {
	group := &ControllingGroup{
		Group:      Group{GroupID: r.GroupID, GroupName: r.GroupName},
		InviteCode: r.InviteCode,
	}
	if r.WaitingForInput && r.UserInvokedCommand != "" {
		group.Pending = &PendingAnnouncement{InvokedBy: r.UserInvokedCommand}
	}
	for _, g := range r.ReceivingGroups {
		group.AddReceivingGroup(g)
	}
	return group
}
