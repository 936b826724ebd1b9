package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

// ActivationRequest is submitted from the dashboard by a group that wants
// to receive announcements
type ActivationRequest struct {
	GroupID    string `json:"group_id" validate:"required,max=64"`
	GroupName  string `json:"group_name" validate:"max=255"`
	InviteCode string `json:"invite_code" validate:"required,max=255"`
}

// Activate registers a receiving group after checking its invite code, then
// confirms the activation to both the new group and the controlling group.
func (s *Service) Activate(ctx context.Context, req ActivationRequest) error {
	err := s.activate(ctx, req)

	result := "success"
	switch {
	case errors.Is(err, ErrBadInput):
		result = "bad_input"
	case errors.Is(err, ErrInvalidInviteCode):
		result = "invalid_invite_code"
	case errors.Is(err, ErrAlreadyActivated):
		result = "already_activated"
	case err != nil:
		result = "failed"
	}
	s.metrics.Activation(result)

	return err
}

func (s *Service) activate(ctx context.Context, req ActivationRequest) error {
	req.GroupID = strings.TrimSpace(req.GroupID)
	req.GroupName = strings.TrimSpace(req.GroupName)
	req.InviteCode = strings.TrimSpace(req.InviteCode)

	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"event":    "activation",
		"group_id": req.GroupID,
	})

	group := models.Group{GroupID: req.GroupID, GroupName: req.GroupName}
	if group.GroupName == "" {
		group.GroupName = group.GroupID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.registry.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check registry: %w", err)
	}
	if !exists {
		log.Warn("Activation before the controlling group was set up")
		return ErrInvalidInviteCode
	}

	controlling, err := s.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	if controlling.InviteCode == "" ||
		subtle.ConstantTimeCompare([]byte(req.InviteCode), []byte(controlling.InviteCode)) != 1 {
		log.Info("Invalid invite code")
		return ErrInvalidInviteCode
	}
	if controlling.IsControllingGroup(group.GroupID) {
		return fmt.Errorf("%w: the controlling group cannot receive announcements", ErrBadInput)
	}
	if !controlling.AddReceivingGroup(group) {
		log.Info("Group already activated")
		return ErrAlreadyActivated
	}

	if err := s.registry.Save(ctx, controlling); err != nil {
		return fmt.Errorf("add receiving group: %w", err)
	}

	log.WithField("group_name", group.GroupName).Info("Receiving group activated")

	if err := s.messenger.PushText(ctx, []string{group.GroupID}, []string{msgActivatedGroup}, true); err != nil {
		return fmt.Errorf("confirm to receiving group: %w", err)
	}
	if err := s.messenger.PushText(ctx,
		[]string{controlling.GroupID},
		[]string{fmt.Sprintf(msgActivatedControlling, group.GroupName)},
		true,
	); err != nil {
		return fmt.Errorf("confirm to controlling group: %w", err)
	}

	return nil
}
