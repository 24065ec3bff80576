package engine

import "jamroom/internal/core/domain"

// Delegation and permission manager. Transport authorization is an explicit
// policy table over (playing mode, requester role):
//
//	broadcast: creator or current delegation owner
//	direct:    any participant passing the invite and constraint gates
//
// In both modes invite gating is applied before any role check.

// checkTransportAuthority validates a play/pause/skip request from user on a
// given device.
func (st *roomState) checkTransportAuthority(user domain.UserID, device domain.DeviceID) error {
	p, ok := st.participants[user]
	if !ok {
		return domain.ErrUserNotFound
	}
	if st.onlyInvited && !p.UserHasBeenInvited {
		return domain.ErrIneligible
	}
	if err := st.checkEmitter(user, device); err != nil {
		return err
	}
	switch st.playingMode {
	case domain.PlayingModeDirect:
		if !canVote(p, st.gates()) {
			return domain.ErrIneligible
		}
		return nil
	case domain.PlayingModeBroadcast:
		if user == st.creator {
			return nil
		}
		if st.delegationOwner != nil && *st.delegationOwner == user {
			return nil
		}
		return domain.ErrForbidden
	default:
		return domain.ErrForbidden
	}
}

// changeDelegationOwner transfers control to newOwner. Only the creator or
// the current delegate may request it; the new owner must hold the control
// and delegation permission.
func (st *roomState) changeDelegationOwner(requester, newOwner domain.UserID) error {
	if requester != st.creator && !st.isDelegationOwner(requester) {
		return domain.ErrForbidden
	}
	target, ok := st.participants[newOwner]
	if !ok {
		return domain.ErrUserNotFound
	}
	if !target.HasControlAndDelegationPermission {
		return domain.ErrInvalidDelegate
	}
	owner := newOwner
	st.delegationOwner = &owner
	return nil
}

// updateControlAndDelegationPermission grants or revokes the permission.
// Revoking from the current delegate clears the delegation in the same turn,
// so a snapshot never shows a delegation owner without the permission.
func (st *roomState) updateControlAndDelegationPermission(requester, targetID domain.UserID, grant bool) error {
	if requester != st.creator {
		return domain.ErrForbidden
	}
	target, ok := st.participants[targetID]
	if !ok {
		return domain.ErrUserNotFound
	}
	target.HasControlAndDelegationPermission = grant
	if !grant && st.isDelegationOwner(targetID) {
		st.delegationOwner = nil
	}
	return nil
}

func (st *roomState) isDelegationOwner(user domain.UserID) bool {
	return st.delegationOwner != nil && *st.delegationOwner == user
}

// dropParticipantDelegation clears delegation state tied to a departing user.
func (st *roomState) dropParticipantDelegation(user domain.UserID) {
	if st.isDelegationOwner(user) {
		st.delegationOwner = nil
	}
}
