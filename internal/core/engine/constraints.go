package engine

import "jamroom/internal/core/domain"

// Constraint evaluator: stateless predicates over a participant and the
// room's gating configuration. The time-window flag and per-user position fix
// are recomputed out of band and only read here; an unknown position fix
// fails the check (fail-closed).

type roomGates struct {
	IsOpen         bool
	OnlyInvited    bool
	HasConstraints bool
	TimeValid      bool
}

func (st *roomState) gates() roomGates {
	return roomGates{
		IsOpen:         st.isOpen,
		OnlyInvited:    st.onlyInvited,
		HasConstraints: st.constraints.HasTimeAndPositionConstraints,
		TimeValid:      st.timeConstraint,
	}
}

// canVote reports whether the participant passes the room's eligibility
// gates. Votes and direct-mode transport consult it; suggestions only
// require membership.
func canVote(p *domain.Participant, g roomGates) bool {
	if !g.IsOpen && !p.UserHasBeenInvited {
		return false
	}
	if g.OnlyInvited && !p.UserHasBeenInvited {
		return false
	}
	if g.HasConstraints {
		if !g.TimeValid {
			return false
		}
		if p.UserFitsPositionConstraint != domain.PositionInside {
			return false
		}
	}
	return true
}

// checkVoteEligibility is the command-side wrapper that maps gate failures
// onto the domain error taxonomy.
func (st *roomState) checkVoteEligibility(user domain.UserID) error {
	p, ok := st.participants[user]
	if !ok {
		return domain.ErrUserNotFound
	}
	if !canVote(p, st.gates()) {
		return domain.ErrIneligible
	}
	return nil
}
