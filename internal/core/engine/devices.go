package engine

import (
	"time"

	"jamroom/internal/core/domain"
)

// Device session registry. Exactly one device per (user, room) is the
// emitter; every other device is a mirror and never originates transport
// commands. All mutations run inside the owning actor's turn, so promotion
// and demotion races are serialized by construction.

// registerDevice attaches a device to the user. The first device becomes the
// emitter; later ones join as mirrors.
func (st *roomState) registerDevice(user domain.UserID, device domain.DeviceID, now time.Time) *domain.DeviceSession {
	role := domain.DeviceMirror
	if st.emitterOf(user) == nil {
		role = domain.DeviceEmitter
	}
	session := &domain.DeviceSession{
		DeviceID:    device,
		UserID:      user,
		Role:        role,
		ConnectedAt: now,
	}
	st.devices[device] = session
	return session
}

// promoteDevice performs an explicit takeover: the previous emitter is
// demoted to mirror, never removed.
func (st *roomState) promoteDevice(user domain.UserID, device domain.DeviceID) (demoted *domain.DeviceSession, err error) {
	session, ok := st.devices[device]
	if !ok || session.UserID != user {
		return nil, domain.ErrDeviceNotFound
	}
	if session.Role == domain.DeviceEmitter {
		return nil, nil
	}
	if prev := st.emitterOf(user); prev != nil {
		prev.Role = domain.DeviceMirror
		demoted = prev
	}
	session.Role = domain.DeviceEmitter
	return demoted, nil
}

// unregisterDevice drops the session. When the emitter disconnects the user
// is left without one until another device reconnects or takes over.
func (st *roomState) unregisterDevice(user domain.UserID, device domain.DeviceID) error {
	session, ok := st.devices[device]
	if !ok || session.UserID != user {
		return domain.ErrDeviceNotFound
	}
	delete(st.devices, device)
	return nil
}

// checkEmitter rejects commands originated by a mirror device.
func (st *roomState) checkEmitter(user domain.UserID, device domain.DeviceID) error {
	session, ok := st.devices[device]
	if !ok || session.UserID != user {
		return domain.ErrDeviceNotFound
	}
	if session.Role != domain.DeviceEmitter {
		return domain.ErrForbidden
	}
	return nil
}

func (st *roomState) emitterOf(user domain.UserID) *domain.DeviceSession {
	for _, s := range st.devices {
		if s.UserID == user && s.Role == domain.DeviceEmitter {
			return s
		}
	}
	return nil
}

func (st *roomState) devicesOf(user domain.UserID) []*domain.DeviceSession {
	var out []*domain.DeviceSession
	for _, s := range st.devices {
		if s.UserID == user {
			out = append(out, s)
		}
	}
	return out
}
