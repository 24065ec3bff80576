package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
	"jamroom/internal/core/services"
	apperrors "jamroom/pkg/errors"
	"jamroom/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one connected device. A user may hold several clients at once;
// the engine decides which one is the emitter.
type client struct {
	deviceID domain.DeviceID
	userID   domain.UserID
	nickname string

	conn    *websocket.Conn
	writeMu sync.Mutex

	// roomID is set after a successful CREATE_ROOM or JOIN_ROOM and cleared
	// on leave. Guarded by mu of the server, not the client.
	roomID domain.RoomID

	limiter *rate.Limiter
}

// Server is the websocket device gateway. It authenticates connections,
// translates inbound frames into RoomService calls and implements
// ports.Broadcaster for engine output.
type Server struct {
	rooms ports.RoomService
	auth  services.AuthService

	clients map[domain.DeviceID]*client
	mu      sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	messagesPerSecond float64
	messageBurst      int

	logger *zap.SugaredLogger
}

var _ ports.Broadcaster = (*Server)(nil)

func NewServer(auth services.AuthService, logger *zap.Logger) *Server {
	return &Server{
		auth:              auth,
		clients:           make(map[domain.DeviceID]*client),
		pingInterval:      30 * time.Second,
		pongTimeout:       60 * time.Second,
		writeTimeout:      10 * time.Second,
		messagesPerSecond: 20,
		messageBurst:      40,
		logger:            logger.Sugar(),
	}
}

// SetRoomService binds the engine after construction. The engine needs the
// gateway as its broadcaster, so the two cannot reference each other at
// construction time.
func (s *Server) SetRoomService(rooms ports.RoomService) {
	s.rooms = rooms
}

// SetPingInterval sets the ping interval for gateway connections.
func (s *Server) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets the pong timeout for gateway connections.
func (s *Server) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

// SetMessageRate configures the per-connection inbound frame limiter.
func (s *Server) SetMessageRate(perSecond float64, burst int) {
	s.messagesPerSecond = perSecond
	s.messageBurst = burst
}

// HandleWebSocket upgrades the request and runs the connection loop until
// the device disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		deviceID: domain.DeviceID(utils.GenerateDeviceID()),
		userID:   claims.UserID,
		nickname: claims.Nickname,
		conn:     conn,
		limiter:  rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.messageBurst),
	}

	s.mu.Lock()
	s.clients[c.deviceID] = c
	s.mu.Unlock()

	s.logger.Infow("device connected", "device_id", c.deviceID, "user_id", c.userID)

	// The device learns its engine-assigned ID before anything else.
	s.send(c, ServerMessage{Type: "CONNECTION_ACKNOWLEDGED", Payload: map[string]interface{}{
		"deviceId": c.deviceID,
	}})

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan ClientMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if !c.limiter.Allow() {
				s.sendError(c, apperrors.NewRateLimitError())
				continue
			}
			if err := s.handleMessage(r.Context(), c, msg); err != nil {
				s.logger.Infow("message handling failed",
					"device_id", c.deviceID, "type", msg.Type, "error", err)
				s.sendError(c, err)
			}

		case <-pingTicker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("ping failed", "device_id", c.deviceID, "error", err)
				s.cleanup(c)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read failed", "device_id", c.deviceID, "error", err)
			}
			s.cleanup(c)
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, msg ClientMessage) error {
	if msg.Type == "" {
		return apperrors.NewInvalidInputError("message type is required")
	}

	switch msg.Type {
	case MsgCreateRoom:
		return s.handleCreateRoom(ctx, c, msg.Payload)
	case MsgJoinRoom:
		return s.handleJoinRoom(ctx, c, msg.Payload)
	case MsgLeaveRoom:
		return s.handleLeaveRoom(ctx, c)
	case MsgActionPlay:
		roomID, err := s.roomOf(c)
		if err != nil {
			return err
		}
		if err := s.rooms.Play(ctx, roomID, c.userID, c.deviceID); err != nil {
			return err
		}
		s.send(c, ServerMessage{Type: MsgActionPlayCallback})
		return nil
	case MsgActionPause:
		roomID, err := s.roomOf(c)
		if err != nil {
			return err
		}
		if err := s.rooms.Pause(ctx, roomID, c.userID, c.deviceID); err != nil {
			return err
		}
		s.send(c, ServerMessage{Type: MsgActionPauseCallback})
		return nil
	case MsgGoToNextTrack:
		roomID, err := s.roomOf(c)
		if err != nil {
			return err
		}
		return s.rooms.SkipToNext(ctx, roomID, c.userID, c.deviceID)
	case MsgSuggestTrack:
		return s.handleSuggestTrack(ctx, c, msg.Payload)
	case MsgVoteForTrack:
		return s.handleVoteForTrack(ctx, c, msg.Payload)
	case MsgGetContext:
		return s.handleGetContext(ctx, c)
	case MsgChangeEmittingDevice:
		return s.handleChangeEmittingDevice(ctx, c, msg.Payload)
	case MsgChangeDelegation:
		return s.handleChangeDelegation(ctx, c, msg.Payload)
	case MsgUpdatePermission:
		return s.handleUpdatePermission(ctx, c, msg.Payload)
	case MsgUpdatePosition:
		return s.handleUpdatePosition(ctx, c, msg.Payload)
	case MsgNewMessage:
		return s.handleNewMessage(ctx, c, msg.Payload)
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (s *Server) handleCreateRoom(ctx context.Context, c *client, payload json.RawMessage) error {
	var p CreateRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid CREATE_ROOM payload")
	}
	nickname := p.Nickname
	if nickname == "" {
		nickname = c.nickname
	}

	snapshot, err := s.rooms.CreateRoom(ctx, c.userID, nickname, c.deviceID, p.Options)
	if err != nil {
		return err
	}

	s.mu.Lock()
	c.roomID = snapshot.RoomID
	s.mu.Unlock()

	s.send(c, ServerMessage{Type: MsgCreateRoomCallback, Payload: snapshot})
	return nil
}

func (s *Server) handleJoinRoom(ctx context.Context, c *client, payload json.RawMessage) error {
	var p JoinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid JOIN_ROOM payload")
	}
	nickname := p.Nickname
	if nickname == "" {
		nickname = c.nickname
	}

	snapshot, err := s.rooms.JoinRoom(ctx, p.RoomID, c.userID, nickname, c.deviceID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	c.roomID = snapshot.RoomID
	s.mu.Unlock()

	s.send(c, ServerMessage{Type: MsgJoinRoomCallback, Payload: snapshot})
	return nil
}

func (s *Server) handleLeaveRoom(ctx context.Context, c *client) error {
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	if err := s.rooms.LeaveRoom(ctx, roomID, c.userID, c.deviceID); err != nil {
		return err
	}
	s.mu.Lock()
	c.roomID = ""
	s.mu.Unlock()
	return nil
}

func (s *Server) handleSuggestTrack(ctx context.Context, c *client, payload json.RawMessage) error {
	var p SuggestTrackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid SUGGEST_TRACK payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	return s.rooms.SuggestTrack(ctx, roomID, c.userID, c.deviceID, p.Track)
}

func (s *Server) handleVoteForTrack(ctx context.Context, c *client, payload json.RawMessage) error {
	var p VoteForTrackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid VOTE_FOR_TRACK payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	return s.rooms.VoteForTrack(ctx, roomID, c.userID, c.deviceID, p.TrackID)
}

func (s *Server) handleGetContext(ctx context.Context, c *client) error {
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	snapshot, err := s.rooms.GetContext(ctx, roomID, c.userID)
	if err != nil {
		return err
	}
	s.send(c, ServerMessage{Type: MsgRetrieveContext, Payload: snapshot})
	return nil
}

func (s *Server) handleChangeEmittingDevice(ctx context.Context, c *client, payload json.RawMessage) error {
	var p ChangeEmittingDevicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid CHANGE_EMITTING_DEVICE payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	return s.rooms.PromoteDevice(ctx, roomID, c.userID, p.DeviceID)
}

func (s *Server) handleChangeDelegation(ctx context.Context, c *client, payload json.RawMessage) error {
	var p ChangeDelegationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid CHANGE_DELEGATION_OWNER payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	return s.rooms.ChangeDelegationOwner(ctx, roomID, c.userID, p.NewOwnerUserID)
}

func (s *Server) handleUpdatePermission(ctx context.Context, c *client, payload json.RawMessage) error {
	var p UpdatePermissionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid UPDATE_CONTROL_AND_DELEGATION_PERMISSION payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	return s.rooms.UpdateControlAndDelegationPermission(ctx, roomID, c.userID, p.TargetUserID, p.HasControlAndDelegationPermission)
}

func (s *Server) handleUpdatePosition(ctx context.Context, c *client, payload json.RawMessage) error {
	var p UpdatePositionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid UPDATE_DEVICE_POSITION payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	fix := domain.PositionOutside
	if p.FitsPositionConstraint {
		fix = domain.PositionInside
	}
	return s.rooms.UpdateUserPosition(ctx, roomID, c.userID, fix)
}

func (s *Server) handleNewMessage(ctx context.Context, c *client, payload json.RawMessage) error {
	var p NewMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperrors.NewInvalidInputError("invalid NEW_MESSAGE payload")
	}
	roomID, err := s.roomOf(c)
	if err != nil {
		return err
	}
	return s.rooms.SendChatMessage(ctx, roomID, c.userID, p.Text)
}

func (s *Server) roomOf(c *client) (domain.RoomID, error) {
	s.mu.RLock()
	roomID := c.roomID
	s.mu.RUnlock()
	if roomID == "" {
		return "", apperrors.NewInvalidInputError("device is not in a room")
	}
	return roomID, nil
}

// PushSnapshot implements ports.Broadcaster.
func (s *Server) PushSnapshot(deviceID domain.DeviceID, snapshot domain.RoomSnapshot) {
	s.mu.RLock()
	c, ok := s.clients[deviceID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.send(c, ServerMessage{Type: MsgRetrieveContext, Payload: snapshot})
}

// PushChatMessage implements ports.Broadcaster.
func (s *Server) PushChatMessage(deviceID domain.DeviceID, message domain.ChatMessage) {
	s.mu.RLock()
	c, ok := s.clients[deviceID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.send(c, ServerMessage{Type: MsgReceivedMessage, Payload: message})
}

// PushChatHistory implements ports.Broadcaster.
func (s *Server) PushChatHistory(deviceID domain.DeviceID, messages []domain.ChatMessage) {
	s.mu.RLock()
	c, ok := s.clients[deviceID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.send(c, ServerMessage{Type: MsgLoadMessages, Payload: messages})
}

// ForceDisconnect implements ports.Broadcaster. The notification is
// best-effort; the connection is torn down either way.
func (s *Server) ForceDisconnect(deviceID domain.DeviceID) {
	s.mu.Lock()
	c, ok := s.clients[deviceID]
	if ok {
		delete(s.clients, deviceID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.send(c, ServerMessage{Type: MsgForcedDisconnection})
	c.conn.Close()
	s.logger.Infow("device force-disconnected", "device_id", deviceID)
}

// ConnectedDevices returns the IDs of every live connection.
func (s *Server) ConnectedDevices() []domain.DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]domain.DeviceID, 0, len(s.clients))
	for id := range s.clients {
		devices = append(devices, id)
	}
	return devices
}

// HealthCheck reports the live connection count.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connections := len(s.clients)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connections,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Shutdown closes every live connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[domain.DeviceID]*client)
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (s *Server) send(c *client, msg ServerMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		s.logger.Infow("write failed", "device_id", c.deviceID, "error", err)
	}
}

func (s *Server) sendError(c *client, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		appErr = apperrors.FromDomain(err)
	}
	s.send(c, ServerMessage{Type: MsgError, Payload: ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	}})
}

// cleanup runs when a connection drops without a clean leave. The device is
// unregistered from its room so the engine can demote or remove the user.
func (s *Server) cleanup(c *client) {
	s.mu.Lock()
	if existing, ok := s.clients[c.deviceID]; !ok || existing != c {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.deviceID)
	roomID := c.roomID
	s.mu.Unlock()

	if roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rooms.UnregisterDevice(ctx, roomID, c.userID, c.deviceID); err != nil {
			s.logger.Infow("device unregister on disconnect failed",
				"device_id", c.deviceID, "room_id", roomID, "error", err)
		}
	}

	s.logger.Infow("device disconnected", "device_id", c.deviceID, "user_id", c.userID)
}
