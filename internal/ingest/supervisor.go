// Package ingest wires the bulk reference-data upload module: the realtime
// session supervisor over websocket, the REST handler, and the coordinator,
// processor, resolver, and merger behind them.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"dealerhub_backend/internal/ingest/service"
	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/apperr"
	"dealerhub_backend/platform/config"
	"dealerhub_backend/platform/httpkit"
	"dealerhub_backend/platform/logger"
	"dealerhub_backend/platform/ws"

	"github.com/google/uuid"
)

// batchQueueSize bounds how many batches a client may submit ahead of the
// one being processed before further submissions are refused.
const batchQueueSize = 4

// sessionState tracks one authenticated connection and its batch queue.
// Batches run on a dedicated goroutine so the read pump stays free to
// dispatch cancel and status frames while rows are being processed; the
// single consumer is what preserves submission order.
type sessionState struct {
	sess    service.Session
	batches chan transport.UploadBatchPayload

	mu     sync.Mutex
	closed bool
}

// enqueue hands a batch to the session's worker. It reports false when the
// session is gone or the client is submitting faster than the queue drains.
func (st *sessionState) enqueue(payload transport.UploadBatchPayload) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false
	}
	select {
	case st.batches <- payload:
		return true
	default:
		return false
	}
}

func (st *sessionState) close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.closed {
		st.closed = true
		close(st.batches)
	}
}

// Supervisor owns the realtime sessions: it authenticates upgrade requests,
// tracks which connection belongs to which session, dispatches inbound
// protocol frames to the coordinator, and delivers outbound events. It is the
// coordinator's Emitter.
type Supervisor struct {
	hub         *ws.Hub
	coordinator *service.Coordinator
	jwtCfg      config.JWTConfig
	log         *logger.Logger

	mu       sync.RWMutex
	conns    map[uuid.UUID]*ws.Connection
	sessions map[*ws.Connection]*sessionState
}

// NewSupervisor creates the supervisor and its hub. The coordinator's emitter
// must be pointed at the returned supervisor by the caller.
func NewSupervisor(coordinator *service.Coordinator, jwtCfg config.JWTConfig, log *logger.Logger) *Supervisor {
	s := &Supervisor{
		coordinator: coordinator,
		jwtCfg:      jwtCfg,
		log:         log,
		conns:       make(map[uuid.UUID]*ws.Connection),
		sessions:    make(map[*ws.Connection]*sessionState),
	}
	s.hub = ws.NewHub(&ws.HubOptions{
		Logger:       log,
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
		OnMessage:    s.handleMessage,
	})
	return s
}

// ServeHTTP exposes the websocket upgrade endpoint.
func (s *Supervisor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeHTTP(w, r)
}

// Emit delivers one protocol event to the session's connection. A session
// that already disconnected is not an error; the coordinator keeps operation
// state through the grace window regardless of delivery.
func (s *Supervisor) Emit(sessionID uuid.UUID, event string, payload any) {
	frame, err := transport.NewFrame(event, payload)
	if err != nil {
		s.log.Error("failed to encode outbound frame", "event", event, "error", err)
		return
	}

	s.mu.RLock()
	conn, ok := s.conns[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.SendMessage(frame); err != nil {
		s.log.Warn("outbound frame dropped", "event", event, "session_id", sessionID, "error", err)
	}
}

// BroadcastToTenant fans an event out to every live session of a tenant.
func (s *Supervisor) BroadcastToTenant(tenantID uuid.UUID, event string, payload any) {
	frame, err := transport.NewFrame(event, payload)
	if err != nil {
		s.log.Error("failed to encode broadcast frame", "event", event, "error", err)
		return
	}
	s.hub.BroadcastToChannel(tenantChannel(tenantID), frame)
}

// handleConnect authenticates the upgrade request. Browsers cannot set an
// Authorization header on a websocket handshake, so the access token travels
// as a query parameter.
func (s *Supervisor) handleConnect(r *http.Request, hub *ws.Hub, conn *ws.Connection) error {
	token := r.URL.Query().Get("token")
	if token == "" {
		return errors.New("missing token")
	}
	claims, err := httpkit.ParseAccessClaims(token, s.jwtCfg)
	if err != nil {
		return err
	}
	userID, err := httpkit.ParseUserID(claims)
	if err != nil {
		return err
	}
	tenantID, err := httpkit.ParseTenantID(claims)
	if err != nil {
		return err
	}

	sess := service.Session{ID: conn.ID(), UserID: userID}
	if tenantID != nil {
		sess.TenantID = *tenantID
	}
	state := &sessionState{
		sess:    sess,
		batches: make(chan transport.UploadBatchPayload, batchQueueSize),
	}

	s.mu.Lock()
	s.conns[sess.ID] = conn
	s.sessions[conn] = state
	s.mu.Unlock()

	go s.batchLoop(state)

	hub.JoinChannel(userChannel(userID), conn)
	if tenantID != nil {
		hub.JoinChannel(tenantChannel(*tenantID), conn)
	}

	s.log.SessionEvent("session_opened", sess.ID.String(), userID.String())
	return nil
}

func (s *Supervisor) handleDisconnect(conn *ws.Connection) {
	s.mu.Lock()
	state, ok := s.sessions[conn]
	if ok {
		delete(s.sessions, conn)
		delete(s.conns, state.sess.ID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	state.close()
	s.log.SessionEvent("session_closed", state.sess.ID.String(), state.sess.UserID.String())
	s.coordinator.HandleDisconnect(state.sess.ID)
}

// batchLoop drains one session's submitted batches in order. Rejections
// (out of sequence, cancelled, over the row limit) go back as non-terminal
// upload_rejected frames; the coordinator emits everything else itself.
func (s *Supervisor) batchLoop(state *sessionState) {
	for payload := range state.batches {
		if err := s.coordinator.SubmitBatch(context.Background(), state.sess.ID, payload); err != nil {
			s.Emit(state.sess.ID, transport.EventUploadRejected, rejectionPayload("", "invalid payload", err))
		}
	}
}

// handleMessage dispatches one inbound frame. Batch submissions are queued
// for the session's worker goroutine; everything else runs inline on the
// read pump, which is how a cancel frame reaches the coordinator while a
// batch is still processing.
func (s *Supervisor) handleMessage(conn *ws.Connection, data []byte) {
	s.mu.RLock()
	state, ok := s.sessions[conn]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sessionID := state.sess.ID

	var frame transport.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.reject(sessionID, "", "malformed frame")
		return
	}

	ctx := context.Background()
	var err error
	switch frame.Event {
	case transport.EventStartUploadConfig:
		var payload transport.UploadConfigPayload
		if err = json.Unmarshal(frame.Data, &payload); err == nil {
			err = s.coordinator.StartUpload(ctx, state.sess, payload)
		}
	case transport.EventUploadBatch:
		var payload transport.UploadBatchPayload
		if err = json.Unmarshal(frame.Data, &payload); err == nil {
			if !state.enqueue(payload) {
				s.reject(sessionID, "", "too many batches in flight")
			}
			return
		}
	case transport.EventCancelUpload:
		var payload transport.CancelUploadPayload
		if err = json.Unmarshal(frame.Data, &payload); err == nil {
			err = s.coordinator.Cancel(ctx, sessionID, payload.BatchID)
		}
	case transport.EventGetUploadStatus:
		var status transport.UploadStatusPayload
		if status, err = s.coordinator.StatusBySession(sessionID); err == nil {
			s.Emit(sessionID, transport.EventUploadStatus, status)
		}
	default:
		s.reject(sessionID, "", "unknown event: "+frame.Event)
		return
	}

	if err != nil {
		s.Emit(sessionID, transport.EventUploadRejected, rejectionPayload("", "invalid payload", err))
	}
}

func (s *Supervisor) reject(sessionID uuid.UUID, batchID, message string) {
	s.Emit(sessionID, transport.EventUploadRejected, transport.UploadRejectedPayload{
		BatchID: batchID,
		Code:    rejectionCode(apperr.KindBadRequest),
		Message: message,
	})
}

// rejectionPayload folds an error into the non-terminal rejection frame.
// Untyped errors (almost always a payload that failed to decode) carry the
// fallback message.
func rejectionPayload(batchID, fallback string, err error) transport.UploadRejectedPayload {
	payload := transport.UploadRejectedPayload{
		BatchID: batchID,
		Code:    rejectionCode(apperr.KindBadRequest),
		Message: fallback,
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		payload.Code = rejectionCode(appErr.Kind)
		payload.Message = appErr.Message
	}
	return payload
}

func rejectionCode(kind apperr.Kind) string {
	switch kind {
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindValidation:
		return "validation"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindGone:
		return "gone"
	default:
		return "bad_request"
	}
}

func userChannel(userID uuid.UUID) string     { return "user/" + userID.String() }
func tenantChannel(tenantID uuid.UUID) string { return "tenant/" + tenantID.String() }
