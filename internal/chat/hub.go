// Package chat implements the membership roster, bounded history, and
// join/leave/message broadcast fan-out shared by every connected session.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bken/chatserver/internal/broadcast"
	"bken/chatserver/internal/dropvec"
	"bken/chatserver/internal/idcounter"
)

// broadcastBuffer bounds how many in-flight items each broadcast channel
// holds before a slow subscriber starts lagging.
const broadcastBuffer = 20

// ErrMaxConcurrentUsers is returned by NewClient when the roster is already
// at its configured cap.
var ErrMaxConcurrentUsers = errors.New("max concurrent user count reached")

// Recorder emits the three named chat metrics. Implementations live outside
// this package; the hub only ever sees this narrow interface.
type Recorder interface {
	IncJoined()
	IncLeft()
	IncMessages()
}

type nopRecorder struct{}

func (nopRecorder) IncJoined()   {}
func (nopRecorder) IncLeft()     {}
func (nopRecorder) IncMessages() {}

// Config holds the hub's tunables.
type Config struct {
	MaxUsers          uint16 // 0 disables the cap
	MaxStoredMessages int
	Recorder          Recorder // nil defaults to a no-op recorder
}

// Hub owns the roster, the message history, and the three broadcast buses
// that fan chat events out to every connected session. NewClient adds
// roster entries; removals and history pushes happen only in the hub's own
// reconciliation goroutines. Sessions read both through the snapshot
// methods.
type Hub struct {
	maxUsers uint16
	recorder Recorder

	rosterMu sync.Mutex
	roster   map[uint16]UserInfo

	historyMu sync.Mutex
	history   *dropvec.DropVec[Message]

	ids *idcounter.Counter

	messages *broadcast.Broadcaster[Message]
	joins    *broadcast.Broadcaster[UserInfo]
	leaves   *broadcast.Broadcaster[UserInfo]

	cancel context.CancelFunc
}

// New constructs a Hub and starts its background reconciliation goroutines.
func New(cfg Config) *Hub {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		maxUsers: cfg.MaxUsers,
		recorder: recorder,
		roster:   make(map[uint16]UserInfo),
		history:  dropvec.New[Message](cfg.MaxStoredMessages),
		ids:      &idcounter.Counter{},
		messages: broadcast.New[Message](broadcastBuffer),
		joins:    broadcast.New[UserInfo](broadcastBuffer),
		leaves:   broadcast.New[UserInfo](broadcastBuffer),
		cancel:   cancel,
	}

	go h.reconcileLeaves(ctx, h.leaves.Subscribe())
	go h.reconcileMessages(ctx, h.messages.Subscribe())

	return h
}

func (h *Hub) reconcileLeaves(ctx context.Context, sub *broadcast.Subscriber[UserInfo]) {
	for {
		info, lag, ok, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		if !ok {
			return
		}
		if lag > 0 {
			slog.Error("leave receiver lagged, ghost users may appear", "dropped", lag)
		}
		h.rosterMu.Lock()
		delete(h.roster, info.ID)
		h.rosterMu.Unlock()
		h.recorder.IncLeft()
		slog.Debug("user left", "session_id", info.ID)
	}
}

func (h *Hub) reconcileMessages(ctx context.Context, sub *broadcast.Subscriber[Message]) {
	for {
		m, lag, ok, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		if !ok {
			return
		}
		if lag > 0 {
			slog.Error("message receiver lagged", "dropped", lag)
		}
		h.historyMu.Lock()
		h.history.Push(m)
		h.historyMu.Unlock()
		h.recorder.IncMessages()
	}
}

// Shutdown stops the reconciliation goroutines and closes every broadcast
// channel, unblocking any session still waiting on one.
func (h *Hub) Shutdown() {
	h.cancel()
	h.messages.Close()
	h.joins.Close()
	h.leaves.Close()
}

// RosterSize returns the current number of connected sessions.
func (h *Hub) RosterSize() int {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()
	return len(h.roster)
}

// RosterSnapshot returns the current roster in no particular order.
func (h *Hub) RosterSnapshot() []UserInfo {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()
	out := make([]UserInfo, 0, len(h.roster))
	for _, info := range h.roster {
		out = append(out, info)
	}
	return out
}

// HistorySnapshot returns the retained messages, oldest first.
func (h *Hub) HistorySnapshot() []Message {
	h.historyMu.Lock()
	defer h.historyMu.Unlock()
	return h.history.Iter()
}

// NewClient admits a newly claimed name into the roster and returns a handle
// bundling the new session's identity, its publish method, and its message
// and join subscriptions. The join subscription starts before the new
// session's own join is sent, so that join is the first event it yields.
// The caller must Close the handle on every exit path, or the session will
// appear as a ghost to other clients.
func (h *Hub) NewClient(displayName string) (*SessionHandle, error) {
	h.rosterMu.Lock()
	if h.maxUsers != 0 && uint16(len(h.roster)) >= h.maxUsers {
		h.rosterMu.Unlock()
		return nil, ErrMaxConcurrentUsers
	}
	h.rosterMu.Unlock()

	id := h.ids.Next()
	info := UserInfo{Username: displayName, ID: id}

	messagesSub := h.messages.Subscribe()
	joinsSub := h.joins.Subscribe()

	h.joins.Send(info)

	h.rosterMu.Lock()
	h.roster[info.ID] = info
	h.rosterMu.Unlock()
	h.recorder.IncJoined()

	return &SessionHandle{
		hub:         h,
		info:        info,
		messagesSub: messagesSub,
		joinsSub:    joinsSub,
	}, nil
}

// SessionHandle is a session's narrow view of the hub: enough to publish
// messages and receive the message/join streams, plus the obligation to
// announce its own departure exactly once.
type SessionHandle struct {
	hub         *Hub
	info        UserInfo
	messagesSub *broadcast.Subscriber[Message]
	joinsSub    *broadcast.Subscriber[UserInfo]

	closeOnce sync.Once
}

// Info returns the session's roster identity.
func (s *SessionHandle) Info() UserInfo {
	return s.info
}

// Publish sends a message to the hub's message bus, to be fanned out to
// every subscriber including, eventually, this session's own reconciliation
// view of history.
func (s *SessionHandle) Publish(m Message) {
	s.hub.messages.Send(m)
}

// Messages returns the session's message subscription.
func (s *SessionHandle) Messages() *broadcast.Subscriber[Message] {
	return s.messagesSub
}

// Joins returns the session's join-event subscription.
func (s *SessionHandle) Joins() *broadcast.Subscriber[UserInfo] {
	return s.joinsSub
}

// Close announces this session's departure on the leaves bus and releases
// its subscriptions. Safe to call more than once; only the first call has
// effect.
func (s *SessionHandle) Close() {
	s.closeOnce.Do(func() {
		s.hub.messages.Unsubscribe(s.messagesSub)
		s.hub.joins.Unsubscribe(s.joinsSub)
		s.hub.leaves.Send(s.info)
	})
}
