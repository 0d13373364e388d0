// Package session implements the per-connection lifecycle: handshake and
// name claim, admission into the chat hub, setup frame delivery, and the
// running loop that forwards inbound text and outbound hub events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"bken/chatserver/internal/chat"
	"bken/chatserver/internal/identity"
	"bken/chatserver/internal/msgfilter"
	"bken/chatserver/internal/ratelimit"
	"bken/chatserver/internal/usernames"
	"bken/chatserver/internal/wireproto"
)

// Conn is the subset of *websocket.Conn the session needs, so tests can
// exercise Run against a fake transport.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const (
	closeError       = websocket.CloseInternalServerErr
	closeAgain       = websocket.CloseTryAgainLater
	closeUnsupported = websocket.CloseUnsupportedData
)

// Deps bundles the shared collaborators a session needs: the username
// manager and the chat hub are long-lived, shared across every session.
type Deps struct {
	Usernames *usernames.Manager
	Hub       *chat.Hub
	MaxMsgLen int
	RateLimit ratelimit.Config
	Wordlist  msgfilter.Wordlist
}

// Params are the query-parameter values read at upgrade time.
type Params struct {
	Username string
	Key      string
}

// Run drives one session from handshake through teardown. It always
// returns after the connection is done with; the returned error is for the
// caller's logs only; a session never propagates errors past its own
// boundary.
func Run(ctx context.Context, conn Conn, deps Deps, params Params) error {
	userID, err := resolveIdentity(params.Key)
	if err != nil {
		closeWithReason(conn, closeError, "Invalid static user id.")
		return nil
	}

	claimed, err := deps.Usernames.Claim(params.Username, userID)
	if err != nil {
		switch {
		case errors.Is(err, usernames.ErrInvalid):
			closeWithReason(conn, closeError, "Username invalid")
		case errors.Is(err, usernames.ErrTaken):
			closeWithReason(conn, closeError, "Username taken")
		default:
			closeWithReason(conn, closeError, "Username invalid")
		}
		return nil
	}

	handle, err := deps.Hub.NewClient(claimed.String())
	if err != nil {
		closeWithReason(conn, closeAgain, "Chat full")
		return nil
	}
	defer handle.Close()

	mySessionID := handle.Info().ID

	roster := deps.Hub.RosterSnapshot()
	clients := roster[:0:0]
	for _, u := range roster {
		if u.ID != mySessionID {
			clients = append(clients, u)
		}
	}
	history := deps.Hub.HistorySnapshot()

	setup := wireproto.EncodeSetup(userID.Format(), mySessionID, clients, history)
	if err := conn.WriteMessage(websocket.BinaryMessage, setup); err != nil {
		slog.Debug("session setup write failed", "session_id", mySessionID, "err", err)
		return nil
	}

	runLoop(ctx, conn, handle, deps)
	return nil
}

func resolveIdentity(key string) (identity.UserId, error) {
	if key == "" {
		return identity.New(), nil
	}
	return identity.Parse(key)
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func runLoop(ctx context.Context, conn Conn, handle *chat.SessionHandle, deps Deps) {
	mySessionID := handle.Info().ID
	myDisplayName := handle.Info().Username

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inboundCh := make(chan inboundFrame, 1)
	go pumpInbound(conn, inboundCh)

	type msgArrival struct {
		m   chat.Message
		lag int
		ok  bool
	}
	msgCh := make(chan msgArrival, 1)
	go func() {
		defer close(msgCh)
		for {
			m, lag, ok, err := handle.Messages().Recv(ctx)
			if err != nil || !ok {
				return
			}
			select {
			case msgCh <- msgArrival{m: m, lag: lag, ok: true}:
			case <-ctx.Done():
				return
			}
		}
	}()

	type joinArrival struct {
		info chat.UserInfo
		lag  int
	}
	joinCh := make(chan joinArrival, 1)
	go func() {
		defer close(joinCh)
		for {
			info, lag, ok, err := handle.Joins().Recv(ctx)
			if err != nil || !ok {
				return
			}
			select {
			case joinCh <- joinArrival{info: info, lag: lag}:
			case <-ctx.Done():
				return
			}
		}
	}()

	rl := ratelimit.New(deps.RateLimit)
	spam := ratelimit.NewSpamLimiter[string]()
	blocked := false

	for {
		select {
		case <-ctx.Done():
			return

		case in, ok := <-inboundCh:
			if !ok {
				return
			}
			if in.err != nil {
				return
			}
			switch in.messageType {
			case websocket.CloseMessage:
				return
			case websocket.TextMessage:
				if !handleInbound(conn, handle, deps, in.data, mySessionID, myDisplayName, rl, spam, &blocked) {
					return
				}
			default:
				closeWithReason(conn, closeUnsupported, "No non-text messages.")
				return
			}

		case arr, ok := <-msgCh:
			if !ok {
				return
			}
			if arr.lag > 0 {
				slog.Error("session message receiver lagged", "session_id", mySessionID, "dropped", arr.lag)
			}
			if arr.m.SenderID == mySessionID {
				continue
			}
			frame := wireproto.EncodeMessage(arr.m)
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case arr, ok := <-joinCh:
			if !ok {
				return
			}
			if arr.lag > 0 {
				slog.Error("session join receiver lagged", "session_id", mySessionID, "dropped", arr.lag)
			}
			if arr.info.ID == mySessionID {
				continue
			}
			frame := wireproto.EncodeUserJoin(arr.info)
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}

func pumpInbound(conn Conn, out chan<- inboundFrame) {
	defer close(out)
	for {
		mt, data, err := conn.ReadMessage()
		out <- inboundFrame{messageType: mt, data: data, err: err}
		if err != nil {
			return
		}
	}
}

// handleInbound processes one inbound text frame. It returns false when the
// session should end.
func handleInbound(conn Conn, handle *chat.SessionHandle, deps Deps, payload []byte, mySessionID uint16, myDisplayName string, rl *ratelimit.RateLimiter, spam *ratelimit.SpamLimiter[string], blocked *bool) bool {
	content := strings.ToValidUTF8(string(payload), "�")

	if !rl.Allow() {
		slog.Info("session kicked", "session_id", mySessionID, "reason", "rate limit")
		closeWithReason(conn, closeError, "Too many messages.")
		return false
	}
	if !spam.Update(content) {
		slog.Info("session kicked", "session_id", mySessionID, "reason", "spam")
		closeWithReason(conn, closeError, "Please do not spam.")
		return false
	}

	result := msgfilter.Filter(content, deps.MaxMsgLen, deps.Wordlist)
	switch result.Kind {
	case msgfilter.KindInvalid:
		return true
	case msgfilter.KindCommand:
		switch result.Cmd {
		case msgfilter.BlockMe:
			*blocked = true
		case msgfilter.KillMe:
			return false
		}
		return true
	case msgfilter.KindMessage:
		msg := chat.Message{
			Sender:    myDisplayName,
			SenderID:  mySessionID,
			Content:   result.Content,
			Timestamp: uint32(time.Now().Unix() / 60),
		}
		frame := wireproto.EncodeMessage(msg)
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return false
		}
		if !*blocked {
			handle.Publish(msg)
		}
		return true
	default:
		return true
	}
}

func closeWithReason(conn Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
