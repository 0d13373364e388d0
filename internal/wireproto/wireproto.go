// Package wireproto encodes the three outbound binary frames (setup,
// user-join, message) the chat server sends over the WebSocket, and
// provides decoders used by tests to verify round-trip fidelity.
package wireproto

import (
	"encoding/binary"
	"errors"

	"bken/chatserver/internal/chat"
)

const (
	userIDSpecial uint16 = 0
	subIDSetup    uint8  = 0
	subIDUserJoin uint8  = 1
)

// ErrTruncated is returned by the decoders when a frame ends before the
// layout it claims to hold has been fully read.
var ErrTruncated = errors.New("wireproto: truncated frame")

// EncodeSetup builds the one-time Setup frame sent immediately after
// admission: the session's assigned id, its static identity key, the
// current roster, and the retained message history.
func EncodeSetup(key string, sessionID uint16, clients []chat.UserInfo, history []chat.Message) []byte {
	size := 2 + 1 + 2 + len(key) + 2
	for _, c := range clients {
		size += 2 + 1 + len(c.Username)
	}
	for _, m := range history {
		size += 4 + 1 + len(m.Sender) + 1 + len(m.Content)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, userIDSpecial)
	buf = append(buf, subIDSetup)
	buf = binary.BigEndian.AppendUint16(buf, sessionID)
	buf = append(buf, key...)

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(clients)))
	for _, c := range clients {
		buf = binary.BigEndian.AppendUint16(buf, c.ID)
		buf = append(buf, byte(len(c.Username)))
		buf = append(buf, c.Username...)
	}
	for _, m := range history {
		buf = binary.BigEndian.AppendUint32(buf, m.Timestamp)
		buf = append(buf, byte(len(m.Sender)))
		buf = append(buf, m.Sender...)
		buf = append(buf, byte(len(m.Content)))
		buf = append(buf, m.Content...)
	}
	return buf
}

// EncodeUserJoin builds the UserJoin frame announcing a new roster member.
func EncodeUserJoin(info chat.UserInfo) []byte {
	buf := make([]byte, 0, 2+1+2+len(info.Username))
	buf = binary.BigEndian.AppendUint16(buf, userIDSpecial)
	buf = append(buf, subIDUserJoin)
	buf = binary.BigEndian.AppendUint16(buf, info.ID)
	buf = append(buf, info.Username...)
	return buf
}

// EncodeMessage builds a chat Message frame.
func EncodeMessage(m chat.Message) []byte {
	buf := make([]byte, 0, 2+4+len(m.Content))
	buf = binary.BigEndian.AppendUint16(buf, m.SenderID)
	buf = binary.BigEndian.AppendUint32(buf, m.Timestamp)
	buf = append(buf, m.Content...)
	return buf
}

// DecodedSetup is the parsed form of a Setup frame, used by tests to check
// round-trip fidelity against EncodeSetup.
type DecodedSetup struct {
	SessionID uint16
	Key       string
	Clients   []chat.UserInfo
	History   []chat.Message
}

// DecodeSetup parses a Setup frame produced by EncodeSetup.
func DecodeSetup(data []byte) (DecodedSetup, error) {
	r := reader{data: data}
	special, err := r.u16()
	if err != nil {
		return DecodedSetup{}, err
	}
	if special != userIDSpecial {
		return DecodedSetup{}, ErrTruncated
	}
	sub, err := r.u8()
	if err != nil {
		return DecodedSetup{}, err
	}
	if sub != subIDSetup {
		return DecodedSetup{}, ErrTruncated
	}
	sessionID, err := r.u16()
	if err != nil {
		return DecodedSetup{}, err
	}
	key, err := r.bytes(33)
	if err != nil {
		return DecodedSetup{}, err
	}

	clientCount, err := r.u16()
	if err != nil {
		return DecodedSetup{}, err
	}
	clients := make([]chat.UserInfo, 0, clientCount)
	for i := uint16(0); i < clientCount; i++ {
		id, err := r.u16()
		if err != nil {
			return DecodedSetup{}, err
		}
		nameLen, err := r.u8()
		if err != nil {
			return DecodedSetup{}, err
		}
		name, err := r.bytes(int(nameLen))
		if err != nil {
			return DecodedSetup{}, err
		}
		clients = append(clients, chat.UserInfo{ID: id, Username: string(name)})
	}

	var history []chat.Message
	for !r.empty() {
		ts, err := r.u32()
		if err != nil {
			return DecodedSetup{}, err
		}
		senderLen, err := r.u8()
		if err != nil {
			return DecodedSetup{}, err
		}
		sender, err := r.bytes(int(senderLen))
		if err != nil {
			return DecodedSetup{}, err
		}
		contentLen, err := r.u8()
		if err != nil {
			return DecodedSetup{}, err
		}
		content, err := r.bytes(int(contentLen))
		if err != nil {
			return DecodedSetup{}, err
		}
		history = append(history, chat.Message{
			Sender:    string(sender),
			Content:   string(content),
			Timestamp: ts,
		})
	}

	return DecodedSetup{SessionID: sessionID, Key: string(key), Clients: clients, History: history}, nil
}

// DecodeMessage parses a Message frame produced by EncodeMessage.
func DecodeMessage(data []byte) (chat.Message, error) {
	r := reader{data: data}
	senderID, err := r.u16()
	if err != nil {
		return chat.Message{}, err
	}
	ts, err := r.u32()
	if err != nil {
		return chat.Message{}, err
	}
	rest := r.data[r.pos:]
	return chat.Message{SenderID: senderID, Timestamp: ts, Content: string(rest)}, nil
}

// reader is a minimal cursor over a byte slice used only by the decoders
// above, which exist for test verification rather than production traffic.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) empty() bool { return r.pos >= len(r.data) }

func (r *reader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, ErrTruncated
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, ErrTruncated
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}
