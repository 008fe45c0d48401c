// Package protocol defines the JSON wire messages exchanged between the
// coordinator and its playback clients. Every frame is one Envelope; the
// payload shape is fixed per tag.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

// Server to client.
const (
	TypeServerRequestsPlay  Type = "ServerRequestsPlay"
	TypeServerRequestsPause Type = "ServerRequestsPause"
	TypeServerRequestSeek   Type = "ServerRequestSeek"
	TypeServerReady         Type = "ServerReady"
	TypeServerStatus        Type = "ServerStatus"
	TypeFileReady           Type = "FileReady"
	TypeFileClosed          Type = "FileClosed"
)

// Client to server.
const (
	TypeClientRequestsPlay  Type = "ClientRequestsPlay"
	TypeClientRequestsPause Type = "ClientRequestsPause"
	TypeClientRequestSeek   Type = "ClientRequestSeek"
	TypePauseResync         Type = "PauseResync"
	TypeGetStatus           Type = "GetStatus"
	TypeFileParsed          Type = "FileParsed"
	TypeClientStatus        Type = "ClientStatus"
)

// SentinelPosition in a client-originated position field means "substitute
// the server's current position" rather than a literal target.
const SentinelPosition int64 = -1

// Envelope is the frame put on the wire. ID is set on correlated requests;
// the matching reply carries ReplyTo equal to that ID and is routed to the
// waiting caller instead of the dispatcher.
type Envelope struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PositionPayload carries a playback position in milliseconds. Used by the
// play/pause requests in both directions.
type PositionPayload struct {
	Position int64 `json:"position"`
}

// SeekPayload carries an absolute seek target in milliseconds.
type SeekPayload struct {
	Target int64 `json:"target"`
}

// FileReadyPayload announces a newly loaded file and the synchronization
// tolerance clients should aim for.
type FileReadyPayload struct {
	ToleranceMs int64 `json:"toleranceMs"`
}

// StatusPayload is the server's answer to GetStatus.
type StatusPayload struct {
	Playing  bool  `json:"isPlaying"`
	Position int64 `json:"position"`
}

// ClientStatusPayload is a client's own view of playback, with the unix
// millisecond timestamp at which the position was measured.
type ClientStatusPayload struct {
	Playing   bool  `json:"isPlaying"`
	Position  int64 `json:"position"`
	Timestamp int64 `json:"timestamp"`
}

// New builds an envelope for the given tag. A nil payload produces an
// envelope without data (ServerReady, FileClosed, GetStatus, ...).
func New(t Type, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env.Data = data
	return env, nil
}

// Reply builds a reply envelope correlated to the given request.
func Reply(req Envelope, t Type, payload any) (Envelope, error) {
	env, err := New(t, payload)
	if err != nil {
		return Envelope{}, err
	}
	env.ReplyTo = req.ID
	return env, nil
}

// Decode unmarshals the envelope payload into v. Unknown fields and a
// missing payload are both decode failures, so a malformed frame is
// rejected instead of silently zero-filled.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.New("missing payload")
	}
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Marshal serializes the envelope to a wire frame.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a wire frame into an envelope. The tag is validated for
// presence only; routing decides whether it is recognized.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, errors.New("frame has no type tag")
	}
	return env, nil
}
