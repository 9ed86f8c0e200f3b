// Package protocol defines the JSON envelope exchanged between the chat
// server and its clients over WebSocket text frames, one envelope per frame.
//
// The envelope is a closed tagged union: every frame carries a "type" field
// naming one of the recognized variants, and each variant has its own set of
// required fields. Decoding validates those requirements up front so the rest
// of the system never touches half-formed input.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Type tags an Envelope with its wire variant.
type Type string

// Client-to-server and server-to-client envelope types.
const (
	TypeLogin    Type = "login"
	TypeJoin     Type = "join"
	TypeLeave    Type = "leave"
	TypePublish  Type = "publish"
	TypeMessage  Type = "message"
	TypePresence Type = "presence"
	TypeHistory  Type = "history"
	TypeError    Type = "error"
)

// Presence event values.
const (
	EventJoined = "joined"
	EventLeft   = "left"
)

// Error codes carried by error envelopes.
const (
	CodeMalformed    = "malformed"
	CodeMissingField = "missing_field"
	CodeInvalidName  = "invalid_name"
	CodeNameTaken    = "name_taken"
	CodeDuplicate    = "duplicate_name"
	CodeNotMember    = "not_member"
	CodeNotLoggedIn  = "not_logged_in"
	CodeLoggedIn     = "already_logged_in"
	CodeViolation    = "protocol_violation"
	CodeIOFailure    = "io_failure"
)

// Record is the persisted and replayed message unit. The room is implied by
// the log (or envelope) the record travels in.
type Record struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Envelope is the single wire message shape. Which fields are meaningful
// depends on Type; Decode enforces the per-type required set.
type Envelope struct {
	Type      Type     `json:"type"`
	Name      string   `json:"name,omitempty"`
	Room      string   `json:"room,omitempty"`
	Body      string   `json:"body,omitempty"`
	Sender    string   `json:"sender,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Event     string   `json:"event,omitempty"`
	Members   []string `json:"members,omitempty"`
	Records   []Record `json:"records,omitempty"`
	Code      string   `json:"code,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

// DecodeKind classifies a DecodeError.
type DecodeKind string

// Decode failure classes.
const (
	KindMalformed    DecodeKind = "malformed"
	KindMissingField DecodeKind = "missing_field"
)

// DecodeError reports why a raw frame could not be decoded into a valid
// Envelope. Kind is KindMalformed for syntactically invalid JSON or an
// unrecognized type, KindMissingField when a recognized type lacks one of
// its required fields (named by Field).
type DecodeError struct {
	Kind   DecodeKind
	Field  string
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Kind == KindMissingField {
		return fmt.Sprintf("decode: missing field %q", e.Field)
	}
	return fmt.Sprintf("decode: malformed envelope: %s", e.Detail)
}

// Code maps the decode failure onto its wire error code.
func (e *DecodeError) Code() string {
	if e.Kind == KindMissingField {
		return CodeMissingField
	}
	return CodeMalformed
}

// Decode parses raw into an Envelope and validates the required fields for
// its declared type. The returned error, when non-nil, is a *DecodeError.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &DecodeError{Kind: KindMalformed, Detail: err.Error()}
	}
	switch env.Type {
	case TypeLogin:
		if env.Name == "" {
			return Envelope{}, missing("name")
		}
	case TypeJoin, TypeLeave:
		if env.Room == "" {
			return Envelope{}, missing("room")
		}
	case TypePublish:
		if env.Room == "" {
			return Envelope{}, missing("room")
		}
		if env.Body == "" {
			return Envelope{}, missing("body")
		}
	case TypeMessage:
		if env.Room == "" {
			return Envelope{}, missing("room")
		}
		if env.Sender == "" {
			return Envelope{}, missing("sender")
		}
		if env.Body == "" {
			return Envelope{}, missing("body")
		}
	case TypePresence:
		if env.Event == "" {
			return Envelope{}, missing("event")
		}
		if env.Name == "" {
			return Envelope{}, missing("name")
		}
	case TypeHistory:
		if env.Room == "" {
			return Envelope{}, missing("room")
		}
	case TypeError:
		if env.Code == "" {
			return Envelope{}, missing("code")
		}
	default:
		return Envelope{}, &DecodeError{
			Kind:   KindMalformed,
			Detail: fmt.Sprintf("unknown type %q", string(env.Type)),
		}
	}
	return env, nil
}

// Encode renders the envelope as a single JSON frame.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func missing(field string) *DecodeError {
	return &DecodeError{Kind: KindMissingField, Field: field}
}

// Login builds a client login request.
func Login(name string) Envelope {
	return Envelope{Type: TypeLogin, Name: name}
}

// Join builds a client join request.
func Join(room string) Envelope {
	return Envelope{Type: TypeJoin, Room: room}
}

// Leave builds a client leave request.
func Leave(room string) Envelope {
	return Envelope{Type: TypeLeave, Room: room}
}

// Publish builds a client publish request.
func Publish(room, body string) Envelope {
	return Envelope{Type: TypePublish, Room: room, Body: body}
}

// Message builds the server fan-out envelope for one published record.
func Message(room string, rec Record) Envelope {
	return Envelope{
		Type:      TypeMessage,
		Room:      room,
		Sender:    rec.Sender,
		Body:      rec.Body,
		Timestamp: rec.Timestamp,
	}
}

// Presence builds a join/leave notification. An empty room is the login ack
// addressed to the freshly authenticated session itself.
func Presence(room, event, name string) Envelope {
	return Envelope{Type: TypePresence, Room: room, Event: event, Name: name}
}

// History builds the replay envelope sent to a joining session.
func History(room string, members []string, records []Record) Envelope {
	return Envelope{Type: TypeHistory, Room: room, Members: members, Records: records}
}

// Error builds a soft protocol error envelope.
func Error(code, detail string) Envelope {
	return Envelope{Type: TypeError, Code: code, Detail: detail}
}

var validate = validator.New()

type loginName struct {
	Name string `validate:"required,max=32"`
}

// ValidateName checks a display name against the login rules: non-empty
// after trimming surrounding whitespace, at most 32 runes, no control
// characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("display name is blank")
	}
	if err := validate.Struct(loginName{Name: name}); err != nil {
		return fmt.Errorf("display name must be 1-32 characters: %w", err)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("display name contains control character %q", r)
		}
	}
	return nil
}
