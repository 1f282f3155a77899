// Package events defines the realtime protocol spoken over match websockets.
//
// Every message is one of a closed set of kinds. On the wire each is wrapped
// in an Envelope carrying the protocol version and the kind name.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the current envelope version.
const Version = 1

type Kind string

const (
	KindAnswerQuestion Kind = "answer-question"
	KindAnswerResult   Kind = "answer-result"
	KindMatchCreated   Kind = "match-created"
	KindScoreUpdate    Kind = "score-update"
	KindNextQuestion   Kind = "next-question"
	KindCorrectAnswer  Kind = "correct-answer"
	KindMatchEnded     Kind = "match-ended"
	KindError          Kind = "error"
)

var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrBadVersion     = errors.New("unsupported protocol version")
	ErrMalformedEvent = errors.New("malformed event")
)

// Event is implemented only by the types in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

// AnswerQuestion is sent by a player. RequestID is echoed back in the
// AnswerResult so the client can pair reply and request.
type AnswerQuestion struct {
	RequestID string `json:"request_id,omitempty"`
	MatchID   string `json:"match_id"`
	Answer    string `json:"answer"`
}

// AnswerResult is the direct reply to AnswerQuestion. Correct is nil when the
// submission was rejected (duplicate, no active round, not a participant).
type AnswerResult struct {
	RequestID string `json:"request_id,omitempty"`
	MatchID   string `json:"match_id"`
	Correct   *bool  `json:"correct"`
	Reason    string `json:"reason,omitempty"`
}

type MatchCreated struct {
	MatchID string `json:"match_id"`
}

type ScoreUpdate struct {
	MatchID string         `json:"match_id"`
	Score   map[string]int `json:"score"`
}

// NextQuestion activates a round. The prompt is fetched separately through the
// question lookup, which never exposes the answer.
type NextQuestion struct {
	MatchID    string `json:"match_id"`
	QuestionID string `json:"question_id"`
	Round      int    `json:"round"`
}

type CorrectAnswer struct {
	MatchID string `json:"match_id"`
	UserID  string `json:"user_id"`
}

// MatchEnded is terminal. Winner is nil for a draw.
type MatchEnded struct {
	MatchID string  `json:"match_id"`
	Winner  *string `json:"winner"`
	Reason  string  `json:"reason,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

func (AnswerQuestion) Kind() Kind { return KindAnswerQuestion }
func (AnswerResult) Kind() Kind   { return KindAnswerResult }
func (MatchCreated) Kind() Kind   { return KindMatchCreated }
func (ScoreUpdate) Kind() Kind    { return KindScoreUpdate }
func (NextQuestion) Kind() Kind   { return KindNextQuestion }
func (CorrectAnswer) Kind() Kind  { return KindCorrectAnswer }
func (MatchEnded) Kind() Kind     { return KindMatchEnded }
func (Error) Kind() Kind          { return KindError }

func (AnswerQuestion) isEvent() {}
func (AnswerResult) isEvent()   {}
func (MatchCreated) isEvent()   {}
func (ScoreUpdate) isEvent()    {}
func (NextQuestion) isEvent()   {}
func (CorrectAnswer) isEvent()  {}
func (MatchEnded) isEvent()     {}
func (Error) isEvent()          {}

// Envelope is the wire format.
type Envelope struct {
	Version int             `json:"v"`
	Type    Kind            `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps ev in an Envelope and marshals it.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return json.Marshal(Envelope{Version: Version, Type: ev.Kind(), Data: data})
}

// Decode parses an Envelope and returns the concrete event (as a value, not a
// pointer).
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, env.Version)
	}

	switch env.Type {
	case KindAnswerQuestion:
		return decodeAs[AnswerQuestion](env)
	case KindAnswerResult:
		return decodeAs[AnswerResult](env)
	case KindMatchCreated:
		return decodeAs[MatchCreated](env)
	case KindScoreUpdate:
		return decodeAs[ScoreUpdate](env)
	case KindNextQuestion:
		return decodeAs[NextQuestion](env)
	case KindCorrectAnswer:
		return decodeAs[CorrectAnswer](env)
	case KindMatchEnded:
		return decodeAs[MatchEnded](env)
	case KindError:
		return decodeAs[Error](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
}

func decodeAs[T Event](env Envelope) (Event, error) {
	var ev T
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s without data", ErrMalformedEvent, env.Type)
	}
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

// Broadcast is an instruction for the gateway: deliver Event to every
// connection in the match room except those belonging to ExcludeUser.
type Broadcast struct {
	MatchID     string
	Event       Event
	ExcludeUser string
}
