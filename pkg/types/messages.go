// Package types defines the closed set of wire messages exchanged between
// quiz clients and the server. Framing and delivery are the transport's
// concern; every variant here is one whole JSON object per frame.
package types

// Client -> Server message types.
const (
	TypeJoin        = "join"
	TypeAnswer      = "answer"
	TypeStart       = "start"
	TypeLeaderboard = "leaderboard"
)

// Server -> Client message types.
const (
	TypeJoined          = "joined"
	TypeQuestion        = "question"
	TypeAnswerAck       = "answer_ack"
	TypeResolved        = "resolved"
	TypeSessionEnded    = "session_ended"
	TypeLeaderboardView = "leaderboard"
	TypeError           = "error"
)

// ClientMessage is the single inbound envelope. Which fields are meaningful
// depends on Type; unknown types are a protocol error.
type ClientMessage struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`        // join
	QuestionID  int    `json:"question_id,omitempty"` // answer
	OptionIndex int    `json:"option_index"`          // answer; zero is a valid option
}

// ServerMessage is implemented by every outbound variant. It exists so the
// session can fan out mixed message kinds through one outbox channel.
type ServerMessage interface{ isServerMessage() }

// Standing is one leaderboard row. Rows are ordered by score descending,
// ties broken by name.
type Standing struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Joined acknowledges a join attempt. On failure OK is false and Error
// carries a machine-readable code; the connection stays open for a retry.
type Joined struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Question announces the current question to every live player.
type Question struct {
	Type            string   `json:"type"`
	QuestionID      int      `json:"question_id"`
	Text            string   `json:"text"`
	Options         []string `json:"options"`
	DurationSeconds int      `json:"duration_seconds"`
}

// AnswerAck is the targeted reply to an accepted answer.
type AnswerAck struct {
	Type          string `json:"type"`
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"points_awarded"`
	FirstCorrect  bool   `json:"first_correct"`
}

// Resolved reveals the correct option and the updated leaderboard once a
// question closes.
type Resolved struct {
	Type         string     `json:"type"`
	QuestionID   int        `json:"question_id"`
	CorrectIndex int        `json:"correct_index"`
	Leaderboard  []Standing `json:"leaderboard"`
}

// SessionEnded carries the final leaderboard.
type SessionEnded struct {
	Type        string     `json:"type"`
	Leaderboard []Standing `json:"leaderboard"`
}

// Leaderboard is the targeted reply to an on-demand leaderboard request.
type Leaderboard struct {
	Type        string     `json:"type"`
	Leaderboard []Standing `json:"leaderboard"`
}

// Error reports a rejected action to its sender.
type Error struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

func (Joined) isServerMessage()       {}
func (Question) isServerMessage()     {}
func (AnswerAck) isServerMessage()    {}
func (Resolved) isServerMessage()     {}
func (SessionEnded) isServerMessage() {}
func (Leaderboard) isServerMessage()  {}
func (Error) isServerMessage()        {}
