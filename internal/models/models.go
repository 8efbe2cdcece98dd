// Package models defines the data structures shared across HustleForge components.
package models

import "time"

// State identifies the current step of a conversation.
type State string

// Conversation states, in happy-path order. A user with no stored session is
// in an implicit pre-initial state and only the start command creates one.
const (
	StateCollectSkills   State = "COLLECT_SKILLS"
	StateCollectLocation State = "COLLECT_LOCATION"
	StateCollectBudget   State = "COLLECT_BUDGET"
	StateCollectGoals    State = "COLLECT_GOALS"
	StateSelectIdea      State = "SELECT_IDEA"
	StateAskQuestion     State = "ASK_QUESTION"
	StateCustomIdea      State = "EXPLORE_CUSTOM_IDEA"
)

// MaxIdeas is the number of ideas requested from the generative service per run.
const MaxIdeas = 3

// Session is the per-user record of conversation progress. The flow engine is
// the only writer; a session exists only between the start command and the
// final end (or cancel/abort) of a conversation.
type Session struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
	State  State  `json:"state"`

	// Collected attributes, write-once per conversation cycle.
	Skills   string `json:"skills,omitempty"`
	Location string `json:"location,omitempty"`
	Budget   string `json:"budget,omitempty"`
	Goals    string `json:"goals,omitempty"`

	// Generation artifacts, populated after the goals step succeeds.
	GeneratedIdeas string       `json:"generated_ideas,omitempty"`
	IdeaHeadings   []string     `json:"idea_headings,omitempty"`
	Explored       map[int]bool `json:"explored,omitempty"`

	// LastQuestion holds the most recent free-form question so a failed
	// answer can be retried from a menu button.
	LastQuestion string `json:"last_question,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a fresh session at the first collection step.
func NewSession(userID, chatID string) *Session {
	now := time.Now()
	return &Session{
		UserID:    userID,
		ChatID:    chatID,
		State:     StateCollectSkills,
		Explored:  make(map[int]bool),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RemainingIdeas returns the 1-based numbers of extracted ideas the user has
// not explored yet, in order.
func (s *Session) RemainingIdeas() []int {
	var remaining []int
	for i := 1; i <= len(s.IdeaHeadings); i++ {
		if !s.Explored[i] {
			remaining = append(remaining, i)
		}
	}
	return remaining
}

// AllExplored reports whether every extracted idea has been explored. False
// while no ideas have been generated.
func (s *Session) AllExplored() bool {
	return len(s.IdeaHeadings) > 0 && len(s.RemainingIdeas()) == 0
}

// EventKind distinguishes the inbound event types a transport delivers.
type EventKind string

const (
	EventText    EventKind = "text"
	EventCommand EventKind = "command"
	EventMenu    EventKind = "menu"
)

// Command is a distinguished transport command.
type Command string

const (
	CommandStart  Command = "start"
	CommandCancel Command = "cancel"
)

// Event is one inbound transport event. Exactly one of Text, Command or
// Selection is meaningful depending on Kind.
type Event struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text,omitempty"`
	Command   Command   `json:"command,omitempty"`
	Selection string    `json:"selection,omitempty"`
	Time      int64     `json:"time,omitempty"`
}

// Button is one selectable option in an inline menu. Selection is the opaque
// token the transport echoes back when the button is pressed.
type Button struct {
	Label     string `json:"label"`
	Selection string `json:"selection"`
}

// Menu is an ordered set of buttons attached to an outbound message. Each
// inner slice renders as one row.
type Menu struct {
	Rows [][]Button `json:"rows"`
}

// AddRow appends one row of buttons to the menu.
func (m *Menu) AddRow(buttons ...Button) {
	m.Rows = append(m.Rows, buttons)
}
