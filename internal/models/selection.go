package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectionKind enumerates the closed set of menu actions the flow engine
// dispatches on. Adding a menu action means adding a kind here and a case in
// the engine's switch, not another string comparison chain.
type SelectionKind int

const (
	SelectionUnknown SelectionKind = iota
	SelectionStartNew
	SelectionLearnMore
	SelectionAskQuestion
	SelectionCustomIdea
	SelectionEndConversation
	SelectionPremiumStrategy
	SelectionTalkExpert
	SelectionFinalEnd
	SelectionShareFriends
	SelectionExploreIdea
	SelectionRetryExplore
	SelectionRetryQuestion
)

// Selection is a parsed menu selection token. Idea is the 1-based idea number
// and is only set for SelectionExploreIdea and SelectionRetryExplore.
type Selection struct {
	Kind SelectionKind
	Idea int
}

// Raw selection tokens carried in button callback data.
const (
	TokenStartNew        = "start_new"
	TokenLearnMore       = "learn_more"
	TokenAskQuestion     = "ask_question"
	TokenCustomIdea      = "custom_idea"
	TokenEndConversation = "end_conversation"
	TokenPremiumStrategy = "premium_strategy"
	TokenTalkExpert      = "talk_expert"
	TokenFinalEnd        = "final_end"
	TokenShareFriends    = "share_friends"
	TokenRetryQuestion   = "retry_question"

	exploreIdeaPrefix  = "explore_idea_"
	retryExplorePrefix = "retry_explore_"
)

// ExploreIdeaToken builds the callback token for exploring idea n.
func ExploreIdeaToken(n int) string {
	return fmt.Sprintf("%s%d", exploreIdeaPrefix, n)
}

// RetryExploreToken builds the callback token for retrying idea n after a
// failed detail generation.
func RetryExploreToken(n int) string {
	return fmt.Sprintf("%s%d", retryExplorePrefix, n)
}

// ParseSelection maps a raw callback token to a Selection. Unrecognized
// tokens parse to SelectionUnknown rather than an error so the engine can
// answer them with a generic notice.
func ParseSelection(token string) Selection {
	switch token {
	case TokenStartNew:
		return Selection{Kind: SelectionStartNew}
	case TokenLearnMore:
		return Selection{Kind: SelectionLearnMore}
	case TokenAskQuestion:
		return Selection{Kind: SelectionAskQuestion}
	case TokenCustomIdea:
		return Selection{Kind: SelectionCustomIdea}
	case TokenEndConversation:
		return Selection{Kind: SelectionEndConversation}
	case TokenPremiumStrategy:
		return Selection{Kind: SelectionPremiumStrategy}
	case TokenTalkExpert:
		return Selection{Kind: SelectionTalkExpert}
	case TokenFinalEnd:
		return Selection{Kind: SelectionFinalEnd}
	case TokenShareFriends:
		return Selection{Kind: SelectionShareFriends}
	case TokenRetryQuestion:
		return Selection{Kind: SelectionRetryQuestion}
	}
	if n, ok := numberSuffix(token, exploreIdeaPrefix); ok {
		return Selection{Kind: SelectionExploreIdea, Idea: n}
	}
	if n, ok := numberSuffix(token, retryExplorePrefix); ok {
		return Selection{Kind: SelectionRetryExplore, Idea: n}
	}
	return Selection{Kind: SelectionUnknown}
}

func numberSuffix(token, prefix string) (int, bool) {
	if !strings.HasPrefix(token, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(token, prefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
