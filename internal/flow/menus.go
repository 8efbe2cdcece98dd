package flow

import (
	"fmt"

	"github.com/hustleforge/hustleforge/internal/models"
)

// maxButtonLabel bounds button labels; Telegram truncates around this size
// and the Twilio text rendering stays readable.
const maxButtonLabel = 64

func truncateLabel(label string) string {
	if len(label) <= maxButtonLabel {
		return label
	}
	return label[:maxButtonLabel-1] + "…"
}

// onboardingMenu greets users without an active conversation.
func onboardingMenu() *models.Menu {
	m := &models.Menu{}
	m.AddRow(models.Button{Label: "Get Started", Selection: models.TokenStartNew})
	m.AddRow(models.Button{Label: "Learn More", Selection: models.TokenLearnMore})
	return m
}

// ideaMenu offers one button per generated idea heading.
func ideaMenu(sess *models.Session) *models.Menu {
	m := &models.Menu{}
	for i, heading := range sess.IdeaHeadings {
		m.AddRow(models.Button{
			Label:     truncateLabel(heading),
			Selection: models.ExploreIdeaToken(i + 1),
		})
	}
	return m
}

// continuationMenu is shown after each detail, answer or evaluation. It
// offers the unexplored ideas, the question loop, and once everything has
// been explored, the custom idea path.
func continuationMenu(sess *models.Session) *models.Menu {
	m := &models.Menu{}
	for _, n := range sess.RemainingIdeas() {
		m.AddRow(models.Button{
			Label:     truncateLabel(fmt.Sprintf("Explore: %s", sess.IdeaHeadings[n-1])),
			Selection: models.ExploreIdeaToken(n),
		})
	}
	m.AddRow(models.Button{Label: "Ask a Question", Selection: models.TokenAskQuestion})
	if sess.AllExplored() {
		m.AddRow(models.Button{Label: "Try Your Own Idea", Selection: models.TokenCustomIdea})
	}
	m.AddRow(models.Button{Label: "End Conversation", Selection: models.TokenEndConversation})
	return m
}

// closingMenu carries the monetization options shown when a user ends the
// conversation.
func closingMenu() *models.Menu {
	m := &models.Menu{}
	m.AddRow(models.Button{Label: "Get Full Strategy (KES 500)", Selection: models.TokenPremiumStrategy})
	m.AddRow(models.Button{Label: "Talk to an Expert", Selection: models.TokenTalkExpert})
	m.AddRow(models.Button{Label: "Share with Friends", Selection: models.TokenShareFriends})
	m.AddRow(models.Button{Label: "End for Now", Selection: models.TokenFinalEnd})
	return m
}

func retryExploreMenu(idea int) *models.Menu {
	m := &models.Menu{}
	m.AddRow(models.Button{Label: "Try Again", Selection: models.RetryExploreToken(idea)})
	return m
}

func retryQuestionMenu() *models.Menu {
	m := &models.Menu{}
	m.AddRow(models.Button{Label: "Try Again", Selection: models.TokenRetryQuestion})
	return m
}
