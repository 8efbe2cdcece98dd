package flow

import (
	"fmt"

	"github.com/hustleforge/hustleforge/internal/models"
)

// User-facing message copy. Budgets are in KES and examples lean Kenyan,
// matching the audience the bot serves.
const (
	msgOnboarding = "Welcome to HustleForge AI! I help you find side hustle ideas that fit your skills, location and budget. 😊"
	msgLearnMore  = "I ask four quick questions (skills, location, budget, goals), then generate 3 tailored side hustle ideas you can explore one by one. Ready when you are!"

	msgWelcome = "Welcome to HustleForge AI! Let's find you some awesome side hustle ideas. 😊\n\nFirst, tell me: What skills do you have? (e.g., cooking, phone repair, graphic design)"

	msgSkillsNotCommand = "Please enter your skills (e.g., cooking), not a command. Use /cancel to reset."
	msgAskSkills        = "What skills do you have? (e.g., cooking, phone repair, graphic design)"
	msgAskLocation      = "Great! Where are you located? (e.g., Nairobi, Mombasa)"
	msgAskBudget        = "What's your budget in KES? (e.g., 5000)"
	msgAskGoals         = "What are your goals? (e.g., earn 20,000/month)"

	msgIdeasIntro = "Here are your side hustle ideas:"
	msgPickIdea   = "Tap an idea to explore it in detail."
	msgWhatNext   = "What next?"

	msgAskPrompt    = "Sure! What question do you have about the ideas?"
	msgCustomPrompt = "Tell me about your own idea and I'll check how feasible it is."

	msgAlreadyExplored = "You've already explored that idea. Pick another one or ask a question."

	msgIdeasFailed  = "Sorry, I couldn't generate ideas right now. Please try again later with /start."
	msgDetailFailed = "Sorry, I couldn't break that idea down just now. Want me to try again?"
	msgAnswerFailed = "Sorry, I couldn't answer that just now. Want me to try again?"
	msgCustomFailed = "Sorry, I couldn't evaluate that idea right now. Please try again later with /start."

	msgClosing       = "Thanks for hustling with me today! Before you go, here are a few ways to keep the momentum."
	msgClosingUpsell = "Big goals need a real plan! 🚀 A full strategy session can map the fastest route to your income target. Here are a few ways to keep the momentum."

	msgPremium    = "For a full strategy with human guidance, pay KES 500 via M-Pesa and send the receipt to get started."
	msgTalkExpert = "Our hustle experts are available weekdays 9am-5pm EAT. Reply here and one will reach out to you."
	msgShare      = "Enjoying HustleForge? Share the bot with a friend who needs a side hustle! 🙌"
	msgGoodbye    = "All the best with your hustle! Come back anytime with /start. 👋"

	msgCancelled      = "Conversation cancelled."
	msgSomethingWrong = "Sorry, something went wrong. Please try again."
)

// msgInternalError is shown when an unexpected fault ends a conversation.
// The detail is a short description only; internals never leak further.
const msgInternalError = "Error: %s. Please try again or use /cancel."

// ideasPrompt asks for the initial batch of ideas with the heading markup
// convention the extractor depends on.
func ideasPrompt(sess *models.Session) string {
	return fmt.Sprintf(
		"Generate %d concise side hustle ideas for someone in %s with skills in %s, "+
			"a budget of %s KES, and goals of %s. Keep each idea under 100 words. "+
			"Start each idea with a numbered bold heading like **1. Idea Name**. "+
			"Use bold for emphasis only (no other heading levels) and separate ideas with a single blank line.",
		models.MaxIdeas, sess.Location, sess.Skills, sess.Budget, sess.Goals)
}

// ideaDetailPrompt asks for a feasibility and step breakdown of one idea.
func ideaDetailPrompt(sess *models.Session, heading string) string {
	return fmt.Sprintf(
		"Break down the side hustle idea %q for someone in %s with skills in %s, "+
			"a budget of %s KES, and goals of %s. Cover feasibility and the first concrete steps "+
			"in under 150 words. Use bold for emphasis only.",
		heading, sess.Location, sess.Skills, sess.Budget, sess.Goals)
}

// customIdeaPrompt asks for a feasibility evaluation of the user's own idea.
func customIdeaPrompt(sess *models.Session, idea string) string {
	return fmt.Sprintf(
		"Evaluate this side hustle idea: %q. The person is in %s with skills in %s, "+
			"a budget of %s KES, and goals of %s. Assess feasibility honestly and suggest "+
			"improvements in under 150 words. Use bold for emphasis only.",
		idea, sess.Location, sess.Skills, sess.Budget, sess.Goals)
}

// questionPrompt asks for an answer grounded in the collected attributes.
func questionPrompt(sess *models.Session, question string) string {
	return fmt.Sprintf(
		"Answer this question about side hustles: %q. Context: the person is in %s "+
			"with skills in %s, a budget of %s KES, and goals of %s. Keep it practical "+
			"and under 150 words. Use bold for emphasis only.",
		question, sess.Location, sess.Skills, sess.Budget, sess.Goals)
}
