package chat

import "strings"

// Fallback copy for degraded turns. Each template keeps the conversation
// moving toward the donation step instead of dead-ending.
const (
	rateLimitFallback = "I'm receiving a lot of questions right now and need a short breather. " +
		"Please wait about 30 seconds and ask again, or if you're ready, you can go straight to supporting the relief effort."

	busyServiceFallback = "The assistant service is experiencing high demand at the moment. " +
		"Please wait about 30 seconds and try again, or I can tell you more about the organizations responding on the ground."

	connectivityFallback = "I'm having trouble connecting to the assistant service. " +
		"In the meantime you can learn about the matched organizations or continue straight to a donation. Helping doesn't have to wait."

	genericFallback = "Something went wrong on my end. It looks like a temporary issue. " +
		"Please try asking again, and know that you can still continue to the donation step at any time."

	outageFallback = "I'm sorry, I can't reach the assistant service right now. " +
		"The organizations below are still ready to receive support if you'd like to continue."
)

var (
	greetingQuickReplies = []string{"What happened?", "How bad is it?", "Who needs help?", "How can I help?"}
	failureQuickReplies  = []string{"What happened?", "How bad is it?", "How can I help?"}
	outageQuickReplies   = []string{"Tell me about the organizations", "I'm ready to donate"}
)

// FallbackMessage maps a backend error string to exactly one of four fixed
// fallback templates. Matching is case-insensitive substring testing in
// priority order, first match wins; unmatched input gets the generic
// template, so every input maps to a non-empty message.
func FallbackMessage(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "too many requests"):
		return rateLimitFallback
	case strings.Contains(lower, "temporarily unavailable"),
		strings.Contains(lower, "high demand"):
		return busyServiceFallback
	case strings.Contains(lower, "connect"):
		return connectivityFallback
	default:
		return genericFallback
	}
}
