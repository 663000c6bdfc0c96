package service

import (
	"regexp"

	"matri_server/server/comm/domain"
)

// basicMessageLimit is the lifetime cap on messages a basic-plan sender may
// send to one receiver. It never resets; the counter is the persisted
// message count between the pair.
const basicMessageLimit = 5

// restrictedPatterns catch attempts to move contact off-platform: long
// digit runs resembling phone numbers, email-like tokens, URLs, bare
// domains, and @handle tokens.
var restrictedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{10,}\b`),
	regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w{2,}\b`),
	regexp.MustCompile(`https?://\S+`),
	regexp.MustCompile(`www\.\S+`),
	regexp.MustCompile(`@[a-zA-Z0-9_]+`),
}

func ContainsRestrictedContent(text string) bool {
	if text == "" {
		return false
	}
	for _, pat := range restrictedPatterns {
		if pat.MatchString(text) {
			return true
		}
	}
	return false
}

// EvaluatePolicy decides admission of a text send. Unrestricted plans pass
// unconditionally; the quota gate runs before the content gate.
func EvaluatePolicy(pc domain.PolicyContext, content string) error {
	if !pc.Plan.Restricted() {
		return nil
	}
	if pc.SentCount >= basicMessageLimit {
		return domain.ErrQuotaExceeded
	}
	if ContainsRestrictedContent(content) {
		return domain.ErrPolicyViolation
	}
	return nil
}
