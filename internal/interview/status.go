package interview

import (
	"strings"

	"github.com/spigell/tener-recruiter/internal/funnel"
)

// Remote session statuses that need no further polling.
var finalStatuses = map[string]bool{"scored": true, "failed": true, "expired": true, "canceled": true, "cancelled": true}

// MatchStatus maps a remote session status onto the match status it implies.
func MatchStatus(remote string) (funnel.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "created", "invited":
		return funnel.StatusInterviewInvited, true
	case "in_progress":
		return funnel.StatusInterviewInProgress, true
	case "completed":
		return funnel.StatusInterviewCompleted, true
	case "scored":
		return funnel.StatusInterviewScored, true
	case "failed", "expired", "canceled", "cancelled":
		return funnel.StatusInterviewFailed, true
	}
	return "", false
}

// IsFinal reports whether the remote session will not change anymore.
func IsFinal(remote string) bool {
	return finalStatuses[strings.ToLower(strings.TrimSpace(remote))]
}
