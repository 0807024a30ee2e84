// Package funnel defines the business state machine of a candidate/job match.
//
// Status graph:
//
//	added ──► verified | needs_resume | rejected
//	  ──► outreach_pending_connection ──► outreach_sent
//	  ──► in_dialogue ──► resume_received
//	  ──► interview_invited ──► interview_in_progress ──► interview_completed ──► interview_scored
//	                       └──────────────► interview_failed ──► interview_invited
//
// not_interested and unreachable may be entered from any open state, stalled
// from any post-outreach state. All three are absorbing.
package funnel

import "fmt"

type Status string

const (
	StatusAdded                     Status = "added"
	StatusVerified                  Status = "verified"
	StatusNeedsResume               Status = "needs_resume"
	StatusRejected                  Status = "rejected"
	StatusOutreachPendingConnection Status = "outreach_pending_connection"
	StatusOutreachSent              Status = "outreach_sent"
	StatusInDialogue                Status = "in_dialogue"
	StatusResumeReceived            Status = "resume_received"
	StatusInterviewInvited          Status = "interview_invited"
	StatusInterviewInProgress       Status = "interview_in_progress"
	StatusInterviewCompleted        Status = "interview_completed"
	StatusInterviewScored           Status = "interview_scored"
	StatusInterviewFailed           Status = "interview_failed"
	StatusNotInterested             Status = "not_interested"
	StatusUnreachable               Status = "unreachable"
	StatusStalled                   Status = "stalled"
)

// rank orders the forward path. Statuses sharing a rank are alternatives of
// the same stage.
var rank = map[Status]int{
	StatusAdded:                     0,
	StatusVerified:                  0,
	StatusNeedsResume:               0,
	StatusRejected:                  0,
	StatusOutreachPendingConnection: 1,
	StatusOutreachSent:              2,
	StatusInDialogue:                3,
	StatusResumeReceived:            4,
	StatusInterviewInvited:          5,
	StatusInterviewInProgress:       6,
	StatusInterviewCompleted:        7,
	StatusInterviewScored:           8,
	StatusInterviewFailed:           8,
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := rank[st]; ok || IsTerminal(st) {
		return st, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// IsTerminal reports whether the status is absorbing.
func IsTerminal(s Status) bool {
	switch s {
	case StatusNotInterested, StatusUnreachable, StatusStalled:
		return true
	}
	return false
}

// IsVerdict reports whether the status is a verification verdict.
func IsVerdict(s Status) bool {
	return s == StatusVerified || s == StatusNeedsResume || s == StatusRejected
}

// IsInterview reports whether the status is owned by interview sync.
func IsInterview(s Status) bool {
	switch s {
	case StatusInterviewInvited, StatusInterviewInProgress, StatusInterviewCompleted,
		StatusInterviewScored, StatusInterviewFailed:
		return true
	}
	return false
}

// IsOutreached reports whether a delivery attempt has already been recorded.
func IsOutreached(s Status) bool {
	r, ok := rank[s]
	return ok && r >= rank[StatusOutreachPendingConnection]
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	if from == to || IsTerminal(from) {
		return false
	}

	switch to {
	case StatusNotInterested, StatusUnreachable:
		_, ok := rank[from]
		return ok
	case StatusStalled:
		return IsOutreached(from) && !IsInterview(from)
	case StatusAdded:
		return false
	}

	toRank, ok := rank[to]
	if !ok {
		return false
	}
	fromRank, ok := rank[from]
	if !ok {
		return false
	}

	// re-verification keeps the candidate in the verdict stage
	if IsVerdict(to) {
		return fromRank == 0
	}

	// a failed or expired interview can be re-issued
	if from == StatusInterviewFailed && to == StatusInterviewInvited {
		return true
	}

	return toRank > fromRank
}

// Projection is the coarse candidate status shown to operators.
type Projection struct {
	Key   string
	Label string
}

var projections = map[Status]Projection{
	StatusAdded:                     {Key: "added", Label: "Added"},
	StatusVerified:                  {Key: "added", Label: "Added"},
	StatusNeedsResume:               {Key: "added", Label: "Added"},
	StatusRejected:                  {Key: "added", Label: "Added"},
	StatusOutreachPendingConnection: {Key: "outreached", Label: "Outreached"},
	StatusOutreachSent:              {Key: "outreached", Label: "Outreached"},
	StatusInDialogue:                {Key: "in_dialogue", Label: "In Dialogue"},
	StatusResumeReceived:            {Key: "cv_received", Label: "CV Received"},
	StatusInterviewInvited:          {Key: "interview_invited", Label: "Interview Invited"},
	StatusInterviewInProgress:       {Key: "interview_in_progress", Label: "Interview In Progress"},
	StatusInterviewCompleted:        {Key: "interview_completed", Label: "Interview Completed"},
	StatusInterviewScored:           {Key: "interview_scored", Label: "Interview Scored"},
	StatusInterviewFailed:           {Key: "interview_failed", Label: "Interview Failed"},
	StatusNotInterested:             {Key: "not_interested", Label: "Not Interested"},
	StatusUnreachable:               {Key: "unreachable", Label: "Unreachable"},
	StatusStalled:                   {Key: "stalled", Label: "Stalled"},
}

// Project maps a persisted status to its current-status projection.
func Project(s Status) Projection {
	if p, ok := projections[s]; ok {
		return p
	}
	return Projection{Key: "added", Label: "Added"}
}

// ProjectionRank orders projection keys along added→outreached→in_dialogue→cv_received
// and the interview stages. Terminal keys return -1.
func ProjectionRank(key string) int {
	switch key {
	case "added":
		return 0
	case "outreached":
		return 1
	case "in_dialogue":
		return 2
	case "cv_received":
		return 3
	case "interview_invited":
		return 4
	case "interview_in_progress":
		return 5
	case "interview_completed":
		return 6
	case "interview_scored", "interview_failed":
		return 7
	}
	return -1
}
