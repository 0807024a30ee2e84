// Package scoring computes the overall candidate status on read. Nothing here
// is persisted.
package scoring

import (
	"math"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

const (
	StatusShortlist = "shortlist"
	StatusPipeline  = "pipeline"
	StatusReject    = "reject"
	StatusReview    = "review"
	StatusBlocked   = "blocked"
)

// Communication statuses.
const (
	CommCVReceived     = "cv_received"
	CommInterviewOptIn = "interview_opt_in"
	CommResumePromised = "resume_promised"
	CommInDialogue     = "in_dialogue"
	CommAwaitingReply  = "awaiting_reply"
	CommNotInterested  = "not_interested"
	CommStalled        = "stalled"
	CommUnreachable    = "unreachable"
)

const (
	weightSourcing      = 0.45
	weightCommunication = 0.20
	weightInterview     = 0.35

	capWithoutCV        = 70.0
	capWithoutInterview = 80.0

	shortlistThreshold = 80.0
	pipelineThreshold  = 65.0
)

var communicationScores = map[preresume.Status]struct {
	score  float64
	status string
}{
	preresume.StatusResumeReceived:  {94, CommCVReceived},
	preresume.StatusInterviewOptIn:  {84, CommInterviewOptIn},
	preresume.StatusResumePromised:  {80, CommResumePromised},
	preresume.StatusEngagedNoResume: {72, CommInDialogue},
	preresume.StatusAwaitingReply:   {66, CommAwaitingReply},
	preresume.StatusNotInterested:   {35, CommNotInterested},
	preresume.StatusStalled:         {25, CommStalled},
	preresume.StatusUnreachable:     {15, CommUnreachable},
}

// faqDialogueScore applies to candidates who talk to us without a pre-resume session.
const faqDialogueScore = 68.0

// Communication maps the pre-resume session status to a score. ok is false
// when there is nothing to score yet.
func Communication(status preresume.Status, hasSession, hasInbound bool) (score float64, commStatus string, ok bool) {
	if hasSession {
		if c, found := communicationScores[status]; found {
			return c.score, c.status, true
		}
	}
	if hasInbound {
		return faqDialogueScore, CommInDialogue, true
	}
	return 0, "", false
}

type Input struct {
	Status              funnel.Status
	Sourcing            *float64
	Communication       *float64
	CommunicationStatus string
	Interview           *float64
}

type Result struct {
	Status string   `json:"status"`
	Score  *float64 `json:"score,omitempty"`
	HasCV  bool     `json:"has_cv"`
}

// Overall combines the sub-scores, all on a 0..100 scale. Without an
// interview score its weight is spread over the other two, the score is
// capped and the candidate cannot be shortlisted yet.
func Overall(in Input) Result {
	hasCV := HasCV(in.Status, in.CommunicationStatus)

	if isBlocked(in.Status, in.CommunicationStatus) {
		zero := 0.0
		return Result{Status: StatusBlocked, Score: &zero, HasCV: hasCV}
	}
	if in.Sourcing == nil || in.Communication == nil {
		return Result{Status: StatusReview, HasCV: hasCV}
	}

	var score float64
	if in.Interview != nil {
		score = weightSourcing*clamp(*in.Sourcing) +
			weightCommunication*clamp(*in.Communication) +
			weightInterview*clamp(*in.Interview)
	} else {
		score = (weightSourcing*clamp(*in.Sourcing) + weightCommunication*clamp(*in.Communication)) /
			(weightSourcing + weightCommunication)
		score = math.Min(score, capWithoutInterview)
	}
	if !hasCV {
		score = math.Min(score, capWithoutCV)
	}
	score = math.Round(score*10) / 10

	status := StatusReject
	switch {
	case score >= shortlistThreshold && in.Interview != nil:
		status = StatusShortlist
	case score >= pipelineThreshold:
		status = StatusPipeline
	}
	return Result{Status: status, Score: &score, HasCV: hasCV}
}

// HasCV reports whether the candidate's CV is on file.
func HasCV(status funnel.Status, commStatus string) bool {
	return status == funnel.StatusResumeReceived || funnel.IsInterview(status) || commStatus == CommCVReceived
}

func isBlocked(status funnel.Status, commStatus string) bool {
	switch status {
	case funnel.StatusNotInterested, funnel.StatusUnreachable:
		return true
	}
	return commStatus == CommNotInterested || commStatus == CommUnreachable
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
