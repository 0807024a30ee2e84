package preresume

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusAwaitingReply   Status = "awaiting_reply"
	StatusEngagedNoResume Status = "engaged_no_resume"
	StatusResumePromised  Status = "resume_promised"
	StatusResumeReceived  Status = "resume_received"
	StatusNotInterested   Status = "not_interested"
	StatusUnreachable     Status = "unreachable"
	StatusInterviewOptIn  Status = "interview_opt_in"
	StatusStalled         Status = "stalled"
)

// IsTerminal reports whether the session accepts no further chasing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusResumeReceived, StatusNotInterested, StatusUnreachable, StatusStalled:
		return true
	}
	return false
}

// State is the persisted pre-resume session of one conversation.
type State struct {
	SessionID               string     `json:"session_id"`
	ConversationID          int64      `json:"conversation_id"`
	JobID                   int64      `json:"job_id"`
	CandidateID             int64      `json:"candidate_id"`
	CandidateName           string     `json:"candidate_name,omitempty"`
	JobTitle                string     `json:"job_title,omitempty"`
	ScopeSummary            string     `json:"scope_summary,omitempty"`
	CoreProfileSummary      string     `json:"core_profile_summary,omitempty"`
	Language                string     `json:"language"`
	Status                  Status     `json:"status"`
	FollowupsSent           int        `json:"followups_sent"`
	MaxFollowups            int        `json:"max_followups"`
	NextFollowupAt          *time.Time `json:"next_followup_at,omitempty"`
	TurnsCount              int        `json:"turns_count"`
	LastIntent              Intent     `json:"last_intent,omitempty"`
	ResumeLinks             []string   `json:"resume_links,omitempty"`
	AwaitingPreVettingOptIn bool       `json:"awaiting_pre_vetting_opt_in"`
	LastError               string     `json:"last_error,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// SessionID derives the session id of a conversation.
func SessionID(conversationID int64) string {
	return fmt.Sprintf("pre-%d", conversationID)
}

func (s *State) vars() Vars {
	return Vars{
		Name:               s.CandidateName,
		JobTitle:           s.JobTitle,
		ScopeSummary:       s.ScopeSummary,
		CoreProfileSummary: s.CoreProfileSummary,
	}
}

func (s *State) addResumeLinks(links []string) {
	seen := make(map[string]struct{}, len(s.ResumeLinks))
	for _, l := range s.ResumeLinks {
		seen[l] = struct{}{}
	}
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		s.ResumeLinks = append(s.ResumeLinks, l)
	}
}
