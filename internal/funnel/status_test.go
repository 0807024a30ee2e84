package funnel_test

import (
	"testing"

	"github.com/spigell/tener-recruiter/internal/funnel"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"added", "needs_resume", "outreach_sent", "interview_scored", "stalled"} {
		got, err := funnel.ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q", s, got)
		}
	}

	if _, err := funnel.ParseStatus("shortlist"); err == nil {
		t.Error("shortlist is computed on read and must not parse as a persisted status")
	}
}

func TestIsTransitionAllowed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to funnel.Status
		want     bool
	}{
		{funnel.StatusAdded, funnel.StatusVerified, true},
		{funnel.StatusRejected, funnel.StatusNeedsResume, true},
		{funnel.StatusVerified, funnel.StatusOutreachSent, true},
		{funnel.StatusNeedsResume, funnel.StatusOutreachPendingConnection, true},
		{funnel.StatusOutreachPendingConnection, funnel.StatusOutreachSent, true},
		{funnel.StatusOutreachSent, funnel.StatusInDialogue, true},
		{funnel.StatusInDialogue, funnel.StatusResumeReceived, true},
		{funnel.StatusOutreachSent, funnel.StatusResumeReceived, true},
		{funnel.StatusResumeReceived, funnel.StatusInterviewInvited, true},
		{funnel.StatusInterviewInvited, funnel.StatusInterviewScored, true},
		{funnel.StatusInterviewFailed, funnel.StatusInterviewInvited, true},

		{funnel.StatusInDialogue, funnel.StatusOutreachSent, false},
		{funnel.StatusResumeReceived, funnel.StatusInDialogue, false},
		{funnel.StatusOutreachSent, funnel.StatusVerified, false},
		{funnel.StatusInterviewScored, funnel.StatusInterviewInvited, false},
		{funnel.StatusVerified, funnel.StatusAdded, false},
		{funnel.StatusInDialogue, funnel.StatusInDialogue, false},

		{funnel.StatusAdded, funnel.StatusNotInterested, true},
		{funnel.StatusInterviewInvited, funnel.StatusUnreachable, true},
		{funnel.StatusInDialogue, funnel.StatusStalled, true},
		{funnel.StatusVerified, funnel.StatusStalled, false},
		{funnel.StatusNotInterested, funnel.StatusInDialogue, false},
		{funnel.StatusStalled, funnel.StatusResumeReceived, false},
		{funnel.StatusUnreachable, funnel.StatusNotInterested, false},
	}

	for _, c := range cases {
		if got := funnel.IsTransitionAllowed(c.from, c.to); got != c.want {
			t.Errorf("IsTransitionAllowed(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestProjectionIsMonotonicAlongForwardPath(t *testing.T) {
	path := []funnel.Status{
		funnel.StatusAdded,
		funnel.StatusNeedsResume,
		funnel.StatusOutreachPendingConnection,
		funnel.StatusOutreachSent,
		funnel.StatusInDialogue,
		funnel.StatusResumeReceived,
		funnel.StatusInterviewInvited,
		funnel.StatusInterviewScored,
	}

	prev := -1
	for _, s := range path {
		r := funnel.ProjectionRank(funnel.Project(s).Key)
		if r < prev {
			t.Fatalf("projection of %s went backwards: %d < %d", s, r, prev)
		}
		prev = r
	}

	if got := funnel.Project(funnel.StatusResumeReceived); got.Key != "cv_received" || got.Label != "CV Received" {
		t.Fatalf("unexpected projection for resume_received: %+v", got)
	}
	if funnel.ProjectionRank(funnel.Project(funnel.StatusNotInterested).Key) != -1 {
		t.Fatal("terminal projections are outside the forward path")
	}
}
