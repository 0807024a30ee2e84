package scoring

import (
	"testing"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

func ptr(v float64) *float64 { return &v }

func TestOverall(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		in        Input
		want      string
		wantScore *float64
	}{
		{
			name:      "not interested is blocked regardless of scores",
			in:        Input{Status: funnel.StatusNotInterested, Sourcing: ptr(99), Communication: ptr(99), Interview: ptr(99)},
			want:      StatusBlocked,
			wantScore: ptr(0),
		},
		{
			name:      "unreachable communication is blocked",
			in:        Input{Status: funnel.StatusOutreachSent, Sourcing: ptr(90), Communication: ptr(15), CommunicationStatus: CommUnreachable},
			want:      StatusBlocked,
			wantScore: ptr(0),
		},
		{
			name: "missing communication needs review",
			in:   Input{Status: funnel.StatusOutreachSent, Sourcing: ptr(90)},
			want: StatusReview,
		},
		{
			name:      "scored interview with cv is shortlisted",
			in:        Input{Status: funnel.StatusInterviewScored, Sourcing: ptr(90), Communication: ptr(90), Interview: ptr(80)},
			want:      StatusShortlist,
			wantScore: ptr(86.5),
		},
		{
			name:      "no cv caps at 70",
			in:        Input{Status: funnel.StatusInDialogue, Sourcing: ptr(100), Communication: ptr(100), Interview: ptr(100)},
			want:      StatusPipeline,
			wantScore: ptr(70),
		},
		{
			name:      "no interview caps at 80 and never shortlists",
			in:        Input{Status: funnel.StatusResumeReceived, Sourcing: ptr(100), Communication: ptr(94)},
			want:      StatusPipeline,
			wantScore: ptr(80),
		},
		{
			name:      "low scores are rejected",
			in:        Input{Status: funnel.StatusInterviewScored, Sourcing: ptr(40), Communication: ptr(66), Interview: ptr(30)},
			want:      StatusReject,
			wantScore: ptr(41.7),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Overall(tc.in)
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			switch {
			case tc.wantScore == nil && got.Score != nil:
				t.Fatalf("expected no score, got %v", *got.Score)
			case tc.wantScore != nil && (got.Score == nil || *got.Score != *tc.wantScore):
				t.Fatalf("score = %v, want %v", got.Score, *tc.wantScore)
			}
		})
	}
}

func TestCommunication(t *testing.T) {
	t.Parallel()

	if score, status, ok := Communication(preresume.StatusResumeReceived, true, true); !ok || score != 94 || status != CommCVReceived {
		t.Fatalf("unexpected resume mapping: %v %s %v", score, status, ok)
	}
	if score, status, ok := Communication("", false, true); !ok || score != 68 || status != CommInDialogue {
		t.Fatalf("unexpected faq mapping: %v %s %v", score, status, ok)
	}
	if _, _, ok := Communication("", false, false); ok {
		t.Fatalf("silence must not be scored")
	}
}
