package notes

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKnownKinds(t *testing.T) {
	raw := []byte(`{
		"interview": {"session_id": "iv-1", "status": "scored", "total_score": 87.5, "followups_sent": 1,
			"scored_at": "2026-03-01T10:00:00Z"},
		"forced_test": {"identifier": "ln-test", "forced_score": 0.99},
		"outreach": {"state": "waiting_connection", "connect_request_id": "req-1"}
	}`)

	n, err := Parse(raw)
	require.NoError(t, err)

	require.NotNil(t, n.Interview)
	assert.Equal(t, "iv-1", n.Interview.SessionID)
	require.NotNil(t, n.Interview.TotalScore)
	assert.InDelta(t, 87.5, *n.Interview.TotalScore, 0.001)
	assert.Equal(t, 1, n.Interview.FollowupsSent)
	require.NotNil(t, n.Interview.ScoredAt)
	assert.True(t, n.Interview.ScoredAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	require.NotNil(t, n.ForcedTest)
	assert.Equal(t, "ln-test", n.ForcedTest.Identifier)

	require.NotNil(t, n.Outreach)
	assert.Equal(t, "req-1", n.Outreach.ConnectRequestID)
	assert.Nil(t, n.PreResume)
	assert.Equal(t, []string{"forced_test", "interview", "outreach"}, n.Kinds())
}

func TestUnknownKindsRoundTrip(t *testing.T) {
	raw := []byte(`{"culture_fit":{"score":4,"tags":["remote"]},"pre_resume":{"session_id":"pre-7"}}`)

	var n Notes
	require.NoError(t, json.Unmarshal(raw, &n))
	require.Contains(t, n.Unknown, "culture_fit")

	out, err := json.Marshal(n)
	require.NoError(t, err)

	var before, after map[string]any
	require.NoError(t, json.Unmarshal(raw, &before))
	require.NoError(t, json.Unmarshal(out, &after))
	assert.Equal(t, before["culture_fit"], after["culture_fit"])
	assert.Equal(t, "pre-7", after["pre_resume"].(map[string]any)["session_id"])
}

func TestParseRejectsInvalidKind(t *testing.T) {
	cases := map[string]string{
		"interview without session": `{"interview": {"status": "invited"}}`,
		"negative followups":        `{"interview": {"session_id": "x", "followups_sent": -1}}`,
		"bad outreach state":        `{"outreach": {"state": "teleported"}}`,
		"bad timestamp":             `{"pre_resume": {"session_id": "x", "resume_received_at": "yesterday"}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		n, err := Parse([]byte(raw))
		require.NoError(t, err)
		assert.True(t, n.IsZero())
	}
}

func TestMerge(t *testing.T) {
	score := 70.0
	base := Notes{
		Interview: &InterviewSnapshot{SessionID: "a", TotalScore: &score},
		Unknown:   map[string]json.RawMessage{"legacy": json.RawMessage(`1`)},
	}
	patch := Notes{
		Outreach: &OutreachState{State: "sent"},
		Unknown:  map[string]json.RawMessage{"extra": json.RawMessage(`"x"`)},
	}

	merged := base.Merge(patch)
	assert.Equal(t, "a", merged.Interview.SessionID)
	assert.Equal(t, "sent", merged.Outreach.State)
	assert.Len(t, merged.Unknown, 2)
	assert.Len(t, base.Unknown, 1, "merge must not mutate the receiver")
}
