// Package notes models the verification notes attached to a candidate/job
// match as a tagged union: every top-level key is a note kind. Known kinds are
// decoded into typed structs and validated against a JSON schema; unknown kinds
// are carried through untouched so newer writers never lose data to older ones.
package notes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
)

type Kind string

const (
	KindInterview    Kind = "interview"
	KindForcedTest   Kind = "forced_test"
	KindPreResume    Kind = "pre_resume"
	KindOutreach     Kind = "outreach"
	KindVerification Kind = "verification"
)

// InterviewSnapshot is the denormalized copy of the remote interview session.
type InterviewSnapshot struct {
	SessionID      string     `json:"session_id"`
	Status         string     `json:"status,omitempty"`
	EntryURL       string     `json:"entry_url,omitempty"`
	Provider       string     `json:"provider,omitempty"`
	TotalScore     *float64   `json:"total_score,omitempty"`
	InvitedAt      *time.Time `json:"invited_at,omitempty"`
	ScoredAt       *time.Time `json:"scored_at,omitempty"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
	FollowupsSent  int        `json:"followups_sent"`
	LastFollowupAt *time.Time `json:"last_followup_at,omitempty"`
	NextFollowupAt *time.Time `json:"next_followup_at,omitempty"`
}

// ForcedTestMarker flags a candidate admitted through the forced test allowlist.
type ForcedTestMarker struct {
	Identifier  string  `json:"identifier"`
	ForcedScore float64 `json:"forced_score,omitempty"`
}

// PreResumePointer links the match to its pre-resume conversation session.
type PreResumePointer struct {
	SessionID        string     `json:"session_id"`
	Status           string     `json:"status,omitempty"`
	ScreeningOutcome string     `json:"screening_outcome,omitempty"`
	ResumeReceivedAt *time.Time `json:"resume_received_at,omitempty"`
}

// OutreachState records the last delivery outcome for the match.
type OutreachState struct {
	State            string     `json:"state"`
	ConnectRequestID string     `json:"connect_request_id,omitempty"`
	Error            string     `json:"error,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Verification keeps the explanation produced by the matching function.
type Verification struct {
	Verdict       string             `json:"verdict,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	Components    map[string]float64 `json:"components,omitempty"`
	MissingFields []string           `json:"missing_fields,omitempty"`
}

// Notes is the union of all note kinds present on a match.
type Notes struct {
	Interview    *InterviewSnapshot
	ForcedTest   *ForcedTestMarker
	PreResume    *PreResumePointer
	Outreach     *OutreachState
	Verification *Verification

	// Unknown holds kinds this version does not understand, verbatim.
	Unknown map[string]json.RawMessage
}

// IsZero reports whether no kind is set.
func (n Notes) IsZero() bool {
	return n.Interview == nil && n.ForcedTest == nil && n.PreResume == nil &&
		n.Outreach == nil && n.Verification == nil && len(n.Unknown) == 0
}

// Merge returns n with every kind present in patch replacing the one in n.
func (n Notes) Merge(patch Notes) Notes {
	out := n
	if patch.Interview != nil {
		out.Interview = patch.Interview
	}
	if patch.ForcedTest != nil {
		out.ForcedTest = patch.ForcedTest
	}
	if patch.PreResume != nil {
		out.PreResume = patch.PreResume
	}
	if patch.Outreach != nil {
		out.Outreach = patch.Outreach
	}
	if patch.Verification != nil {
		out.Verification = patch.Verification
	}
	if len(patch.Unknown) > 0 || len(n.Unknown) > 0 {
		out.Unknown = make(map[string]json.RawMessage, len(n.Unknown)+len(patch.Unknown))
		for k, v := range n.Unknown {
			out.Unknown[k] = v
		}
		for k, v := range patch.Unknown {
			out.Unknown[k] = v
		}
	}
	return out
}

// Kinds lists the kinds present, sorted.
func (n Notes) Kinds() []string {
	kinds := make([]string, 0, 5+len(n.Unknown))
	for kind, set := range map[Kind]bool{
		KindInterview:    n.Interview != nil,
		KindForcedTest:   n.ForcedTest != nil,
		KindPreResume:    n.PreResume != nil,
		KindOutreach:     n.Outreach != nil,
		KindVerification: n.Verification != nil,
	} {
		if set {
			kinds = append(kinds, string(kind))
		}
	}
	for k := range n.Unknown {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (n Notes) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 5+len(n.Unknown))
	for k, v := range n.Unknown {
		out[k] = v
	}
	if n.Interview != nil {
		out[string(KindInterview)] = n.Interview
	}
	if n.ForcedTest != nil {
		out[string(KindForcedTest)] = n.ForcedTest
	}
	if n.PreResume != nil {
		out[string(KindPreResume)] = n.PreResume
	}
	if n.Outreach != nil {
		out[string(KindOutreach)] = n.Outreach
	}
	if n.Verification != nil {
		out[string(KindVerification)] = n.Verification
	}
	return json.Marshal(out)
}

func (n *Notes) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Parse decodes and validates raw notes. Empty input and JSON null yield
// zero Notes.
func Parse(data []byte) (Notes, error) {
	var n Notes
	if len(data) == 0 || string(data) == "null" {
		return n, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return n, fmt.Errorf("decoding notes: %w", err)
	}

	for key, value := range raw {
		var target any
		switch Kind(key) {
		case KindInterview:
			n.Interview = &InterviewSnapshot{}
			target = n.Interview
		case KindForcedTest:
			n.ForcedTest = &ForcedTestMarker{}
			target = n.ForcedTest
		case KindPreResume:
			n.PreResume = &PreResumePointer{}
			target = n.PreResume
		case KindOutreach:
			n.Outreach = &OutreachState{}
			target = n.Outreach
		case KindVerification:
			n.Verification = &Verification{}
			target = n.Verification
		default:
			if n.Unknown == nil {
				n.Unknown = make(map[string]json.RawMessage)
			}
			n.Unknown[key] = value
			continue
		}

		if err := Validate(Kind(key), value); err != nil {
			return Notes{}, err
		}
		if err := decodeKind(value, target); err != nil {
			return Notes{}, fmt.Errorf("decoding %s note: %w", key, err)
		}
	}

	return n, nil
}

// decodeKind goes through a generic map so that loosely typed writers
// (numbers as floats, RFC3339 strings for times) decode the same way.
func decodeKind(value json.RawMessage, target any) error {
	var generic map[string]any
	if err := json.Unmarshal(value, &generic); err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     target,
		DecodeHook: timeHook,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(generic)
}

func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) || from.Kind() != reflect.String {
		return data, nil
	}
	return time.Parse(time.RFC3339Nano, data.(string))
}
