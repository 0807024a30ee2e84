package events

import (
	"context"
	"testing"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder
	r.Publish(context.Background(), Event{Type: TypeOutreachResult, JobID: 1})
	r.Publish(context.Background(), Event{Type: TypeChatRebound, JobID: 2})

	got := r.OfType(TypeChatRebound)
	if len(got) != 1 || got[0].JobID != 2 {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[0].ID == "" || got[0].At.IsZero() {
		t.Fatalf("event must be stamped: %+v", got[0])
	}
	Nop{}.Publish(context.Background(), Event{})
}
