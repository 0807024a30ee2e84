package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/provider"
)

func TestLoadAndSearch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profiles.json")
	data := `[
		{"linkedin_id":"ln-1","full_name":"Ana","headline":"Go engineer","skills":["go","k8s"],"location":"Madrid"},
		{"linkedin_id":"ln-2","full_name":"Bo","headline":"Designer","skills":["figma"],"location":"Berlin","requires_connection":true}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ch, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := ch.SearchProfiles(context.Background(), "go engineer", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].LinkedInID != "ln-1" {
		t.Fatalf("unexpected search result %+v", got)
	}

	all, _ := ch.SearchProfiles(context.Background(), "nothing matches this", 10)
	if len(all) != 2 {
		t.Fatalf("expected all profiles when nothing ranks, got %d", len(all))
	}
}

func TestConnectionFlow(t *testing.T) {
	t.Parallel()

	bo := model.Candidate{LinkedInID: "ln-2", Raw: map[string]any{"requires_connection": true}}
	ch := New([]model.Candidate{bo})
	ctx := context.Background()

	if _, err := ch.SendMessage(ctx, bo, "hi"); !provider.IsConnectionRequired(err) {
		t.Fatalf("expected connection required, got %v", err)
	}
	req, err := ch.SendConnectionRequest(ctx, bo, "")
	if err != nil || !req.Sent || !ch.Invited("ln-2") {
		t.Fatalf("unexpected connection request %+v %v", req, err)
	}
	if conn, _ := ch.CheckConnectionStatus(ctx, bo); conn.Connected {
		t.Fatalf("must not be connected before accept")
	}

	ch.Accept("ln-2")
	delivery, err := ch.SendMessage(ctx, bo, "hi")
	if err != nil || delivery.ChatID != ChatID("ln-2") {
		t.Fatalf("unexpected delivery %+v %v", delivery, err)
	}

	ch.Fail("ln-2", errors.New("boom"))
	if _, err := ch.CheckConnectionStatus(ctx, bo); err == nil {
		t.Fatalf("expected injected failure")
	}
}
