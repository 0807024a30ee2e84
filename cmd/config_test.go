package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/store"
)

// Not parallel: getConfig reads the global viper instance.
func TestGetConfigValidates(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("provider.kind", "carrier-pigeon")
	if _, err := getConfig(); err == nil {
		t.Fatal("unknown provider kind must be rejected")
	}

	viper.Set("provider.kind", "mock")
	viper.Set("interview.followup-delays", []string{"12h", "36h"})
	viper.Set("schedule.inbound", "@every 1m")
	cfg, err := getConfig()
	if err != nil {
		t.Fatalf("getConfig: %v", err)
	}
	if got := cfg.Interview.FollowupDelays; len(got) != 2 || got[1] != 36*time.Hour {
		t.Fatalf("unexpected delays %v", got)
	}
	if cfg.Schedule.Inbound != "@every 1m" {
		t.Fatalf("unexpected schedule %+v", cfg.Schedule)
	}

	viper.Set("ai.enabled", true)
	if _, err := getConfig(); err == nil {
		t.Fatal("enabled ai without gemini section must be rejected")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	t.Parallel()

	a := &application{logger: zap.NewNop(), config: &Config{
		Provider:    ProviderConfig{Kind: "manual", AccountID: "acc-1"},
		ExcludeFile: "exclude.yaml",
		Policy: PolicyConfig{
			ContactAll: true,
			ForcedTest: ForcedTestConfig{JobIDs: []int64{7}, Identifiers: []string{"tester"}},
		},
		Interview: InterviewConfig{TTLHours: 24},
	}}

	p := a.policy()
	if !p.ContactAll || p.AccountID != "acc-1" || p.ExcludeFile != "exclude.yaml" {
		t.Fatalf("unexpected policy %+v", p)
	}
	if p.ForcedTest.JobIDs[0] != 7 || p.ForcedTest.Identifiers[0] != "tester" {
		t.Fatalf("forced test not carried: %+v", p.ForcedTest)
	}
	if p.Interview.TTLHours != 24 || p.Interview.MaxFollowups == 0 || p.SearchLimit == 0 {
		t.Fatalf("defaults not kept: %+v", p.Interview)
	}
}

func TestWireWithoutExternalServices(t *testing.T) {
	t.Parallel()

	a := &application{logger: zap.NewNop(), config: &Config{Provider: ProviderConfig{Kind: "manual"}}}
	if err := a.wire(context.Background()); err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer a.Close()
	if a.workflow == nil || a.manual == nil {
		t.Fatal("workflow must be built")
	}
}

func TestJobScope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	for _, title := range []string{"Backend", "Data"} {
		if _, err := st.InsertJob(ctx, model.Job{Title: title, JDText: "Go"}); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	all, err := jobScope{store: st}.ListJobs(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("unscoped: %v, %v", all, err)
	}
	one, err := jobScope{store: st, jobID: all[1].ID}.ListJobs(ctx)
	if err != nil || len(one) != 1 || one[0].ID != all[1].ID {
		t.Fatalf("scoped: %v, %v", one, err)
	}
	if _, err := (jobScope{store: st, jobID: 999}).ListJobs(ctx); err == nil {
		t.Fatal("missing job must fail")
	}
}
