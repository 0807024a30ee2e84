package preresume

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		text          string
		awaitingOptIn bool
		want          Intent
	}{
		{name: "resume link with words", text: "Here is my resume: https://example.com/u/123", want: IntentResumeShared},
		{name: "bare attachment link", text: "https://files.example.com/attachment/42", want: IntentResumeShared},
		{name: "cv marker without link", text: "I attached my CV above", want: IntentResumeShared},
		{name: "resume beats not interested", text: "not interested but here https://drive.google.com/file/d/1", want: IntentResumeShared},
		{name: "will send later", text: "I will send it tomorrow", want: IntentWillSendLater},
		{name: "russian will send", text: "Пришлю завтра", want: IntentWillSendLater},
		{name: "not interested", text: "Thanks, not interested", want: IntentNotInterested},
		{name: "spanish not interested", text: "No me interesa, gracias", want: IntentNotInterested},
		{name: "yes without question", text: "yes", want: IntentDefault},
		{name: "yes after question", text: "Yes, sure", awaitingOptIn: true, want: IntentPreVettingOptIn},
		{name: "salary", text: "What is the salary range?", want: IntentSalary},
		{name: "russian salary stem", text: "Какая зарплата?", want: IntentSalary},
		{name: "stack", text: "Which tech stack do you use?", want: IntentStack},
		{name: "timeline", text: "How long is the process?", want: IntentTimeline},
		{name: "jd first", text: "Could you share the job description first?", want: IntentSendJDFirst},
		{name: "default", text: "Hello there", want: IntentDefault},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.text, tc.awaitingOptIn); got != tc.want {
				t.Fatalf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestParseResumeLinks(t *testing.T) {
	t.Parallel()

	links := ParseResumeLinks("my cv is at https://example.com/me, thanks")
	if len(links) != 1 || links[0] != "https://example.com/me" {
		t.Fatalf("unexpected links: %v", links)
	}

	if links := ParseResumeLinks("see https://example.com/blog/post"); len(links) != 0 {
		t.Fatalf("plain link must not count as resume evidence: %v", links)
	}

	if links := ParseResumeLinks("https://www.dropbox.com/s/abc/file.pdf"); len(links) != 1 {
		t.Fatalf("expected file link to qualify, got %v", links)
	}
}
