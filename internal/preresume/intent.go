package preresume

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Intent string

const (
	IntentResumeShared    Intent = "resume_shared"
	IntentWillSendLater   Intent = "will_send_later"
	IntentNotInterested   Intent = "not_interested"
	IntentPreVettingOptIn Intent = "pre_vetting_opt_in"
	IntentSalary          Intent = "salary"
	IntentStack           Intent = "stack"
	IntentTimeline        Intent = "timeline"
	IntentSendJDFirst     Intent = "send_jd_first"
	IntentDefault         Intent = "default"
)

var linkPattern = regexp.MustCompile(`https?://[^\s)>"']+`)

var (
	// attachmentLinkMarkers identify links that point at a document by
	// themselves: file extensions, file hosts and resume-ish path segments.
	attachmentLinkMarkers = []string{
		"resume", "cv", ".pdf", ".doc", ".docx", ".rtf", ".odt",
		"drive.", "docs.google", "dropbox", "notion.", "onedrive", "1drv.ms",
		"wetransfer", "box.com/s/", "/attachment", "/files/", "/file/", "media.licdn.com/dms/document",
	}
	resumeWords   = []string{"resume", "résumé", "cv", "curriculum", "резюме", "hoja de vida"}
	resumeMarkers = []string{
		"my cv", "my resume", "attached cv", "attached resume", "here is resume",
		"cv attached", "resume attached", "мое резюме", "моё резюме", "прикрепил резюме",
		"mi cv", "mi curriculum", "adjunto cv", "adjunto mi cv",
	}
	willSendLaterMarkers = []string{
		"will send", "send later", "tomorrow", "next week", "later",
		"пришлю", "отправлю позже", "завтра", "mañana", "luego", "más tarde", "mas tarde",
	}
	notInterestedMarkers = []string{
		"not interested", "no thanks", "stop", "unsubscribe", "not looking",
		"не интересно", "неинтересно", "не ищу", "no me interesa", "no gracias", "no estoy buscando",
	}
	optInMarkers = []string{
		"yes", "yeah", "yep", "sure", "ok", "okay", "of course", "sounds good", "let's do it",
		"lets do it", "go ahead", "happy to", "i'm in", "open to it",
		"да", "конечно", "давайте", "ок", "si", "sí", "claro", "vale", "dale",
	}
	topicMarkers = []struct {
		intent  Intent
		markers []string
	}{
		{IntentSalary, []string{"salary", "compensation", "pay", "range", "зарплат", "вилка", "оплата", "salario", "sueldo", "compensación"}},
		{IntentStack, []string{"stack", "technology", "tech", "tools", "requirements", "стек", "технолог", "tecnolog", "herramientas", "requisitos"}},
		{IntentTimeline, []string{"timeline", "process", "interview", "steps", "when", "процесс", "собесед", "этап", "когда", "proceso", "entrevista", "cuando", "cuándo"}},
		{IntentSendJDFirst, []string{"send jd", "job description", "details first", "share details", "more details", "описание вакансии", "подробнее", "descripción del puesto", "más detalles"}},
	}
)

// Classify maps inbound text to an intent. Order matters: resume evidence
// wins over everything, yes-like replies only count as opt-in when the
// session asked the opt-in question.
func Classify(text string, awaitingOptIn bool) Intent {
	t := newTokenized(text)

	if len(ParseResumeLinks(text)) > 0 || t.hasAny(resumeMarkers) {
		return IntentResumeShared
	}
	if t.hasAny(willSendLaterMarkers) {
		return IntentWillSendLater
	}
	if t.hasAny(notInterestedMarkers) {
		return IntentNotInterested
	}
	if awaitingOptIn && t.hasAny(optInMarkers) {
		return IntentPreVettingOptIn
	}
	for _, topic := range topicMarkers {
		if t.hasAny(topic.markers) {
			return topic.intent
		}
	}
	return IntentDefault
}

// ParseResumeLinks returns links that count as resume evidence. Any link
// qualifies when the text itself talks about a resume; otherwise only links
// that look like an attachment or a file do.
func ParseResumeLinks(text string) []string {
	links := linkPattern.FindAllString(text, -1)
	if len(links) == 0 {
		return nil
	}

	withoutLinks := linkPattern.ReplaceAllString(text, " ")
	mentionsResume := newTokenized(withoutLinks).hasAny(resumeWords)

	out := make([]string, 0, len(links))
	for _, link := range links {
		link = strings.TrimRight(link, ".,;:!?")
		if mentionsResume || isAttachmentLink(link) {
			out = append(out, link)
		}
	}
	return out
}

func isAttachmentLink(link string) bool {
	lowered := strings.ToLower(link)
	for _, marker := range attachmentLinkMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

type tokenized struct {
	normalized string
	tokens     []string
}

func newTokenized(text string) tokenized {
	lowered := strings.ToLower(text)
	tokens := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return tokenized{normalized: " " + strings.Join(tokens, " ") + " ", tokens: tokens}
}

// hasAny matches phrases on word boundaries. Single words match whole tokens,
// or token prefixes for stems of five or more letters ("зарплат" -> "зарплата").
func (t tokenized) hasAny(markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(marker, " ") {
			if strings.Contains(t.normalized, " "+marker+" ") {
				return true
			}
			continue
		}
		stem := utf8.RuneCountInString(marker) >= 5
		for _, token := range t.tokens {
			if token == marker || (stem && strings.HasPrefix(token, marker)) {
				return true
			}
		}
	}
	return false
}
