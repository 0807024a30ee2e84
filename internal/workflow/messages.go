package workflow

import (
	"strings"

	"github.com/spigell/tener-recruiter/internal/language"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

const fallbackLanguage = language.English

var outreachTemplates = map[string]string{
	"en": "Hi {name}! I'm hiring for {job_title} and your background looks like a strong fit. Would you be open to a short chat about it?",
	"ru": "Привет, {name}! Я ищу человека на позицию {job_title}, и ваш опыт выглядит подходящим. Готовы коротко обсудить?",
	"es": "¡Hola {name}! Estoy contratando para {job_title} y tu experiencia encaja muy bien. ¿Te animas a conversar un momento?",
}

var connectionNotes = map[string]string{
	"en": "Hi {name}, I'm hiring for {job_title} and would like to connect.",
	"ru": "Привет, {name}! Ищу кандидата на {job_title}, давайте добавимся в контакты.",
	"es": "Hola {name}, estoy contratando para {job_title} y me gustaría conectar.",
}

var interviewInviteTemplates = map[string]string{
	"en": "Hey {name},\nhere is your quick async pre vetting link for \"{job_title}\": {url}\nwhen you finish it, drop me a short reply here and I will move you forward",
	"ru": "Привет, {name},\nвот короткий async pre vetting по роли \"{job_title}\": {url}\nкак закончите, просто дайте короткий ответ здесь и я двину вас дальше",
	"es": "Hola {name},\naqui esta tu enlace de async pre vetting para \"{job_title}\": {url}\ncuando termines, dejame una respuesta corta aqui y te muevo al siguiente paso",
}

var interviewFirstFollowup = map[string]string{
	"en": "{name}, quick ping on \"{job_title}\": {url}\nwant me to help with anything before you do it",
	"ru": "{name}, короткий пинг по \"{job_title}\": {url}\nесли нужна помощь перед прохождением, напишите",
	"es": "{name}, ping rapido sobre \"{job_title}\": {url}\nsi quieres, te ayudo antes de hacerlo",
}

var interviewLastFollowup = map[string]string{
	"en": "{name}, final reminder for \"{job_title}\": {url}\nif this role is still interesting, please do the quick pre vetting",
	"ru": "{name}, финальное напоминание по \"{job_title}\": {url}\nесли роль все еще актуальна, пройдите короткий pre vetting",
	"es": "{name}, ultimo recordatorio para \"{job_title}\": {url}\nsi el rol sigue siendo interesante, completa el pre vetting corto",
}

var faqAnswers = map[preresume.Intent]map[string]string{
	preresume.IntentSalary: {
		"en": "The range for {job_title} depends on seniority and location. Happy to share details once we align on your expectations.",
		"ru": "Вилка по {job_title} зависит от уровня и локации. Расскажу подробнее, когда сверим ожидания.",
		"es": "El rango para {job_title} depende del seniority y la ubicación. Te comparto detalles cuando alineemos expectativas.",
	},
	preresume.IntentStack: {
		"en": "The core stack for {job_title} is in the job description. I can send the full list of requirements if useful.",
		"ru": "Основной стек по {job_title} описан в вакансии. Могу прислать полный список требований.",
		"es": "El stack principal de {job_title} está en la descripción. Puedo enviarte la lista completa de requisitos.",
	},
	preresume.IntentTimeline: {
		"en": "The process for {job_title} is a short async pre vetting, then a technical call and a final conversation.",
		"ru": "Процесс по {job_title}: короткий async pre vetting, затем техническое интервью и финальная встреча.",
		"es": "El proceso para {job_title} es un pre vetting async corto, luego una llamada técnica y una conversación final.",
	},
	preresume.IntentDefault: {
		"en": "Thanks for the reply! Let me know if you have any questions about {job_title}.",
		"ru": "Спасибо за ответ! Если есть вопросы по {job_title}, пишите.",
		"es": "¡Gracias por responder! Si tienes preguntas sobre {job_title}, escríbeme.",
	},
}

type messageVars struct {
	Name     string
	JobTitle string
	URL      string
}

func renderMessage(templates map[string]string, lang string, vars messageVars) string {
	tmpl, ok := templates[language.Normalize(lang)]
	if !ok {
		tmpl = templates[fallbackLanguage]
	}
	name := vars.Name
	if name == "" {
		name = "there"
	}
	title := vars.JobTitle
	if title == "" {
		title = "this role"
	}
	return strings.NewReplacer("{name}", name, "{job_title}", title, "{url}", vars.URL).Replace(tmpl)
}

// faqIntent narrows the classifier output to the topics the FAQ answers.
func faqIntent(text string) preresume.Intent {
	switch intent := preresume.Classify(text, false); intent {
	case preresume.IntentSalary, preresume.IntentStack, preresume.IntentTimeline:
		return intent
	}
	return preresume.IntentDefault
}

// ensureURL appends url when a generated text dropped it.
func ensureURL(text, fallback, url string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	if url != "" && !strings.Contains(text, url) {
		return text + "\n" + url
	}
	return text
}
