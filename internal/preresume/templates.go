package preresume

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Template keys.
const (
	TemplateIntro             = "intro"
	TemplateResumeCTA         = "resume_cta"
	TemplateResumeAck         = "resume_ack"
	TemplateResumePromisedAck = "resume_promised_ack"
	TemplateNotInterestedAck  = "not_interested_ack"
	TemplateOptInPrompt       = "opt_in_prompt"
	TemplateOptInAck          = "opt_in_ack"
)

// Catalog holds localized message templates. Placeholders: {name},
// {job_title}, {scope_summary}, {core_profile_summary}.
type Catalog struct {
	DefaultLanguage string                       `json:"default_language"`
	Templates       map[string]map[string]string `json:"templates"`
	// Followups are keyed by follow-up number, starting at 1.
	Followups map[string]map[string]string `json:"followups"`
}

// Vars are the values substituted into templates.
type Vars struct {
	Name               string
	JobTitle           string
	ScopeSummary       string
	CoreProfileSummary string
}

// DefaultCatalog returns the built-in en/ru/es templates.
func DefaultCatalog() *Catalog {
	return &Catalog{
		DefaultLanguage: "en",
		Templates: map[string]map[string]string{
			TemplateIntro: {
				"en": "Hi {name}! I'm hiring for {job_title}. {scope_summary} Could you share your CV so I can check the fit and move you forward quickly?",
				"ru": "Привет, {name}! Я ищу кандидата на позицию {job_title}. {scope_summary} Пришлите, пожалуйста, ваше резюме (CV), чтобы я мог быстро оценить совпадение.",
				"es": "¡Hola {name}! Estoy contratando para {job_title}. {scope_summary} ¿Podrías compartir tu CV para revisar el encaje y avanzar rápido?",
			},
			TemplateResumeCTA: {
				"en": "If you're interested, please share your CV and I'll take it from there.",
				"ru": "Если интересно, пришлите резюме (CV), и я продолжу процесс.",
				"es": "Si te interesa, comparte tu CV y seguimos desde ahí.",
			},
			TemplateResumeAck: {
				"en": "Thanks {name}, got your CV! I'll review it against {job_title} and get back to you.",
				"ru": "Спасибо, {name}, резюме получил! Сверю его с позицией {job_title} и вернусь с ответом.",
				"es": "¡Gracias {name}, recibí tu CV! Lo revisaré para {job_title} y te escribo.",
			},
			TemplateResumePromisedAck: {
				"en": "Sounds good, no rush. Send your CV whenever it's ready.",
				"ru": "Отлично, без спешки. Пришлите резюме, когда будет готово.",
				"es": "Perfecto, sin prisa. Envía tu CV cuando lo tengas listo.",
			},
			TemplateNotInterestedAck: {
				"en": "Understood, thanks for letting me know. Good luck!",
				"ru": "Понял, спасибо, что ответили. Удачи!",
				"es": "Entendido, gracias por avisar. ¡Mucho éxito!",
			},
			TemplateOptInPrompt: {
				"en": "Would you be open to a quick async pre vetting step to speed up next stage",
				"ru": "Готовы пройти короткий асинхронный pre vetting, чтобы быстрее перейти к следующему этапу",
				"es": "Te interesaria pasar un pre vetting asincrono corto para acelerar el siguiente paso",
			},
			TemplateOptInAck: {
				"en": "Great, I'll send the pre vetting link shortly.",
				"ru": "Отлично, скоро пришлю ссылку на pre vetting.",
				"es": "Genial, te envío el enlace de pre vetting enseguida.",
			},
			intentKey(IntentSalary): {
				"en": "The compensation range depends on seniority and is discussed after a quick CV review.",
				"ru": "Вилка зависит от уровня и обсуждается после короткого просмотра резюме.",
				"es": "El rango salarial depende del seniority y lo vemos tras revisar tu CV.",
			},
			intentKey(IntentStack): {
				"en": "Core profile: {core_profile_summary}",
				"ru": "Ключевой профиль: {core_profile_summary}",
				"es": "Perfil clave: {core_profile_summary}",
			},
			intentKey(IntentTimeline): {
				"en": "The process is short: CV review, a short async screening, then a call with the team.",
				"ru": "Процесс короткий: просмотр резюме, короткий асинхронный скрининг, затем звонок с командой.",
				"es": "El proceso es corto: revisión del CV, una evaluación asíncrona corta y luego una llamada con el equipo.",
			},
			intentKey(IntentSendJDFirst): {
				"en": "Sure, here are the details for {job_title}: {scope_summary}",
				"ru": "Конечно, детали по позиции {job_title}: {scope_summary}",
				"es": "Claro, estos son los detalles de {job_title}: {scope_summary}",
			},
			intentKey(IntentDefault): {
				"en": "Thanks for the reply!",
				"ru": "Спасибо за ответ!",
				"es": "¡Gracias por responder!",
			},
		},
		Followups: map[string]map[string]string{
			"1": {
				"en": "Hi {name}, just checking in about {job_title}. Could you share your CV?",
				"ru": "{name}, напоминаю про позицию {job_title}. Сможете прислать резюме (CV)?",
				"es": "Hola {name}, te escribo de nuevo por {job_title}. ¿Podrías compartir tu CV?",
			},
			"2": {
				"en": "Hi {name}, the {job_title} role is still open. A CV is all I need to move forward.",
				"ru": "{name}, позиция {job_title} всё ещё открыта. Для следующего шага нужно только резюме (CV).",
				"es": "Hola {name}, el puesto de {job_title} sigue abierto. Solo necesito tu CV para avanzar.",
			},
			"3": {
				"en": "Last note from me about {job_title}, {name}. If it's not a fit right now, no worries.",
				"ru": "{name}, последнее сообщение по позиции {job_title}. Если сейчас неактуально, ничего страшного.",
				"es": "Último mensaje sobre {job_title}, {name}. Si ahora no encaja, no pasa nada.",
			},
		},
	}
}

// LoadCatalog reads a JSON catalog and lays it over the defaults, so a file
// may override only some templates or languages.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates file %q: %w", path, err)
	}

	var override Catalog
	if err := json.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("decoding templates file %q: %w", path, err)
	}

	catalog := DefaultCatalog()
	if lang := strings.TrimSpace(override.DefaultLanguage); lang != "" {
		catalog.DefaultLanguage = lang
	}
	overlay(catalog.Templates, override.Templates)
	overlay(catalog.Followups, override.Followups)

	return catalog, nil
}

func overlay(dst, src map[string]map[string]string) {
	for key, byLang := range src {
		if dst[key] == nil {
			dst[key] = map[string]string{}
		}
		for lang, text := range byLang {
			dst[key][lang] = text
		}
	}
}

// Render resolves a template in lang, falling back to the default language
// and then to any available translation.
func (c *Catalog) Render(key, lang string, vars Vars) string {
	return c.render(c.Templates[key], lang, vars)
}

// RenderFollowup resolves follow-up number n. When n exceeds the configured
// follow-ups the highest one is reused.
func (c *Catalog) RenderFollowup(n int, lang string, vars Vars) string {
	if byLang, ok := c.Followups[strconv.Itoa(n)]; ok {
		return c.render(byLang, lang, vars)
	}

	highest := 0
	for key := range c.Followups {
		if k, err := strconv.Atoi(key); err == nil && k > highest {
			highest = k
		}
	}
	return c.render(c.Followups[strconv.Itoa(highest)], lang, vars)
}

func (c *Catalog) render(byLang map[string]string, lang string, vars Vars) string {
	if len(byLang) == 0 {
		return ""
	}

	text, ok := byLang[lang]
	if !ok {
		text, ok = byLang[c.DefaultLanguage]
	}
	if !ok {
		langs := make([]string, 0, len(byLang))
		for l := range byLang {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		text = byLang[langs[0]]
	}

	name := strings.TrimSpace(vars.Name)
	if name == "" {
		name = "there"
	}
	jobTitle := strings.TrimSpace(vars.JobTitle)
	if jobTitle == "" {
		jobTitle = "this role"
	}

	r := strings.NewReplacer(
		"{name}", name,
		"{job_title}", jobTitle,
		"{scope_summary}", strings.TrimSpace(vars.ScopeSummary),
		"{core_profile_summary}", strings.TrimSpace(vars.CoreProfileSummary),
	)
	return collapseSpaces(r.Replace(text))
}

func intentKey(intent Intent) string {
	return "intent_" + string(intent)
}

func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
