package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	tenantx "github.com/tanpawarit/chative-fintech-support/agent/tenant"
)

//go:embed template/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("prompts").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "template/*.tmpl"),
)

var toneGuidance = map[tenantx.Tone]string{
	tenantx.ToneFriendly:   "Utilise un ton chaleureux, accessible. Tu peux utiliser des expressions locales modérées.",
	tenantx.ToneFormal:     "Reste professionnel, concis et vouvoie le client.",
	tenantx.ToneDirect:     "Sois factuel. Pas de blabla inutile.",
	tenantx.ToneEmpathetic: "Montre de l'écoute active. Rassure le client avant de donner la solution (surtout pour l'argent).",
}

var routeDescriptions = map[contractx.Intent]string{
	contractx.IntentInfo:       "questions générales, salutations, fonctionnement du service, frais, documentation",
	contractx.IntentPayment:    "transaction échouée ou en attente, argent non reçu, transfert, litige, remboursement",
	contractx.IntentCompliance: "KYC, vérification d'identité, plafonds, compte volé, fraude, arnaque",
}

// Set holds the system prompts generated for one tenant.
type Set struct {
	Dispatcher  string
	Specialists map[contractx.Intent]string
}

func (s Set) For(intent contractx.Intent) (string, bool) {
	p, ok := s.Specialists[intent]
	return p, ok && p != ""
}

type route struct {
	Label       string
	Description string
}

type view struct {
	Name          string
	Industry      string
	Language      string
	ToneGuidance  string
	BusinessRules string
	Routes        []route
	Providers     []tenantx.MobileMoneyConfig
	FraudKeywords []string
}

// Generate maps a tenant to its prompts. It is pure and never fails.
func Generate(cfg tenantx.Config) Set {
	v := newView(cfg)

	set := Set{
		Dispatcher:  render("dispatcher.tmpl", v),
		Specialists: make(map[contractx.Intent]string, len(v.Routes)),
	}
	for _, intent := range cfg.Intents() {
		set.Specialists[intent] = render(string(intent)+".tmpl", v)
	}
	return set
}

func newView(cfg tenantx.Config) view {
	tone, ok := toneGuidance[cfg.Tone]
	if !ok {
		tone = toneGuidance[tenantx.DefaultTone]
	}
	name := cfg.Name
	if name == "" {
		name = "notre service"
	}
	industry := cfg.Industry
	if industry == "" {
		industry = "fintech"
	}
	language := cfg.Language
	if language == "" {
		language = tenantx.DefaultLanguage
	}

	intents := cfg.Intents()
	routes := make([]route, 0, len(intents))
	for _, intent := range intents {
		routes = append(routes, route{Label: intent.Label(), Description: routeDescriptions[intent]})
	}

	return view{
		Name:          name,
		Industry:      industry,
		Language:      language,
		ToneGuidance:  tone,
		BusinessRules: strings.TrimSpace(cfg.BusinessRules),
		Routes:        routes,
		Providers:     cfg.Providers(),
		FraudKeywords: cfg.FraudKeywords(),
	}
}

func render(name string, v view) string {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, v); err != nil {
		return fallback(name, v)
	}
	return strings.TrimSpace(b.String())
}

func fallback(name string, v view) string {
	if name == "dispatcher.tmpl" {
		labels := make([]string, 0, len(v.Routes))
		for _, r := range v.Routes {
			labels = append(labels, r.Label)
		}
		return fmt.Sprintf("Réponds avec exactement une étiquette parmi %s. En cas de doute, réponds [info].", strings.Join(labels, ", "))
	}
	return fmt.Sprintf("Tu es l'assistant de %s. %s", v.Name, v.ToneGuidance)
}
