package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

const (
	searchTopK = 3

	DocumentationNotFound    = "NOT_FOUND"
	DocumentationUnavailable = "UNAVAILABLE"
)

type searchInput struct {
	Query string `json:"query" validate:"required,min=2,max=500"`
}

type SearchOutput struct {
	Found   bool     `json:"found"`
	Status  string   `json:"status,omitempty"`
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

func newSearchDocumentationTool(searcher DocumentSearcher) *typedTool[searchInput, SearchOutput] {
	info := &schema.ToolInfo{
		Name: ToolSearchDocumentation,
		Desc: "Cherche dans la documentation officielle (FAQ, tarifs, procédures). À utiliser avant de répondre à toute question 'Comment faire' ou 'C'est quoi'.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "Question ou mots-clés à rechercher", Required: true},
		}),
	}
	return newTypedTool(info, func(ctx context.Context, in searchInput) SearchOutput {
		if searcher == nil {
			return SearchOutput{Status: DocumentationUnavailable, Answer: "La base de connaissances n'est pas disponible."}
		}
		passages, err := searcher.Search(ctx, in.Query, searchTopK)
		if err != nil {
			log.Warn().Err(err).Str("tool", ToolSearchDocumentation).Msg("document search failed")
			return SearchOutput{Status: DocumentationUnavailable, Answer: "La base de connaissances est momentanément injoignable."}
		}

		var b strings.Builder
		sources := make([]string, 0, len(passages))
		for _, p := range passages {
			content := strings.TrimSpace(p.Content)
			if content == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "Source: %s\n%s", p.URL, content)
			sources = append(sources, p.URL)
		}
		if len(sources) == 0 {
			return SearchOutput{Status: DocumentationNotFound, Answer: "Aucune information trouvée dans la documentation."}
		}
		return SearchOutput{Found: true, Answer: b.String(), Sources: sources}
	})
}

type ticketInput struct {
	Subject           string `json:"subject" validate:"required,min=3,max=200"`
	Description       string `json:"description" validate:"required,min=3,max=4000"`
	Priority          string `json:"priority" validate:"required,oneof=low normal high urgent"`
	Category          string `json:"category" validate:"required,oneof=billing technical fraud general"`
	CustomerSentiment string `json:"customerSentiment,omitempty" validate:"omitempty,max=64"`
}

type TicketOutput struct {
	TicketID          string `json:"ticketId,omitempty"`
	EstimatedWaitTime string `json:"estimatedWaitTime,omitempty"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	Degraded          bool   `json:"degraded,omitempty"`
}

func newCreateCRMTicketTool(crm CRM) *typedTool[ticketInput, TicketOutput] {
	info := &schema.ToolInfo{
		Name: ToolCreateCRMTicket,
		Desc: "Escalade vers le support humain en créant un ticket CRM. À utiliser quand la demande ne peut pas être résolue automatiquement ou en cas de fraude.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"subject":           {Type: schema.String, Desc: "Titre court du problème", Required: true},
			"description":       {Type: schema.String, Desc: "Résumé détaillé de la demande du client", Required: true},
			"priority":          {Type: schema.String, Desc: "Priorité du ticket", Required: true, Enum: []string{"low", "normal", "high", "urgent"}},
			"category":          {Type: schema.String, Desc: "Catégorie du ticket", Required: true, Enum: []string{"billing", "technical", "fraud", "general"}},
			"customerSentiment": {Type: schema.String, Desc: "Sentiment détecté du client (calme, frustré, en colère...)"},
		}),
	}
	return newTypedTool(info, func(ctx context.Context, in ticketInput) TicketOutput {
		t, err := crm.CreateTicket(ctx, TicketRequest{
			Subject:           in.Subject,
			Description:       in.Description,
			Priority:          in.Priority,
			Category:          in.Category,
			CustomerSentiment: in.CustomerSentiment,
		})
		if err != nil {
			log.Warn().Err(err).Str("tool", ToolCreateCRMTicket).Msg("crm ticket creation failed")
			return TicketOutput{
				Status:   "UNAVAILABLE",
				Message:  "Le système de tickets est momentanément indisponible. Invite le client à réessayer plus tard.",
				Degraded: true,
			}
		}
		return TicketOutput{
			TicketID:          t.ID,
			EstimatedWaitTime: t.EstimatedWaitTime,
			Status:            "CREATED",
			Message:           "Ticket transmis à l'équipe support.",
		}
	})
}
