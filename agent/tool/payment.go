package tool

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

type transactionInput struct {
	TransactionID string `json:"transaction_id" validate:"required,min=3,max=64"`
	Provider      string `json:"provider,omitempty" validate:"omitempty,max=32"`
}

type TransactionOutput struct {
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Amount        string            `json:"amount,omitempty"`
	Message       string            `json:"message"`
	Degraded      bool              `json:"degraded,omitempty"`
}

func newTransactionStatusTool(ledger Ledger) *typedTool[transactionInput, TransactionOutput] {
	info := &schema.ToolInfo{
		Name: ToolTransactionStatus,
		Desc: "Vérifie le statut d'une transaction Mobile Money à partir de sa référence. Statuts possibles : SUCCESS, PENDING, FAILED, NOT_FOUND.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"transaction_id": {Type: schema.String, Desc: "Référence ou ID de la transaction", Required: true},
			"provider":       {Type: schema.String, Desc: "Opérateur (T-Money, Flooz...)"},
		}),
	}
	return newTypedTool(info, func(ctx context.Context, in transactionInput) TransactionOutput {
		tx, err := ledger.LookupTransaction(ctx, in.TransactionID, in.Provider)
		if err != nil {
			log.Warn().Err(err).Str("tool", ToolTransactionStatus).Msg("ledger lookup failed")
			return TransactionOutput{
				TransactionID: in.TransactionID,
				Status:        StatusNotFound,
				Message:       "Le service de vérification des transactions est momentanément indisponible. Le statut n'a pas pu être confirmé.",
				Degraded:      true,
			}
		}
		status := tx.Status
		switch status {
		case StatusSuccess, StatusPending, StatusFailed, StatusNotFound:
		default:
			status = StatusNotFound
		}
		return TransactionOutput{
			TransactionID: in.TransactionID,
			Status:        status,
			Amount:        tx.Amount,
			Message:       tx.Message,
		}
	})
}

type disputeInput struct {
	TransactionID string `json:"transaction_id" validate:"required,min=3,max=64"`
	PhoneNumber   string `json:"phone_number" validate:"required,min=6,max=20"`
	Issue         string `json:"issue" validate:"required,min=3,max=1000"`
}

type DisputeOutput struct {
	TicketID string `json:"ticket_id,omitempty"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
}

const disputeNotice = "Aucun remboursement n'est garanti à ce stade : seul un dossier de litige est ouvert."

func newLogDisputeTool(desk DisputeDesk) *typedTool[disputeInput, DisputeOutput] {
	info := &schema.ToolInfo{
		Name: ToolLogDispute,
		Desc: "Ouvre un dossier de litige pour une transaction en échec. N'effectue AUCUN remboursement : retourne seulement un numéro de dossier.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"transaction_id": {Type: schema.String, Desc: "Référence de la transaction contestée", Required: true},
			"phone_number":   {Type: schema.String, Desc: "Numéro de téléphone du client", Required: true},
			"issue":          {Type: schema.String, Desc: "Description du problème rencontré", Required: true},
		}),
	}
	return newTypedTool(info, func(ctx context.Context, in disputeInput) DisputeOutput {
		d, err := desk.OpenDispute(ctx, DisputeRequest{
			TransactionID: in.TransactionID,
			PhoneNumber:   in.PhoneNumber,
			Issue:         in.Issue,
		})
		if err != nil {
			log.Warn().Err(err).Str("tool", ToolLogDispute).Msg("dispute desk failed")
			return DisputeOutput{
				Status:   "UNAVAILABLE",
				Message:  "Le service litiges est momentanément indisponible. Propose une escalade via un ticket.",
				Degraded: true,
			}
		}
		msg := strings.TrimSpace(d.Message)
		if d.TicketID != "" {
			msg = strings.TrimSpace(msg + " " + disputeNotice)
		}
		return DisputeOutput{TicketID: d.TicketID, Status: d.Status, Message: msg}
	})
}
