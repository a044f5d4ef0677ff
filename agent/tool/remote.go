package tool

import (
	"context"
	"errors"
	"strings"

	backofficex "github.com/tanpawarit/chative-fintech-support/pkg/backoffice"
)

// RemoteBackend serves the payment, KYC and CRM tools from the internal
// fintech API.
type RemoteBackend struct {
	client *backofficex.Client
}

var (
	_ Ledger       = (*RemoteBackend)(nil)
	_ KYCDirectory = (*RemoteBackend)(nil)
	_ DisputeDesk  = (*RemoteBackend)(nil)
	_ CRM          = (*RemoteBackend)(nil)
)

func NewRemoteBackend(client *backofficex.Client) *RemoteBackend {
	return &RemoteBackend{client: client}
}

func (b *RemoteBackend) LookupTransaction(ctx context.Context, reference, provider string) (Transaction, error) {
	tx, err := b.client.Transaction(ctx, reference, provider)
	if errors.Is(err, backofficex.ErrNotFound) {
		return Transaction{
			Reference: reference,
			Provider:  provider,
			Status:    StatusNotFound,
			Message:   "Aucune transaction ne correspond à cette référence.",
		}, nil
	}
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Reference: tx.Reference,
		Provider:  tx.Provider,
		Status:    TransactionStatus(strings.ToUpper(strings.TrimSpace(tx.Status))),
		Amount:    tx.Amount,
		Message:   tx.Message,
	}, nil
}

// LookupKYC treats an unknown customer as unverified rather than failing.
func (b *RemoteBackend) LookupKYC(ctx context.Context, phoneNumber string) (KYCRecord, error) {
	st, err := b.client.KYC(ctx, phoneNumber)
	if errors.Is(err, backofficex.ErrNotFound) {
		return KYCRecord{PhoneNumber: phoneNumber, Verified: false, MissingDocuments: append([]string(nil), defaultMissingDocuments...)}, nil
	}
	if err != nil {
		return KYCRecord{}, err
	}
	return KYCRecord{
		PhoneNumber:      phoneNumber,
		Verified:         st.Verified,
		Level:            st.Level,
		MissingDocuments: st.MissingDocuments,
	}, nil
}

func (b *RemoteBackend) OpenDispute(ctx context.Context, req DisputeRequest) (Dispute, error) {
	d, err := b.client.OpenDispute(ctx, backofficex.DisputeRequest{
		TransactionID: req.TransactionID,
		PhoneNumber:   req.PhoneNumber,
		Issue:         req.Issue,
	})
	if err != nil {
		return Dispute{}, err
	}
	return Dispute{TicketID: d.TicketID, Status: d.Status, Message: d.Message}, nil
}

func (b *RemoteBackend) CreateTicket(ctx context.Context, req TicketRequest) (Ticket, error) {
	t, err := b.client.CreateTicket(ctx, backofficex.TicketRequest{
		Subject:           req.Subject,
		Description:       req.Description,
		Priority:          req.Priority,
		Category:          req.Category,
		CustomerSentiment: req.CustomerSentiment,
	})
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{ID: t.TicketID, EstimatedWaitTime: t.EstimatedWaitTime}, nil
}
