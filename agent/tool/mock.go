package tool

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// MockBackend is the in-process stand-in for the ledger, KYC directory,
// dispute desk and CRM. Outcomes are derived from the input so that
// conversations can be replayed deterministically.
type MockBackend struct {
	disputeSeq atomic.Int64
	ticketSeq  atomic.Int64
}

var (
	_ Ledger       = (*MockBackend)(nil)
	_ KYCDirectory = (*MockBackend)(nil)
	_ DisputeDesk  = (*MockBackend)(nil)
	_ CRM          = (*MockBackend)(nil)
)

var defaultMissingDocuments = []string{"CNI Recto/Verso", "Selfie"}

func NewMockBackend() *MockBackend {
	m := &MockBackend{}
	m.disputeSeq.Store(1000)
	m.ticketSeq.Store(1000)
	return m
}

func (m *MockBackend) LookupTransaction(_ context.Context, reference, provider string) (Transaction, error) {
	ref := strings.ToUpper(strings.TrimSpace(reference))
	tx := Transaction{Reference: reference, Provider: provider}

	switch {
	case strings.HasPrefix(ref, "ERR"):
		tx.Status = StatusFailed
		tx.Message = "Transaction échouée chez l'opérateur. Les fonds n'ont pas été transférés au destinataire."
	case strings.HasPrefix(ref, "PEN"):
		tx.Status = StatusPending
		tx.Message = "Transaction en cours de traitement chez l'opérateur. Merci de patienter jusqu'à 24h."
	default:
		tx.Status = StatusSuccess
		tx.Amount = "5000 FCFA"
		tx.Message = "Transaction réussie."
	}
	return tx, nil
}

func (m *MockBackend) LookupKYC(_ context.Context, phoneNumber string) (KYCRecord, error) {
	digits := digitsOnly(phoneNumber)
	if strings.HasSuffix(digits, "00") {
		return KYCRecord{PhoneNumber: phoneNumber, Verified: true, Level: "FULL"}, nil
	}
	missing := make([]string, len(defaultMissingDocuments))
	copy(missing, defaultMissingDocuments)
	return KYCRecord{PhoneNumber: phoneNumber, Verified: false, Level: "BASIC", MissingDocuments: missing}, nil
}

func (m *MockBackend) OpenDispute(_ context.Context, req DisputeRequest) (Dispute, error) {
	ref := strings.ToUpper(strings.TrimSpace(req.TransactionID))
	if !strings.HasPrefix(ref, "ERR") {
		return Dispute{
			Status:  "INELIGIBLE",
			Message: "La transaction n'est pas en échec chez l'opérateur, aucun litige ne peut être ouvert.",
		}, nil
	}
	id := fmt.Sprintf("DSP-%04d", m.disputeSeq.Add(1))
	return Dispute{
		TicketID: id,
		Status:   "OPEN",
		Message:  fmt.Sprintf("Litige %s ouvert. L'équipe litiges examinera la transaction sous 48h.", id),
	}, nil
}

func (m *MockBackend) CreateTicket(_ context.Context, req TicketRequest) (Ticket, error) {
	wait := "2 heures"
	if req.Priority == "urgent" {
		wait = "30 minutes"
	}
	return Ticket{
		ID:                fmt.Sprintf("TICKET-%04d", m.ticketSeq.Add(1)),
		EstimatedWaitTime: wait,
	}, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
