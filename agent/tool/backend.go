package tool

import "context"

type TransactionStatus string

const (
	StatusSuccess  TransactionStatus = "SUCCESS"
	StatusPending  TransactionStatus = "PENDING"
	StatusFailed   TransactionStatus = "FAILED"
	StatusNotFound TransactionStatus = "NOT_FOUND"
)

type Transaction struct {
	Reference string
	Provider  string
	Status    TransactionStatus
	Amount    string
	Message   string
}

type KYCRecord struct {
	PhoneNumber      string
	Verified         bool
	Level            string
	MissingDocuments []string
}

type DisputeRequest struct {
	TransactionID string
	PhoneNumber   string
	Issue         string
}

type Dispute struct {
	TicketID string
	Status   string
	Message  string
}

type TicketRequest struct {
	Subject           string
	Description       string
	Priority          string
	Category          string
	CustomerSentiment string
}

type Ticket struct {
	ID                string
	EstimatedWaitTime string
}

type Passage struct {
	URL      string
	Content  string
	Distance float64
}

type Ledger interface {
	LookupTransaction(ctx context.Context, reference, provider string) (Transaction, error)
}

type KYCDirectory interface {
	LookupKYC(ctx context.Context, phoneNumber string) (KYCRecord, error)
}

type DisputeDesk interface {
	OpenDispute(ctx context.Context, req DisputeRequest) (Dispute, error)
}

type CRM interface {
	CreateTicket(ctx context.Context, req TicketRequest) (Ticket, error)
}

type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}
