package tool

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	tenantx "github.com/tanpawarit/chative-fintech-support/agent/tenant"
)

// Deps wires the tool catalog to its backends. Nil backends fall back to a
// shared MockBackend; a nil Documents searcher makes document search report
// the knowledge base as unavailable.
type Deps struct {
	Tenant    tenantx.Config
	Ledger    Ledger
	KYC       KYCDirectory
	Disputes  DisputeDesk
	CRM       CRM
	Documents DocumentSearcher
	Now       func() time.Time
}

func NewCatalog(ctx context.Context, deps Deps) (*Registry, error) {
	var mock *MockBackend
	fallback := func() *MockBackend {
		if mock == nil {
			mock = NewMockBackend()
			log.Info().Msg("tool backends not configured, using mock backend")
		}
		return mock
	}
	if deps.Ledger == nil {
		deps.Ledger = fallback()
	}
	if deps.KYC == nil {
		deps.KYC = fallback()
	}
	if deps.Disputes == nil {
		deps.Disputes = fallback()
	}
	if deps.CRM == nil {
		deps.CRM = fallback()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	loc, err := time.LoadLocation(deps.Tenant.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", deps.Tenant.Timezone).Msg("unknown tenant timezone, using UTC")
		loc = time.UTC
	}

	return NewRegistry(ctx,
		newCurrentTimeTool(deps.Now, loc),
		newTransactionStatusTool(deps.Ledger),
		newKYCStatusTool(deps.KYC),
		newLogDisputeTool(deps.Disputes),
		newSearchDocumentationTool(deps.Documents),
		newCreateCRMTicketTool(deps.CRM),
		newEstimateFeesTool(deps.Tenant),
	)
}
