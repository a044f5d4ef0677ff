// Package channeltest builds a real orchestrator over scripted models for
// channel adapter tests.
package channeltest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	orchestratorx "github.com/tanpawarit/chative-fintech-support/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	memoryx "github.com/tanpawarit/chative-fintech-support/agent/memory"
)

type Script struct {
	Intent      contractx.Intent
	Chunks      []string
	ClassifyErr error
	GenerateErr error
}

type Specialist struct {
	script Script

	mu       sync.Mutex
	requests []contractx.SpecialistRequest
}

func (s *Specialist) Intent() contractx.Intent {
	return s.script.Intent
}

func (s *Specialist) Generate(_ context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	s.record(req)
	if s.script.GenerateErr != nil {
		return contractx.SpecialistResponse{}, s.script.GenerateErr
	}
	return contractx.SpecialistResponse{Message: strings.Join(s.script.Chunks, "")}, nil
}

func (s *Specialist) Stream(_ context.Context, req contractx.SpecialistRequest) (*schema.StreamReader[string], error) {
	s.record(req)
	if s.script.GenerateErr != nil {
		return nil, s.script.GenerateErr
	}
	return schema.StreamReaderFromArray(s.script.Chunks), nil
}

func (s *Specialist) Requests() []contractx.SpecialistRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contractx.SpecialistRequest(nil), s.requests...)
}

func (s *Specialist) record(req contractx.SpecialistRequest) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

type dispatcher struct {
	script Script
}

func (d dispatcher) Classify(_ context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	if d.script.ClassifyErr != nil {
		return contractx.ClassifyResponse{}, d.script.ClassifyErr
	}
	return contractx.ClassifyResponse{
		Intent:  d.script.Intent,
		Message: req.Message,
		History: req.History,
		Raw:     d.script.Intent.Label(),
	}, nil
}

type registry struct {
	dispatcher contractx.Dispatcher
	specialist *Specialist
}

func (r registry) Dispatcher() contractx.Dispatcher {
	return r.dispatcher
}

func (r registry) Specialist(intent contractx.Intent) (contractx.Specialist, bool) {
	if intent != r.specialist.script.Intent {
		return nil, false
	}
	return r.specialist, true
}

type Fixture struct {
	Orchestrator *orchestratorx.Orchestrator
	Memory       *memoryx.InMemoryStore
	Specialist   *Specialist
}

func New(t testing.TB, script Script) *Fixture {
	t.Helper()
	if script.Intent == "" {
		script.Intent = contractx.IntentInfo
	}
	sp := &Specialist{script: script}
	mem := memoryx.NewInMemoryStore()
	orch, err := orchestratorx.New(registry{dispatcher: dispatcher{script: script}, specialist: sp}, mem, nil, nil)
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	return &Fixture{Orchestrator: orch, Memory: mem, Specialist: sp}
}
