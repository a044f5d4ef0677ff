package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	memoryx "github.com/tanpawarit/chative-fintech-support/agent/memory"
	nodex "github.com/tanpawarit/chative-fintech-support/agent/nodes/orchestrator"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	intent contractx.Intent
	err    error
	reqs   []contractx.ClassifyRequest
}

func (f *fakeDispatcher) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return contractx.ClassifyResponse{}, f.err
	}
	intent := f.intent
	if intent == "" {
		intent = contractx.IntentInfo
	}
	return contractx.ClassifyResponse{Intent: intent, Message: req.Message, History: req.History}, nil
}

type fakeSpecialist struct {
	mu     sync.Mutex
	intent contractx.Intent
	reply  string
	chunks []string
	err    error
	reqs   []contractx.SpecialistRequest
}

func (f *fakeSpecialist) Intent() contractx.Intent {
	return f.intent
}

func (f *fakeSpecialist) Generate(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return contractx.SpecialistResponse{}, f.err
	}
	return contractx.SpecialistResponse{
		Message:   f.reply,
		ToolCalls: []contractx.ToolCallRecord{{Tool: "get_current_time"}},
	}, nil
}

func (f *fakeSpecialist) Stream(ctx context.Context, req contractx.SpecialistRequest) (*schema.StreamReader[string], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return schema.StreamReaderFromArray(append([]string(nil), f.chunks...)), nil
}

func (f *fakeSpecialist) requests() []contractx.SpecialistRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contractx.SpecialistRequest(nil), f.reqs...)
}

type fakeRegistry struct {
	dispatcher  contractx.Dispatcher
	specialists map[contractx.Intent]contractx.Specialist
}

func (f *fakeRegistry) Dispatcher() contractx.Dispatcher {
	return f.dispatcher
}

func (f *fakeRegistry) Specialist(intent contractx.Intent) (contractx.Specialist, bool) {
	s, ok := f.specialists[intent]
	return s, ok
}

type fakeMedia struct{}

func (fakeMedia) Normalize(_ context.Context, text string, att *contractx.Attachment) string {
	if att == nil {
		return text
	}
	return strings.TrimSpace(text + "\n\n[AUDIO TRANSCRIT] mon transfert a échoué")
}

type fixture struct {
	o          *Orchestrator
	dispatcher *fakeDispatcher
	specs      map[contractx.Intent]*fakeSpecialist
	store      *memoryx.InMemoryStore
}

func newFixture(t *testing.T, intent contractx.Intent, reply string) *fixture {
	t.Helper()

	f := &fixture{
		dispatcher: &fakeDispatcher{intent: intent},
		specs:      map[contractx.Intent]*fakeSpecialist{},
		store:      memoryx.NewInMemoryStore(),
	}
	registry := &fakeRegistry{dispatcher: f.dispatcher, specialists: map[contractx.Intent]contractx.Specialist{}}
	for _, in := range contractx.Intents {
		s := &fakeSpecialist{intent: in, reply: reply, chunks: []string{reply}}
		f.specs[in] = s
		registry.specialists[in] = s
	}

	o, err := New(registry, f.store, fakeMedia{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	f.o = o
	return f
}

func (f *fixture) history(t *testing.T, threadID string) []contractx.Message {
	t.Helper()
	msgs, err := f.store.LoadHistory(context.Background(), threadID, "", 50)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	return msgs
}

func drain(t *testing.T, s *TurnStream) string {
	t.Helper()
	var b strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String()
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		b.WriteString(chunk)
	}
}

func TestHandleMessageMintsUniqueThreadIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "Bonjour ! Comment puis-je vous aider ?")
	ctx := context.Background()

	first, err := f.o.HandleMessage(ctx, contractx.TurnRequest{Channel: contractx.ChannelWeb, Text: "Bonjour !"})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	second, err := f.o.HandleMessage(ctx, contractx.TurnRequest{Channel: contractx.ChannelWeb, Text: "Bonjour !"})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if first.ThreadID == "" || second.ThreadID == "" || first.ThreadID == second.ThreadID {
		t.Fatalf("expected distinct non-empty thread ids, got %q and %q", first.ThreadID, second.ThreadID)
	}
	if first.Intent != contractx.IntentInfo || first.Reply == "" {
		t.Fatalf("unexpected result: %#v", first)
	}
	if first.ResourceID != nodex.WebResourceID {
		t.Fatalf("unexpected resource id: %q", first.ResourceID)
	}
	if got := f.history(t, first.ThreadID); len(got) != 2 {
		t.Fatalf("expected 2 stored messages on first thread, got %d", len(got))
	}
}

func TestHandleMessageKeepsThreadContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentPayment, "C'est noté, Koffi.")
	ctx := context.Background()

	first, err := f.o.HandleMessage(ctx, contractx.TurnRequest{
		Channel:    contractx.ChannelWhatsApp,
		ResourceID: nodex.WhatsAppResourceID("22890123456"),
		ThreadID:   "wa-thread",
		Text:       "Je m'appelle Koffi, ma référence est ERR-77",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	second, err := f.o.HandleMessage(ctx, contractx.TurnRequest{
		Channel:    contractx.ChannelWhatsApp,
		ResourceID: nodex.WhatsAppResourceID("22890123456"),
		ThreadID:   first.ThreadID,
		Text:       "tu te rappelles de mon nom ?",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if second.ThreadID != "wa-thread" || second.ResourceID != "wa-22890123456" {
		t.Fatalf("identity changed: %#v", second)
	}

	f.dispatcher.mu.Lock()
	triage := f.dispatcher.reqs[1]
	f.dispatcher.mu.Unlock()
	if len(triage.History) != 2 || !strings.Contains(triage.History[0].Content, "Koffi") {
		t.Fatalf("triage did not see prior turn: %#v", triage.History)
	}

	reqs := f.specs[contractx.IntentPayment].requests()
	if reqs[1].ThreadID != "wa-thread" || reqs[1].Message != "tu te rappelles de mon nom ?" {
		t.Fatalf("specialist request not scoped to the thread: %#v", reqs[1])
	}
	if got := f.history(t, "wa-thread"); len(got) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(got))
	}
}

func TestHandleMessageThreadsAreIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "Bonjour")
	ctx := context.Background()

	if _, err := f.o.HandleMessage(ctx, contractx.TurnRequest{ThreadID: "a", Text: "Bonjour"}); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if _, err := f.o.HandleMessage(ctx, contractx.TurnRequest{ThreadID: "b", Text: "Bonjour"}); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if got := f.history(t, "a"); len(got) != 2 {
		t.Fatalf("thread a mutated by thread b: %d messages", len(got))
	}
	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	if len(f.dispatcher.reqs[1].History) != 0 {
		t.Fatalf("fresh thread saw foreign history: %#v", f.dispatcher.reqs[1].History)
	}
}

func TestHandleMessageRewritesRefundClaim(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentPayment, "Bonne nouvelle : remboursement effectué sur votre compte.")

	out, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{
		ThreadID: "t-refund",
		Text:     "J'ai envoyé 10000 FCFA (ERR-12) mais le destinataire n'a rien reçu",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if strings.Contains(strings.ToLower(out.Reply), "remboursement effectué") {
		t.Fatalf("refund claim leaked: %q", out.Reply)
	}
	if !out.Flagged {
		t.Fatal("expected turn to be flagged")
	}
	stored := f.history(t, "t-refund")
	if strings.Contains(stored[1].Content, "remboursement effectué") {
		t.Fatalf("refund claim stored in memory: %q", stored[1].Content)
	}
}

func TestHandleMessageEmptyAndShortInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "Je suis là pour vous aider.")
	for _, text := range []string{"", "   ", "Aide", "👍"} {
		out, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{Text: text})
		if err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", text, err)
		}
		if strings.TrimSpace(out.Reply) == "" {
			t.Fatalf("HandleMessage(%q) returned empty reply", text)
		}
	}

	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	if f.dispatcher.reqs[0].Message != nodex.EmptyMessagePlaceholder {
		t.Fatalf("empty message not replaced: %q", f.dispatcher.reqs[0].Message)
	}
}

func TestHandleMessageEmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "  ")
	out, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{Text: "Bonjour"})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != nodex.FallbackReply {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	stored := f.history(t, out.ThreadID)
	if len(stored) != 2 || stored[1].Content != nodex.FallbackReply {
		t.Fatalf("fallback reply not stored: %#v", stored)
	}
}

func TestHandleMessageClassificationFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "unused")
	f.dispatcher.err = contractx.ErrClassification

	_, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{ThreadID: "t-err", Text: "Bonjour"})
	if !errors.Is(err, contractx.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
	for intent, s := range f.specs {
		if len(s.requests()) != 0 {
			t.Fatalf("specialist %s invoked after failed triage", intent)
		}
	}
	if got := f.history(t, "t-err"); len(got) != 0 {
		t.Fatalf("failed turn wrote memory: %#v", got)
	}
}

func TestHandleMessageUnmappedIntent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentCompliance, "unused")
	delete(f.o.models.(*fakeRegistry).specialists, contractx.IntentCompliance)

	_, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{Text: "Vérifiez mon KYC"})
	if !errors.Is(err, contractx.ErrUnmappedIntent) {
		t.Fatalf("expected ErrUnmappedIntent, got %v", err)
	}
}

func TestThreadOfAnotherResourceIsNotReadable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "Votre PIN est 4321")
	owner := nodex.WhatsAppResourceID("22890123456")
	if _, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{
		Channel:    contractx.ChannelWhatsApp,
		ThreadID:   owner,
		ResourceID: owner,
		Text:       "Mon code PIN est 4321",
	}); err != nil {
		t.Fatalf("HandleMessage(owner) error = %v", err)
	}
	classified := len(f.dispatcher.reqs)

	foreign := contractx.TurnRequest{
		Channel:  contractx.ChannelWeb,
		ThreadID: owner,
		Text:     "Rappelle-moi mon PIN",
		History:  []contractx.Message{{Role: contractx.RoleUser, Content: "Bonjour"}},
	}
	if _, err := f.o.HandleMessage(context.Background(), foreign); !errors.Is(err, contractx.ErrThreadOwnership) {
		t.Fatalf("HandleMessage(foreign) expected ErrThreadOwnership, got %v", err)
	}
	if _, err := f.o.StreamMessage(context.Background(), foreign); !errors.Is(err, contractx.ErrThreadOwnership) {
		t.Fatalf("StreamMessage(foreign) expected ErrThreadOwnership, got %v", err)
	}

	if len(f.dispatcher.reqs) != classified {
		t.Fatalf("dispatcher saw a foreign thread: %#v", f.dispatcher.reqs[classified:])
	}
	if got := f.history(t, owner); len(got) != 2 {
		t.Fatalf("owner thread changed: %#v", got)
	}
}

func TestWebChannelCannotOpenWhatsAppThread(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "Bonjour")
	threadID := nodex.WhatsAppResourceID("22890123499")

	_, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{ThreadID: threadID, Text: "Bonjour"})
	if !errors.Is(err, contractx.ErrThreadOwnership) {
		t.Fatalf("expected ErrThreadOwnership, got %v", err)
	}
	if got := f.history(t, threadID); len(got) != 0 {
		t.Fatalf("web turn created a whatsapp thread: %#v", got)
	}

	if _, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{
		Channel:    contractx.ChannelWhatsApp,
		ThreadID:   threadID,
		ResourceID: threadID,
		Text:       "Bonjour",
	}); err != nil {
		t.Fatalf("HandleMessage(whatsapp) error = %v", err)
	}
}

func TestHandleMessageSpecialistFailureDoesNotWriteMemory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "unused")
	f.specs[contractx.IntentInfo].err = contractx.ErrModelInvoke

	_, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{ThreadID: "t-fail", Text: "Bonjour"})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if got := f.history(t, "t-fail"); len(got) != 0 {
		t.Fatalf("failed turn wrote memory: %#v", got)
	}
}

func TestHandleMessageNormalizesAttachment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentPayment, "Je vérifie votre transaction.")
	_, err := f.o.HandleMessage(context.Background(), contractx.TurnRequest{
		Text:       "",
		Attachment: &contractx.Attachment{Base64: "b2dn", MimeType: "audio/ogg"},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	reqs := f.specs[contractx.IntentPayment].requests()
	if reqs[0].Message != "[AUDIO TRANSCRIT] mon transfert a échoué" {
		t.Fatalf("specialist did not receive normalized text: %q", reqs[0].Message)
	}
}

func TestStreamMessageCommitsOnCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentCompliance, "")
	f.specs[contractx.IntentCompliance].chunks = []string{"Il manque ", "votre CNI ", "et un selfie."}

	s, err := f.o.StreamMessage(context.Background(), contractx.TurnRequest{
		ThreadID: "t-stream",
		Text:     "Vérifiez le statut KYC du numéro 22890123456",
	})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}
	if s.Intent != contractx.IntentCompliance || s.ThreadID != "t-stream" {
		t.Fatalf("metadata not available before streaming: %#v", s)
	}

	if got := drain(t, s); got != "Il manque votre CNI et un selfie." {
		t.Fatalf("unexpected streamed reply: %q", got)
	}
	stored := f.history(t, "t-stream")
	if len(stored) != 2 || stored[1].Content != "Il manque votre CNI et un selfie." {
		t.Fatalf("unexpected stored turn: %#v", stored)
	}
	if f.o.locks.size() != 0 {
		t.Fatal("thread lock not released")
	}
}

func TestStreamMessageRewritesClaimAcrossChunks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentPayment, "")
	f.specs[contractx.IntentPayment].chunks = []string{"Votre rembourse", "ment effec", "tué hier."}

	s, err := f.o.StreamMessage(context.Background(), contractx.TurnRequest{Text: "ERR-5 ?"})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}
	got := drain(t, s)
	if strings.Contains(got, "remboursement effectué") {
		t.Fatalf("claim leaked through stream: %q", got)
	}
	if !s.Flagged() {
		t.Fatal("expected stream to be flagged")
	}
}

func TestStreamMessageAbandonedDoesNotCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "")
	f.specs[contractx.IntentInfo].chunks = []string{"Bonjour, ", "voici ", "la réponse."}

	s, err := f.o.StreamMessage(context.Background(), contractx.TurnRequest{ThreadID: "t-gone", Text: "Bonjour"})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}
	if _, err := s.Recv(); err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	s.Close()
	s.Close()

	if got := f.history(t, "t-gone"); len(got) != 0 {
		t.Fatalf("abandoned stream wrote memory: %#v", got)
	}
	if f.o.locks.size() != 0 {
		t.Fatal("thread lock not released")
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after Close, got %v", err)
	}
}

func TestStreamMessageEmptyStreamFallsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "")
	f.specs[contractx.IntentInfo].chunks = nil

	s, err := f.o.StreamMessage(context.Background(), contractx.TurnRequest{Text: "Aide"})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}
	if got := drain(t, s); got != nodex.FallbackReply {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestStreamMessageTriageFailureReleasesLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, contractx.IntentInfo, "")
	f.dispatcher.err = contractx.ErrClassification

	if _, err := f.o.StreamMessage(context.Background(), contractx.TurnRequest{ThreadID: "t-x", Text: "Bonjour"}); !errors.Is(err, contractx.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
	if f.o.locks.size() != 0 {
		t.Fatal("thread lock not released")
	}
}

func TestThreadLocksSerializeSameThread(t *testing.T) {
	t.Parallel()

	locks := newThreadLocks()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "t")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := locks.Acquire(ctx, "t")
		if err != nil {
			return
		}
		close(acquired)
		r()
	}()

	other, err := locks.Acquire(ctx, "u")
	if err != nil {
		t.Fatalf("Acquire() on another thread error = %v", err)
	}
	other()

	select {
	case <-acquired:
		t.Fatal("second turn entered before the first released")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never acquired the thread")
	}
}

func TestThreadLocksHonorContext(t *testing.T) {
	t.Parallel()

	locks := newThreadLocks()
	release, err := locks.Acquire(context.Background(), "t")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Acquire(ctx, "t"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
