package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
	"sales-agent/internal/flow"
	"sales-agent/internal/intent"
	"sales-agent/internal/llm"
	"sales-agent/internal/reconcile"
)

type fakeCatalog struct {
	products []domain.Product
}

func (f *fakeCatalog) Products(context.Context) []domain.Product {
	return f.products
}

type fakeRouter struct {
	group   string
	replies []string
	err     error
	calls   []llm.Request
	groups  []string
}

func (f *fakeRouter) AssignGroup() string {
	if f.group == "" {
		return llm.GroupA
	}
	return f.group
}

func (f *fakeRouter) ModelFor(group string) string {
	return "model-" + group
}

func (f *fakeRouter) Generate(_ context.Context, group string, req llm.Request) (string, error) {
	f.calls = append(f.calls, req)
	f.groups = append(f.groups, group)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "Certo!", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeRouter) lastCall(t *testing.T) llm.Request {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	getErr   error
	saveErr  error
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*domain.Session)}
}

func (f *fakeStore) Get(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.sessions[id].Clone(), nil
}

func (f *fakeStore) Save(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *fakeStore) stored(t *testing.T, id string) *domain.Session {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	require.True(t, ok, "session %s not stored", id)
	return s.Clone()
}

type fakeSink struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
	err   error
}

func (f *fakeSink) SaveSnapshot(_ context.Context, snap domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
	return f.err
}

func (f *fakeSink) all() []domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Snapshot(nil), f.snaps...)
}

type harness struct {
	svc    *SalesService
	router *fakeRouter
	store  *fakeStore
	sink   *fakeSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ids := 0
	origUUID, origNow := newUUID, now
	newUUID = func() string {
		ids++
		return fmt.Sprintf("session-%d", ids)
	}
	now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { newUUID, now = origUUID, origNow })

	m, err := flow.New(intent.NewKeywordClassifier())
	require.NoError(t, err)
	rec, err := reconcile.New(m)
	require.NoError(t, err)

	h := &harness{router: &fakeRouter{}, store: newFakeStore(), sink: &fakeSink{}}
	h.svc, err = NewSalesService(&fakeCatalog{products: catalog.DefaultProducts}, h.router, h.store, h.sink, m, rec, Options{})
	require.NoError(t, err)
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	out, err := h.svc.StartSession(context.Background(), StartInput{})
	require.NoError(t, err)
	return out.SessionID
}

func (h *harness) say(t *testing.T, id, text string) TurnOutput {
	t.Helper()
	out, err := h.svc.SubmitTurn(context.Background(), TurnInput{SessionID: id, Text: text})
	require.NoError(t, err)
	return out
}

func requireCode(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, code, ue.Code)
	require.Equal(t, reason, ue.Reason)
}

func TestNewSalesService_NilDependencies(t *testing.T) {
	m, err := flow.New(intent.NewKeywordClassifier())
	require.NoError(t, err)
	rec, err := reconcile.New(m)
	require.NoError(t, err)
	c, r, st, sk := &fakeCatalog{}, &fakeRouter{}, newFakeStore(), &fakeSink{}

	_, err = NewSalesService(nil, r, st, sk, m, rec, Options{})
	require.Error(t, err)
	_, err = NewSalesService(c, nil, st, sk, m, rec, Options{})
	require.Error(t, err)
	_, err = NewSalesService(c, r, nil, sk, m, rec, Options{})
	require.Error(t, err)
	_, err = NewSalesService(c, r, st, nil, m, rec, Options{})
	require.Error(t, err)
	_, err = NewSalesService(c, r, st, sk, nil, rec, Options{})
	require.Error(t, err)
	_, err = NewSalesService(c, r, st, sk, m, nil, Options{})
	require.Error(t, err)

	svc, err := NewSalesService(c, r, st, sk, m, rec, Options{})
	require.NoError(t, err)
	require.Equal(t, defaultLLMTimeout, svc.opts.LLMTimeout)
	require.Equal(t, defaultMaxInputLength, svc.opts.MaxInputLength)
}

func TestStartSession_GreetsAndStores(t *testing.T) {
	h := newHarness(t)
	h.router.group = llm.GroupB

	out, err := h.svc.StartSession(context.Background(), StartInput{})
	require.NoError(t, err)
	require.Equal(t, "session-1", out.SessionID)
	require.Equal(t, greetingMessage, out.Reply)
	require.Equal(t, domain.StateGreeting, out.State)

	s := h.store.stored(t, "session-1")
	require.Equal(t, llm.GroupB, s.ExperimentGroup)
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleAssistant, Content: greetingMessage}}, s.History)
	require.False(t, s.Saved)
}

func TestStartSession_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.saveErr = errors.New("redis down")
	_, err := h.svc.StartSession(context.Background(), StartInput{})
	requireCode(t, err, ErrorInternal, ReasonSessionWrite)
}

func TestStartSession_AbandonsUnsavedPrevious(t *testing.T) {
	h := newHarness(t)
	prev := h.start(t)
	h.say(t, prev, "quero um NovoPhone X12")

	out, err := h.svc.StartSession(context.Background(), StartInput{PreviousSessionID: prev})
	require.NoError(t, err)
	require.NotEqual(t, prev, out.SessionID)
	h.svc.Close()

	snaps := h.sink.all()
	require.Len(t, snaps, 1)
	require.Equal(t, prev, snaps[0].SessionID)
	require.Equal(t, domain.StateProductPendingConfirm, snaps[0].FinalState)
	require.Equal(t, "model-A", snaps[0].ModelUsed)
	require.True(t, h.store.stored(t, prev).Saved)

	_, err = h.svc.StartSession(context.Background(), StartInput{PreviousSessionID: prev})
	require.NoError(t, err)
	h.svc.Close()
	require.Len(t, h.sink.all(), 1, "a saved session is not snapshotted twice")
}

func TestStartSession_UnknownPreviousIsIgnored(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartSession(context.Background(), StartInput{PreviousSessionID: "gone"})
	require.NoError(t, err)
	h.svc.Close()
	require.Empty(t, h.sink.all())
}

func TestSubmitTurn_InputValidation(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	saves := h.store.saves

	_, err := h.svc.SubmitTurn(context.Background(), TurnInput{SessionID: id, Text: "   "})
	require.True(t, IsEmptyInput(err))
	requireCode(t, err, ErrorInvalidInput, ReasonEmptyInput)

	_, err = h.svc.SubmitTurn(context.Background(), TurnInput{SessionID: id, Text: strings.Repeat("á", 501)})
	requireCode(t, err, ErrorInvalidInput, ReasonInputTooLong)
	require.False(t, IsEmptyInput(err))

	_, err = h.svc.SubmitTurn(context.Background(), TurnInput{Text: "oi"})
	requireCode(t, err, ErrorInvalidInput, ReasonMissingSessionID)

	require.Equal(t, saves, h.store.saves)
	require.Equal(t, domain.StateGreeting, h.store.stored(t, id).State)
	require.Empty(t, h.router.calls)
}

func TestSubmitTurn_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SubmitTurn(context.Background(), TurnInput{SessionID: "nope", Text: "oi"})
	requireCode(t, err, ErrorSessionNotFound, ReasonUnknownSession)
}

func TestSubmitTurn_StoreReadFailure(t *testing.T) {
	h := newHarness(t)
	h.store.getErr = errors.New("timeout")
	_, err := h.svc.SubmitTurn(context.Background(), TurnInput{SessionID: "s", Text: "oi"})
	requireCode(t, err, ErrorInternal, ReasonSessionRead)
}

func TestSubmitTurn_ProductMentionAsksForConfirmation(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.router.replies = []string{`{"chat_state": "BROWSING", "resposta": "O NovoPhone X12 custa R$ 3.499,00. Gostaria de adicioná-lo ao carrinho?"}`}

	out := h.say(t, id, "quero um NovoPhone X12")
	require.Equal(t, domain.StateProductPendingConfirm, out.State)
	require.Equal(t, "O NovoPhone X12 custa R$ 3.499,00. Gostaria de adicioná-lo ao carrinho?", out.Reply)

	s := h.store.stored(t, id)
	require.Equal(t, "NovoPhone X12", s.PendingProduct.Name)
	require.Len(t, s.History, 3)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "quero um NovoPhone X12"}, s.History[1])
	require.Equal(t, domain.RoleAssistant, s.History[2].Role)

	req := h.router.lastCall(t)
	require.Contains(t, req.System, "- Smartphone: NovoPhone X12 - R$ 3.499,00")
	require.Contains(t, req.Instruction, "NovoPhone X12")
	require.Equal(t, "quero um NovoPhone X12", req.History[len(req.History)-1].Content)
}

func TestSubmitTurn_FullPurchase(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	require.Equal(t, domain.StateProductPendingConfirm, h.say(t, id, "quero um NovoPhone X12").State)
	require.Equal(t, domain.StateItemAddedAskMore, h.say(t, id, "sim").State)
	require.Equal(t, domain.StateAwaitingName, h.say(t, id, "quero finalizar").State)

	out := h.say(t, id, "x")
	require.Equal(t, domain.StateAwaitingName, out.State)
	require.True(t, h.store.stored(t, id).LastInputInvalid)
	require.Contains(t, h.router.lastCall(t).Instruction, "não é um nome válido")

	require.Equal(t, domain.StateAwaitingEmail, h.say(t, id, "Maria Silva").State)
	require.False(t, h.store.stored(t, id).LastInputInvalid)
	require.NotContains(t, h.router.lastCall(t).Instruction, "inválido")

	require.Equal(t, domain.StateAwaitingPhone, h.say(t, id, "maria@example.com").State)

	h.router.replies = []string{`{"chat_state": "proposta_final", "resposta": "Proposta: NovoPhone X12, total R$ 3.499,00. Pague em http://marketplace-39A/session-1"}`}
	out = h.say(t, id, "(11) 91234-5678")
	require.Equal(t, domain.StateFinalized, out.State)
	require.Contains(t, h.router.lastCall(t).Instruction, "http://marketplace-39A/session-1")

	s := h.store.stored(t, id)
	require.Equal(t, domain.Customer{Name: "Maria Silva", Email: "maria@example.com", Phone: "(11) 91234-5678"}, s.Customer)
	require.True(t, s.Saved)

	h.svc.Close()
	snaps := h.sink.all()
	require.Len(t, snaps, 1)
	require.Equal(t, domain.StateFinalized, snaps[0].FinalState)
	require.Equal(t, 1, snaps[0].CartItemCount)
	require.Equal(t, "3499", snaps[0].TotalValue.String())
	require.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), snaps[0].Timestamp)

	calls := len(h.router.calls)
	out = h.say(t, id, "mais uma coisa")
	require.Equal(t, closingMessage, out.Reply)
	require.Equal(t, domain.StateFinalized, out.State)
	require.Len(t, h.router.calls, calls)
}

func TestSubmitTurn_ModelProposalIsGated(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.router.replies = []string{`{"chat_state": "PRODUCT_CHOSEN_PENDING_CONFIRM", "resposta": "Temos o GameBox X. Quer adicionar?", "product_selected_for_cart": {"nome": "GameBox X", "preço": "2.999,00"}}`}

	out := h.say(t, id, "procuro um videogame")
	require.Equal(t, domain.StateProductPendingConfirm, out.State)
	require.Equal(t, "p8", h.store.stored(t, id).PendingProduct.ID)

	h.router.replies = []string{`{"chat_state": "PROPOSAL_READY", "resposta": "Pronto!", "cart": [{"nome": "GameBox X"}, {"nome": "Geladeira"}]}`}
	out = h.say(t, id, "hmm, talvez")
	require.Equal(t, domain.StateProductPendingConfirm, out.State)
	require.Empty(t, h.store.stored(t, id).Cart)
}

func TestSubmitTurn_GenerationFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, "quero um NovoPhone X12")
	before := h.store.stored(t, id)

	h.router.err = errors.New("context deadline exceeded")
	out := h.say(t, id, "sim")
	require.Equal(t, apologyMessage, out.Reply)
	require.Equal(t, domain.StateProductPendingConfirm, out.State)
	require.Equal(t, before, h.store.stored(t, id))

	h.router.err = nil
	require.Equal(t, domain.StateItemAddedAskMore, h.say(t, id, "sim").State)
}

func TestSubmitTurn_SnapshotFailureDoesNotFailTurn(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("dynamodb unavailable")
	id := h.start(t)
	h.router.replies = []string{"Link: https://pagamento.example/1"}

	h.store.mu.Lock()
	s := h.store.sessions[id]
	s.State = domain.StateAwaitingPhone
	item, _ := catalog.LineItem(catalog.DefaultProducts[4])
	s.Cart = []domain.LineItem{item}
	s.RecomputeTotal()
	s.Customer = domain.Customer{Name: "Maria Silva", Email: "maria@example.com"}
	h.store.mu.Unlock()

	out := h.say(t, id, "11912345678")
	require.Equal(t, domain.StateFinalized, out.State)
	h.svc.Close()
	require.Len(t, h.sink.all(), 1)
	require.True(t, h.store.stored(t, id).Saved)
}

func TestSubmitTurn_SessionWriteFailureStillReplies(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.store.saveErr = errors.New("redis down")

	out := h.say(t, id, "quero um NovoPhone X12")
	require.Equal(t, domain.StateProductPendingConfirm, out.State)
}

func TestSubmitTurn_UnknownStateMovesToError(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.store.mu.Lock()
	h.store.sessions[id].State = "proposta_final"
	h.store.mu.Unlock()

	out := h.say(t, id, "oi")
	require.Equal(t, domain.StateError, out.State)
	require.Equal(t, errorStateMessage, out.Reply)
	require.Empty(t, h.router.calls)

	out = h.say(t, id, "oi de novo")
	require.Equal(t, domain.StateError, out.State)
	require.Equal(t, errorStateMessage, out.Reply)

	h.svc.Close()
	snaps := h.sink.all()
	require.Len(t, snaps, 1)
	require.Equal(t, domain.StateError, snaps[0].FinalState)
	require.Equal(t, id, snaps[0].SessionID)
	require.True(t, h.store.stored(t, id).Saved)
}

func TestSubmitTurn_RepairsBeforePrompting(t *testing.T) {
	t.Run("contact step without a cart", func(t *testing.T) {
		h := newHarness(t)
		id := h.start(t)
		h.store.mu.Lock()
		h.store.sessions[id].State = domain.StateAwaitingName
		h.store.mu.Unlock()

		out := h.say(t, id, "Maria Silva")
		require.Equal(t, domain.StateBrowsing, out.State)

		instruction := h.router.lastCall(t).Instruction
		require.Contains(t, instruction, "Estado atual da conversa: BROWSING.")
		require.NotContains(t, instruction, "email")

		stored := h.store.stored(t, id)
		require.Equal(t, domain.StateBrowsing, stored.State)
		require.Empty(t, stored.Customer.Name)
	})

	t.Run("proposal without contact data", func(t *testing.T) {
		h := newHarness(t)
		id := h.start(t)
		h.store.mu.Lock()
		s := h.store.sessions[id]
		s.State = domain.StateProposalReady
		item, _ := catalog.LineItem(catalog.DefaultProducts[0])
		s.Cart = []domain.LineItem{item}
		s.RecomputeTotal()
		h.store.mu.Unlock()

		out := h.say(t, id, "oi")
		require.Equal(t, domain.StateAwaitingName, out.State)

		instruction := h.router.lastCall(t).Instruction
		require.NotContains(t, instruction, checkoutURLPrefix)
		require.Contains(t, instruction, "Peça o nome completo")
		require.Contains(t, instruction, "Estado atual da conversa: AWAITING_NAME.")

		h.svc.Close()
		require.Empty(t, h.sink.all())
		require.False(t, h.store.stored(t, id).Saved)
	})
}

func TestSubmitTurn_UsesSessionGroup(t *testing.T) {
	h := newHarness(t)
	h.router.group = llm.GroupB
	id := h.start(t)
	h.say(t, id, "oi")
	require.Equal(t, []string{llm.GroupB}, h.router.groups)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock("s-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
	require.Empty(t, k.locks)
}
