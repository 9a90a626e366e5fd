package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"sales-agent/internal/domain"
	"sales-agent/internal/flow"
	"sales-agent/internal/llm"
	"sales-agent/internal/reconcile"
)

const (
	defaultLLMTimeout      = 60 * time.Second
	defaultSnapshotTimeout = 5 * time.Second
	defaultMaxInputLength  = 500
)

type Catalog interface {
	Products(ctx context.Context) []domain.Product
}

// ModelRouter assigns experiment groups and generates replies for them.
type ModelRouter interface {
	AssignGroup() string
	ModelFor(group string) string
	Generate(ctx context.Context, group string, req llm.Request) (string, error)
}

type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
}

type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
}

type Options struct {
	LLMTimeout      time.Duration
	SnapshotTimeout time.Duration
	MaxInputLength  int
}

type SalesService struct {
	catalog    Catalog
	router     ModelRouter
	sessions   SessionStore
	snapshots  SnapshotSink
	machine    *flow.Machine
	reconciler *reconcile.Reconciler
	opts       Options

	locks    keyedMutex
	inflight sync.WaitGroup
}

type StartInput struct {
	// PreviousSessionID names the session being replaced, if any. An unsaved
	// previous session is recorded as abandoned.
	PreviousSessionID string
}

type TurnInput struct {
	SessionID string
	Text      string
}

type TurnOutput struct {
	SessionID string
	Reply     string
	State     domain.State
}

func NewSalesService(c Catalog, r ModelRouter, store SessionStore, sink SnapshotSink, m *flow.Machine, rec *reconcile.Reconciler, opts Options) (*SalesService, error) {
	if c == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: model router must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if sink == nil {
		return nil, errors.New("usecase: snapshot sink must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: flow machine must not be nil")
	}
	if rec == nil {
		return nil, errors.New("usecase: reconciler must not be nil")
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = defaultLLMTimeout
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = defaultSnapshotTimeout
	}
	if opts.MaxInputLength <= 0 {
		opts.MaxInputLength = defaultMaxInputLength
	}
	return &SalesService{
		catalog:    c,
		router:     r,
		sessions:   store,
		snapshots:  sink,
		machine:    m,
		reconciler: rec,
		opts:       opts,
	}, nil
}

// StartSession opens a new conversation and returns the greeting.
func (s *SalesService) StartSession(ctx context.Context, in StartInput) (TurnOutput, error) {
	if prev := strings.TrimSpace(in.PreviousSessionID); prev != "" {
		s.abandon(ctx, prev)
	}

	sess := &domain.Session{
		ID:              newUUID(),
		State:           domain.StateGreeting,
		ExperimentGroup: s.router.AssignGroup(),
	}
	sess.RecomputeTotal()
	sess.AppendTurn(domain.RoleAssistant, greetingMessage)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return TurnOutput{}, newError(ErrorInternal, ReasonSessionWrite, err)
	}
	slog.Info("usecase: session started", "session_id", sess.ID, "group", sess.ExperimentGroup, "model", s.router.ModelFor(sess.ExperimentGroup))
	return TurnOutput{SessionID: sess.ID, Reply: greetingMessage, State: sess.State}, nil
}

// SubmitTurn processes one user message. Turns for the same session are
// serialized.
func (s *SalesService) SubmitTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, ReasonMissingSessionID, nil)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, ReasonEmptyInput, nil)
	}
	if utf8.RuneCountInString(text) > s.opts.MaxInputLength {
		return TurnOutput{}, newError(ErrorInvalidInput, ReasonInputTooLong, nil)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, ReasonSessionRead, err)
	}
	if sess == nil {
		return TurnOutput{}, newError(ErrorSessionNotFound, ReasonUnknownSession, nil)
	}

	switch sess.State {
	case domain.StateFinalized:
		return TurnOutput{SessionID: id, Reply: closingMessage, State: sess.State}, nil
	case domain.StateError:
		return TurnOutput{SessionID: id, Reply: errorStateMessage, State: sess.State}, nil
	}

	// A stored session missing prerequisite data is rolled back before the
	// step and the prompt see it.
	s.machine.Repair(sess)

	before := sess.Clone()
	sess.LastInputInvalid = false
	sess.AppendTurn(domain.RoleUser, text)
	products := s.catalog.Products(ctx)

	step := s.machine.Advance(sess, text, products)
	slog.Debug("usecase: deterministic step", "session_id", id, "from", step.From, "to", step.To, "invalid", step.Invalid)
	if sess.State == domain.StateError {
		sess.AppendTurn(domain.RoleAssistant, errorStateMessage)
		if !sess.Saved {
			s.dispatchSnapshot(ctx, sess)
		}
		s.persist(ctx, sess)
		return TurnOutput{SessionID: id, Reply: errorStateMessage, State: sess.State}, nil
	}

	req := llm.Request{
		System:      buildSystemPrompt(products),
		Instruction: buildContextInstruction(sess),
		History:     sess.History,
	}
	genCtx, cancel := context.WithTimeout(ctx, s.opts.LLMTimeout)
	raw, err := s.router.Generate(genCtx, sess.ExperimentGroup, req)
	cancel()
	if err != nil {
		slog.Warn("usecase: generation failed, keeping session unchanged", "session_id", id, "state", before.State, "err", err)
		return TurnOutput{SessionID: id, Reply: apologyMessage, State: before.State}, nil
	}

	reply := s.reconciler.Reconcile(sess, raw, products, step)
	if sess.State == domain.StateFinalized && !sess.Saved {
		s.dispatchSnapshot(ctx, sess)
	}
	s.persist(ctx, sess)

	slog.Debug("usecase: turn complete", "session_id", id, "state", sess.State, "cart_items", len(sess.Cart))
	return TurnOutput{SessionID: id, Reply: reply, State: sess.State}, nil
}

// Close waits for in-flight snapshot writes.
func (s *SalesService) Close() {
	s.inflight.Wait()
}

func (s *SalesService) abandon(ctx context.Context, id string) {
	unlock := s.locks.lock(id)
	defer unlock()

	prev, err := s.sessions.Get(ctx, id)
	if err != nil {
		slog.Warn("usecase: could not load previous session", "session_id", id, "err", err)
		return
	}
	if prev == nil || prev.Saved {
		return
	}
	s.dispatchSnapshot(ctx, prev)
	s.persist(ctx, prev)
	slog.Info("usecase: previous session abandoned", "session_id", id, "state", prev.State)
}

// dispatchSnapshot marks sess saved and writes its snapshot in the background.
// Failures are logged only.
func (s *SalesService) dispatchSnapshot(ctx context.Context, sess *domain.Session) {
	snap := domain.NewSnapshot(sess, s.router.ModelFor(sess.ExperimentGroup), now())
	sess.Saved = true

	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		wctx, cancel := context.WithTimeout(bg, s.opts.SnapshotTimeout)
		defer cancel()
		if err := s.snapshots.SaveSnapshot(wctx, snap); err != nil {
			slog.Warn("usecase: snapshot write failed", "session_id", snap.SessionID, "state", snap.FinalState, "err", err)
		}
	}()
}

func (s *SalesService) persist(ctx context.Context, sess *domain.Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		slog.Error("usecase: session write failed", "session_id", sess.ID, "state", sess.State, "err", err)
	}
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = time.Now
