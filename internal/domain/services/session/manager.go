package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	gocache "github.com/patrickmn/go-cache"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
	"github.com/rail-service/txengine/pkg/logger"
)

const cancelTimeout = 10 * time.Second

// ExecutionRecorder stores executed transactions
type ExecutionRecorder interface {
	Create(ctx context.Context, tx *entities.ExecutedTransaction) error
	BySession(ctx context.Context, sessionID string) ([]entities.ExecutedTransaction, error)
}

type session struct {
	mu        sync.Mutex
	id        string
	guid      string
	engine    txengine.Engine
	pending   entities.PendingTransaction
	executed  bool
	createdAt time.Time
}

// View is the state of a session returned to callers
type View struct {
	ID        string                      `json:"id"`
	Engine    txengine.Kind               `json:"engine"`
	Pending   entities.PendingTransaction `json:"pendingTransaction"`
	CreatedAt time.Time                   `json:"createdAt"`
}

func (s *session) view() View {
	return View{ID: s.id, Engine: s.engine.Kind(), Pending: s.pending, CreatedAt: s.createdAt}
}

// Manager keeps sessions in a TTL store. Sessions that expire or are stopped
// before executing get their pending buy order cancelled.
type Manager struct {
	factory  *Factory
	recorder ExecutionRecorder
	store    *gocache.Cache
	clock    clock.Clock
	logger   *logger.Logger
}

func NewManager(factory *Factory, recorder ExecutionRecorder, ttl time.Duration, clk clock.Clock, log *logger.Logger) *Manager {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	m := &Manager{
		factory:  factory,
		recorder: recorder,
		store:    gocache.New(ttl, ttl/2),
		clock:    clk,
		logger:   log,
	}
	m.store.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*session); ok {
			m.release(s)
		}
	})
	return m
}

// release stops the engine and cancels an order that was never executed
func (m *Manager) release(s *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	s.engine.Stop(ctx)

	orders, ok := s.engine.(txengine.OrderEngine)
	if !ok || s.executed {
		return
	}
	v, ok := s.pending.EngineStateValue(entities.EngineStateOrderID)
	orderID, _ := v.(string)
	if !ok || orderID == "" {
		return
	}
	if err := orders.CancelOrder(ctx, orderID); err != nil {
		m.logger.Warn("Failed to cancel order of released session", "session_id", s.id, "order_id", orderID, "error", err)
		return
	}
	m.logger.Info("Cancelled order of released session", "session_id", s.id, "order_id", orderID)
}

// Start creates a session and initializes its transaction
func (m *Manager) Start(ctx context.Context, guid string, source entities.SourceAccount, target entities.TransactionTarget) (View, error) {
	engine, err := m.factory.New(guid, source, target)
	if err != nil {
		return View{}, err
	}
	pending, err := engine.InitializeTransaction(ctx)
	if err != nil {
		engine.Stop(ctx)
		return View{}, err
	}
	s := &session{
		id:        uuid.NewString(),
		guid:      guid,
		engine:    engine,
		pending:   pending,
		createdAt: m.clock.Now(),
	}
	m.store.SetDefault(s.id, s)
	m.logger.Info("Transaction session started", "session_id", s.id, "engine", string(engine.Kind()))
	return s.view(), nil
}

// get returns the session of guid and renews its TTL. Sessions of other wallets
// are reported as not found.
func (m *Manager) get(guid, id string) (*session, error) {
	v, ok := m.store.Get(id)
	if !ok {
		return nil, domainerrors.SessionNotFoundError(id)
	}
	s := v.(*session)
	if s.guid != guid {
		return nil, domainerrors.SessionNotFoundError(id)
	}
	m.store.SetDefault(id, s)
	return s, nil
}

type step func(ctx context.Context, s *session) (entities.PendingTransaction, error)

// apply runs one engine step under the session lock. The pending transaction is
// kept even when the step fails, so validation state survives a failed validate.
func (m *Manager) apply(ctx context.Context, guid, id string, fn step) (View, error) {
	s, err := m.get(guid, id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executed {
		return s.view(), domainerrors.ErrAlreadySent
	}
	pending, err := fn(ctx, s)
	if pending.Amount.Currency().Code != "" {
		s.pending = pending
	}
	return s.view(), err
}

func (m *Manager) Get(guid, id string) (View, error) {
	s, err := m.get(guid, id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

func (m *Manager) UpdateAmount(ctx context.Context, guid, id string, amount entities.MoneyValue) (View, error) {
	return m.apply(ctx, guid, id, func(ctx context.Context, s *session) (entities.PendingTransaction, error) {
		return s.engine.Update(ctx, amount, s.pending)
	})
}

func (m *Manager) UpdateFeeLevel(ctx context.Context, guid, id string, level entities.FeeLevel, custom *entities.MoneyValue) (View, error) {
	return m.apply(ctx, guid, id, func(ctx context.Context, s *session) (entities.PendingTransaction, error) {
		return s.engine.DoUpdateFeeLevel(ctx, s.pending, level, custom)
	})
}

func (m *Manager) UpdateOption(ctx context.Context, guid, id string, option entities.Confirmation) (View, error) {
	return m.apply(ctx, guid, id, func(ctx context.Context, s *session) (entities.PendingTransaction, error) {
		return s.engine.DoOptionUpdateRequest(ctx, s.pending, option)
	})
}

func (m *Manager) BuildConfirmations(ctx context.Context, guid, id string) (View, error) {
	return m.apply(ctx, guid, id, func(ctx context.Context, s *session) (entities.PendingTransaction, error) {
		return s.engine.DoBuildConfirmations(ctx, s.pending)
	})
}

func (m *Manager) Validate(ctx context.Context, guid, id string) (View, error) {
	return m.apply(ctx, guid, id, func(ctx context.Context, s *session) (entities.PendingTransaction, error) {
		return s.engine.DoValidateAll(ctx, s.pending)
	})
}

// Retarget points the session at a new destination
func (m *Manager) Retarget(ctx context.Context, guid, id string, target entities.TransactionTarget) (View, error) {
	return m.apply(ctx, guid, id, func(ctx context.Context, s *session) (entities.PendingTransaction, error) {
		return s.engine.Restart(ctx, target, s.pending)
	})
}

// Execute validates once more, executes and records the result. A transaction
// that fails validation is not executed.
func (m *Manager) Execute(ctx context.Context, guid, id, secondPassword string) (entities.TransactionResult, error) {
	s, err := m.get(guid, id)
	if err != nil {
		return entities.TransactionResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executed {
		return entities.TransactionResult{}, domainerrors.ErrAlreadySent
	}

	pending, err := s.engine.DoValidateAll(ctx, s.pending)
	s.pending = pending
	if err != nil {
		return entities.TransactionResult{}, err
	}
	result, err := s.engine.Execute(ctx, s.pending, secondPassword)
	if err != nil {
		return result, err
	}
	s.executed = true
	m.record(ctx, s, result)
	return result, nil
}

func (m *Manager) record(ctx context.Context, s *session, result entities.TransactionResult) {
	source := txengine.SourceOf(s.engine)
	target := txengine.TargetOf(s.engine)
	destination := target.Address
	if destination == "" {
		destination = target.AccountID
	}
	tx := &entities.ExecutedTransaction{
		ID:              uuid.New(),
		SessionID:       s.id,
		Engine:          string(s.engine.Kind()),
		SourceAccountID: source.ID,
		Destination:     destination,
		Currency:        result.Amount.Currency().Code,
		Amount:          result.Amount.Amount().String(),
		Fee:             s.pending.FeeAmount.Amount().String(),
		ResultKind:      result.Kind,
	}
	if result.TxHash != "" {
		hash := result.TxHash
		tx.TxHash = &hash
	}
	if result.Order != nil {
		orderID := result.Order.ID
		tx.OrderID = &orderID
	}
	if err := m.recorder.Create(ctx, tx); err != nil {
		m.logger.Error("Executed transaction not recorded", "session_id", s.id, "error", err)
	}
}

// Executions lists what a session executed
func (m *Manager) Executions(ctx context.Context, guid, id string) ([]entities.ExecutedTransaction, error) {
	if _, err := m.get(guid, id); err != nil {
		return nil, err
	}
	return m.recorder.BySession(ctx, id)
}

// Stop ends a session, cancelling its order when it was never executed
func (m *Manager) Stop(guid, id string) error {
	if _, err := m.get(guid, id); err != nil {
		return err
	}
	m.store.Delete(id)
	return nil
}

// StopAll ends every session of guid, on logout
func (m *Manager) StopAll(guid string) int {
	stopped := 0
	for id, item := range m.store.Items() {
		if s, ok := item.Object.(*session); ok && s.guid == guid {
			m.store.Delete(id)
			stopped++
		}
	}
	return stopped
}

// Count is the number of live sessions
func (m *Manager) Count() int { return m.store.ItemCount() }

// Sweep evicts expired sessions now instead of waiting for the janitor
func (m *Manager) Sweep() { m.store.DeleteExpired() }
