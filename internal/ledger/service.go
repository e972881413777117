package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// DefaultCommitTimeout bounds a single repository commit.
const DefaultCommitTimeout = 5 * time.Second

// Service orchestrates the ledger operations.
//
// Every mutating call holds the account's lock for the whole
// load → validate → commit sequence, so two calls on the same account
// never interleave. Calls on different accounts run in parallel.
//
// Events are published once the lock is released. Concurrent calls on one
// account may publish out of commit order; consumers order by Version and
// Sequence.
type Service struct {
	repo          Repository
	guard         *IdempotencyGuard
	txLog         *TransactionLog
	locker        Locker
	publisher     EventPublisher
	clock         func() time.Time
	commitTimeout time.Duration
	log           *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the in-process locker, e.g. with a distributed one.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithPublisher sets where committed events go.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithCommitTimeout bounds each repository commit; zero disables the bound.
func WithCommitTimeout(d time.Duration) Option {
	return func(s *Service) { s.commitTimeout = d }
}

// NewService creates a new ledger service
func NewService(repo Repository, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		guard:         NewIdempotencyGuard(repo),
		txLog:         NewTransactionLog(repo),
		locker:        NewLocalLocker(),
		publisher:     NoopPublisher{},
		clock:         time.Now,
		commitTimeout: DefaultCommitTimeout,
		log:           log.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccount opens an Active account with a non-negative balance.
func (s *Service) CreateAccount(ctx context.Context, accountID string, initialBalance decimal.Decimal) (Account, error) {
	account, err := s.insert(ctx, accountID, initialBalance)
	if err != nil {
		return Account{}, err
	}
	s.publish(ctx, newEvent(EventAccountCreated, account))
	return account, nil
}

func (s *Service) insert(ctx context.Context, accountID string, initialBalance decimal.Decimal) (Account, error) {
	const op = "create"
	log := s.log.WithContext(ctx).WithAccount(accountID)

	account, err := NewAccount(accountID, initialBalance, s.now())
	if err != nil {
		return Account{}, err
	}

	unlock, err := s.lock(ctx, op, accountID)
	if err != nil {
		return Account{}, err
	}
	defer unlock()

	err = s.commit(ctx, func(ctx context.Context) error {
		return s.repo.InsertAccount(ctx, account)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			log.Warn("account already exists")
			return Account{}, &Error{Kind: KindAccountExists, Op: op, AccountID: accountID}
		}
		log.WithError(err).Error("failed to create account")
		return Account{}, persistenceFailure(op, accountID, "failed to create account", err)
	}

	log.Info("account created", "balance", account.Balance.String())
	return account, nil
}

// GetAccount returns the current account state.
func (s *Service) GetAccount(ctx context.Context, accountID string) (Account, error) {
	return s.load(ctx, "get", accountID)
}

// Deposit adds amount to the account. idempotencyKey is required; a key
// that was already applied yields KindDuplicateRequest and no change.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string) (Account, error) {
	key := normalizeKey(idempotencyKey)
	if key == "" {
		return Account{}, invalidInput("deposit", accountID, "idempotency key is required")
	}
	return s.move(ctx, ActionDeposit, accountID, amount, key)
}

// Withdraw removes amount from the account. idempotencyKey is optional;
// when set it is guarded and recorded exactly like a deposit key.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string) (Account, error) {
	return s.move(ctx, ActionWithdraw, accountID, amount, normalizeKey(idempotencyKey))
}

// Freeze moves an Active account to Frozen.
func (s *Service) Freeze(ctx context.Context, accountID string) (Account, error) {
	return s.changeState(ctx, "freeze", accountID, StateFrozen)
}

// Unfreeze moves a Frozen account back to Active.
func (s *Service) Unfreeze(ctx context.Context, accountID string) (Account, error) {
	return s.changeState(ctx, "unfreeze", accountID, StateActive)
}

// Close moves an Active or Frozen account to the terminal Closed state.
func (s *Service) Close(ctx context.Context, accountID string) (Account, error) {
	return s.changeState(ctx, "close", accountID, StateClosed)
}

// ListTransactions returns the account's log, oldest first.
func (s *Service) ListTransactions(ctx context.Context, accountID string) ([]LogEntry, error) {
	if _, err := s.load(ctx, "list transactions", accountID); err != nil {
		return nil, err
	}
	return s.txLog.List(ctx, accountID)
}

func (s *Service) move(ctx context.Context, action Action, accountID string, amount decimal.Decimal, key string) (Account, error) {
	next, entry, err := s.applyMovement(ctx, action, accountID, amount, key)
	if err != nil {
		return Account{}, err
	}
	s.publish(ctx, movementEvent(next, entry))
	return next, nil
}

func (s *Service) applyMovement(ctx context.Context, action Action, accountID string, amount decimal.Decimal, key string) (Account, LogEntry, error) {
	op := strings.ToLower(string(action))
	log := s.log.WithContext(ctx).WithAccount(accountID).WithField("action", string(action))

	unlock, err := s.lock(ctx, op, accountID)
	if err != nil {
		return Account{}, LogEntry{}, err
	}
	defer unlock()

	current, err := s.load(ctx, op, accountID)
	if err != nil {
		return Account{}, LogEntry{}, err
	}

	if key != "" {
		res, err := s.guard.CheckAndReserve(ctx, key)
		if err != nil {
			return Account{}, LogEntry{}, withOp(err, op, accountID)
		}
		if res == Duplicate {
			log.Warn("duplicate request rejected", "idempotency_key", key)
			return Account{}, LogEntry{}, &Error{Kind: KindDuplicateRequest, Op: op, AccountID: accountID}
		}
	}

	var next Account
	switch action {
	case ActionDeposit:
		next, err = current.Deposit(amount)
	default:
		next, err = current.Withdraw(amount)
	}
	if err != nil {
		log.Warn("ledger operation rejected", "reason", string(KindOf(err)), "amount", amount.String())
		return Account{}, LogEntry{}, err
	}

	at := s.timestampFor(current)
	next = next.advance(at)
	entry := LogEntry{
		ID:             uuid.New(),
		AccountID:      accountID,
		Action:         action,
		Amount:         amount,
		BalanceAfter:   next.Balance,
		IdempotencyKey: key,
		Timestamp:      at,
	}
	var record *IdempotencyRecord
	if key != "" {
		record = &IdempotencyRecord{Key: key, AccountID: accountID, Action: action, CreatedAt: at}
	}

	start := time.Now()
	err = s.commit(ctx, func(ctx context.Context) error {
		var committed LogEntry
		var err error
		if action == ActionDeposit {
			committed, err = s.repo.CommitDeposit(ctx, next, entry, *record)
		} else {
			committed, err = s.repo.CommitWithdraw(ctx, next, entry, record)
		}
		if err != nil {
			return err
		}
		entry = committed
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			log.Warn("duplicate request rejected at commit", "idempotency_key", key)
			return Account{}, LogEntry{}, &Error{Kind: KindDuplicateRequest, Op: op, AccountID: accountID}
		}
		log.WithError(err).Error("failed to commit ledger operation")
		return Account{}, LogEntry{}, persistenceFailure(op, accountID, "failed to commit", err)
	}

	log.WithDuration(time.Since(start)).Debug("ledger operation committed",
		"amount", amount.String(),
		"balance_after", next.Balance.String(),
		"sequence", entry.Sequence,
	)
	return next, entry, nil
}

func (s *Service) changeState(ctx context.Context, op, accountID string, target State) (Account, error) {
	next, err := s.transition(ctx, op, accountID, target)
	if err != nil {
		return Account{}, err
	}
	s.publish(ctx, newEvent(EventAccountStateChanged, next))
	return next, nil
}

func (s *Service) transition(ctx context.Context, op, accountID string, target State) (Account, error) {
	log := s.log.WithContext(ctx).WithAccount(accountID)

	unlock, err := s.lock(ctx, op, accountID)
	if err != nil {
		return Account{}, err
	}
	defer unlock()

	current, err := s.load(ctx, op, accountID)
	if err != nil {
		return Account{}, err
	}

	next, err := current.Transition(target)
	if err != nil {
		log.Warn("state transition rejected", "from", current.State.String(), "to", target.String())
		return Account{}, withOp(err, op, accountID)
	}
	next = next.advance(s.timestampFor(current))

	err = s.commit(ctx, func(ctx context.Context) error {
		return s.repo.UpdateState(ctx, next)
	})
	if err != nil {
		log.WithError(err).Error("failed to persist state change")
		return Account{}, persistenceFailure(op, accountID, "failed to update state", err)
	}

	log.Info("account state changed", "from", current.State.String(), "to", next.State.String())
	return next, nil
}

func (s *Service) load(ctx context.Context, op, accountID string) (Account, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return Account{}, withOp(err, op, accountID)
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Account{}, &Error{Kind: KindAccountNotFound, Op: op, AccountID: accountID}
		}
		return Account{}, persistenceFailure(op, accountID, "failed to load account", err)
	}
	return account, nil
}

func (s *Service) lock(ctx context.Context, op, accountID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		s.log.WithContext(ctx).WithAccount(accountID).WithError(err).Error("failed to acquire account lock")
		return nil, persistenceFailure(op, accountID, "failed to acquire account lock", err)
	}
	return unlock, nil
}

// commit runs fn under the commit timeout. A timed out commit has been
// rolled back by the store and counts as not applied.
func (s *Service) commit(ctx context.Context, fn func(context.Context) error) error {
	if s.commitTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) publish(ctx context.Context, event Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithContext(ctx).WithAccount(event.AccountID).WithError(err).
			Warn("failed to publish ledger event", "event_type", string(event.Type))
	}
}

func (s *Service) now() time.Time {
	// stores keep microseconds; truncating keeps values identical after a round trip
	return s.clock().UTC().Truncate(time.Microsecond)
}

// timestampFor never goes backwards relative to the account's last write,
// so log entries stay ordered by time even if the clock steps back.
func (s *Service) timestampFor(current Account) time.Time {
	now := s.now()
	if now.Before(current.UpdatedAt) {
		return current.UpdatedAt
	}
	return now
}

// normalizeKey trims surrounding whitespace so " k" and "k" name the same
// request.
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

func withOp(err error, op, accountID string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Op = op
	if cp.AccountID == "" {
		cp.AccountID = accountID
	}
	return &cp
}
