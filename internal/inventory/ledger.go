package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
)

// Ledger combines static stock counters with the lock tables.
type Ledger interface {
	Remaining(ctx context.Context, unit Unit, excludingUserID *uuid.UUID) (Remaining, error)
	ValidateAgainstLocks(ctx context.Context, units []Unit, userID uuid.UUID) (enums.StockStatus, *Unit, error)
	ValidateDemand(ctx context.Context, items []Item, userID uuid.UUID) (enums.StockStatus, *Unit, error)
	LoadRemainingForDisplay(ctx context.Context, units []Unit, userID *uuid.UUID) (map[Unit]Remaining, error)
	Decrease(ctx context.Context, tx *gorm.DB, unit Unit, qty int64) error
	Reserve(ctx context.Context, userID uuid.UUID, items []Item, lockType enums.LockType) error
	Release(ctx context.Context, userID uuid.UUID, items []Item) (int64, error)
	AttachPaymentIntent(ctx context.Context, userID uuid.UUID, intentID string, items []Item) error
	DeleteUserLocks(ctx context.Context, tx *gorm.DB, userID uuid.UUID, items []Item) error
	Sweep(ctx context.Context, scope Scope, lockType enums.LockType, ttl time.Duration, now time.Time) (SweepResult, error)
}

// SweepResult reports what a sweep returned to the pool.
type SweepResult struct {
	Deleted int64
	UnitIDs []uuid.UUID
}

type LedgerParams struct {
	DB     *gorm.DB
	Tx     dbpkg.TxRunner
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type ledger struct {
	repo   *repository
	tx     dbpkg.TxRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewLedger(params LedgerParams) (Ledger, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &ledger{
		repo:   &repository{db: params.DB},
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   logg,
	}, nil
}

func (l *ledger) Remaining(ctx context.Context, unit Unit, excludingUserID *uuid.UUID) (Remaining, error) {
	quantities, err := l.repo.staticQuantities(ctx, unit.Kind, []uuid.UUID{unit.ID})
	if err != nil {
		return Remaining{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
	}
	quantity, ok := quantities[unit.ID]
	if !ok {
		return Remaining{}, unitNotFound(unit)
	}
	locks, err := l.repo.activeLocks(ctx, unit.Kind, []uuid.UUID{unit.ID})
	if err != nil {
		return Remaining{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load locks")
	}
	return remainingFor(quantity, locks[unit.ID], excludingUserID), nil
}

func (l *ledger) ValidateAgainstLocks(ctx context.Context, units []Unit, userID uuid.UUID) (enums.StockStatus, *Unit, error) {
	return l.validate(ctx, l.repo, units, userID)
}

func (l *ledger) validate(ctx context.Context, repo *repository, units []Unit, userID uuid.UUID) (enums.StockStatus, *Unit, error) {
	quantities, locks, err := repo.load(ctx, units)
	if err != nil {
		return "", nil, err
	}
	for _, unit := range units {
		quantity, ok := quantities[unit]
		if !ok {
			return "", nil, unitNotFound(unit)
		}
		if status := EvaluateLocks(quantity, locks[unit], userID); status != enums.StockStatusInStock {
			failing := unit
			return status, &failing, nil
		}
	}
	return enums.StockStatusInStock, nil, nil
}

// ValidateDemand is ValidateAgainstLocks plus a capacity check on the requested
// quantities: demand beyond what the user already holds must fit in what the
// other users left over.
func (l *ledger) ValidateDemand(ctx context.Context, items []Item, userID uuid.UUID) (enums.StockStatus, *Unit, error) {
	units := UnitsOf(items)
	status, failing, err := l.validate(ctx, l.repo, units, userID)
	if err != nil || status != enums.StockStatusInStock {
		return status, failing, err
	}

	quantities, locks, err := l.repo.load(ctx, units)
	if err != nil {
		return "", nil, err
	}
	demand := make(map[Unit]int64)
	for _, item := range items {
		for _, unit := range item.Units() {
			demand[unit] += item.Quantity
		}
	}
	for _, unit := range units {
		held := heldBy(locks[unit], userID)
		if status := checkDemand(quantities[unit], locks[unit], userID, demand[unit], held); status != enums.StockStatusInStock {
			failing := unit
			return status, &failing, nil
		}
	}
	return enums.StockStatusInStock, nil, nil
}

func (l *ledger) LoadRemainingForDisplay(ctx context.Context, units []Unit, userID *uuid.UUID) (map[Unit]Remaining, error) {
	quantities, locks, err := l.repo.load(ctx, units)
	if err != nil {
		return nil, err
	}
	out := make(map[Unit]Remaining, len(quantities))
	for unit, quantity := range quantities {
		out[unit] = remainingFor(quantity, locks[unit], userID)
	}
	return out, nil
}

func (l *ledger) Decrease(ctx context.Context, tx *gorm.DB, unit Unit, qty int64) error {
	if tx == nil {
		return dbpkg.ErrTxRequired
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrease quantity must be positive")
	}
	affected, err := l.repo.withTx(tx).decrease(ctx, unit, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrease stock")
	}
	if affected == 0 {
		return unitNotFound(unit)
	}
	return nil
}

// Reserve takes a lock per item and re-checks availability once the locks are
// visible to concurrent checkouts. An existing lock is resized to the requested
// quantity. On failure inserted rows are removed and resized rows get their
// previous quantity back.
func (l *ledger) Reserve(ctx context.Context, userID uuid.UUID, items []Item, lockType enums.LockType) error {
	if err := validateItems(userID, items); err != nil {
		return err
	}
	if !lockType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid lock type")
	}

	var changes []lockChange
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changes = changes[:0]
		repo := l.repo.withTx(tx)
		for _, item := range items {
			change, err := repo.upsertLock(ctx, userID, item, lockType, nil)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert locks")
	}

	status, failing, err := l.validate(ctx, l.repo, UnitsOf(items), userID)
	if err == nil && status == enums.StockStatusInStock {
		status, failing, err = l.validateGrowth(ctx, userID, items, changes)
	}
	if err == nil && status == enums.StockStatusInStock {
		return nil
	}

	if len(changes) > 0 {
		if revertErr := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return l.repo.withTx(tx).revertLocks(ctx, changes)
		}); revertErr != nil {
			l.logg.Error(l.logg.WithUserID(ctx, userID.String()), "roll back rejected locks", revertErr)
		}
	}
	if err != nil {
		return err
	}
	return StockError(status, *failing)
}

// validateGrowth checks the locks Reserve enlarged. Their position in the lock
// order predates the extra units, so the growth must fit in the capacity other
// users left over.
func (l *ledger) validateGrowth(ctx context.Context, userID uuid.UUID, items []Item, changes []lockChange) (enums.StockStatus, *Unit, error) {
	demand := make(map[Unit]int64)
	held := make(map[Unit]int64)
	var units []Unit
	for i, change := range changes {
		if !change.resized || items[i].Quantity <= change.previous {
			continue
		}
		for _, unit := range items[i].Units() {
			if _, ok := demand[unit]; !ok {
				units = append(units, unit)
			}
			demand[unit] += items[i].Quantity
			held[unit] += change.previous
		}
	}
	if len(units) == 0 {
		return enums.StockStatusInStock, nil, nil
	}
	quantities, locks, err := l.repo.load(ctx, units)
	if err != nil {
		return "", nil, err
	}
	for _, unit := range units {
		if status := checkDemand(quantities[unit], locks[unit], userID, demand[unit], held[unit]); status != enums.StockStatusInStock {
			failing := unit
			return status, &failing, nil
		}
	}
	return enums.StockStatusInStock, nil, nil
}

func (l *ledger) Release(ctx context.Context, userID uuid.UUID, items []Item) (int64, error) {
	if err := validateItems(userID, items); err != nil {
		return 0, err
	}
	var deleted int64
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := l.repo.withTx(tx).deleteUserLocks(ctx, userID, items)
		if err != nil {
			return err
		}
		deleted = n
		if n == 0 || l.outbox == nil {
			return nil
		}
		return l.emitReleased(ctx, tx, "cancelled", items, n)
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release locks")
	}
	return deleted, nil
}

func (l *ledger) emitReleased(ctx context.Context, tx *gorm.DB, reason string, items []Item, n int64) error {
	var products, tickets []uuid.UUID
	for _, item := range items {
		if item.IsTicket() {
			tickets = append(tickets, item.SessionTicketID)
		} else {
			products = append(products, item.ProductID)
		}
	}
	for scope, ids := range map[Scope][]uuid.UUID{ScopeItems: products, ScopeExperiences: tickets} {
		if len(ids) == 0 {
			continue
		}
		if err := EmitReleased(ctx, l.outbox, tx, scope, reason, ids, n); err != nil {
			return err
		}
	}
	return nil
}

// AttachPaymentIntent marks the user's locks as belonging to a checkout,
// creating ordering locks for items that were never reserved.
func (l *ledger) AttachPaymentIntent(ctx context.Context, userID uuid.UUID, intentID string, items []Item) error {
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if err := validateItems(userID, items); err != nil {
		return err
	}
	return l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.withTx(tx)
		for _, item := range items {
			if _, err := repo.upsertLock(ctx, userID, item, enums.LockTypeOrdering, &intentID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *ledger) DeleteUserLocks(ctx context.Context, tx *gorm.DB, userID uuid.UUID, items []Item) error {
	if tx == nil {
		return dbpkg.ErrTxRequired
	}
	if len(items) == 0 {
		return nil
	}
	_, err := l.repo.withTx(tx).deleteUserLocks(ctx, userID, items)
	return err
}

// Sweep deletes locks of lockType older than ttl. Deleting is idempotent, so a
// failed sweep is retried on the next tick.
func (l *ledger) Sweep(ctx context.Context, scope Scope, lockType enums.LockType, ttl time.Duration, now time.Time) (SweepResult, error) {
	if ttl <= 0 {
		return SweepResult{}, pkgerrors.New(pkgerrors.CodeValidation, "sweep ttl must be positive")
	}
	cutoff := now.UTC().Add(-ttl)
	var result SweepResult
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, units, err := l.repo.withTx(tx).deleteExpired(ctx, scope, lockType, cutoff)
		if err != nil {
			return err
		}
		result = SweepResult{Deleted: deleted, UnitIDs: units}
		if deleted == 0 || l.outbox == nil {
			return nil
		}
		return EmitReleased(ctx, l.outbox, tx, scope, "expired", units, deleted)
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}

// EmitReleased records an inventory_released event in tx.
func EmitReleased(ctx context.Context, emitter outbox.Emitter, tx *gorm.DB, scope Scope, reason string, unitIDs []uuid.UUID, released int64) error {
	return emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryReleased,
		AggregateType: enums.AggregateInventory,
		AggregateID:   string(scope),
		Data: outbox.InventoryReleased{
			Scope:    string(scope),
			Reason:   reason,
			UnitIDs:  unitIDs,
			Released: released,
		},
	})
}

// StockError maps a failed availability status to the client-facing code.
func StockError(status enums.StockStatus, unit Unit) error {
	code := pkgerrors.CodeInsufficientStock
	message := "insufficient stock"
	if status == enums.StockStatusOutOfStock {
		code = pkgerrors.CodeOutOfStock
		message = "out of stock"
	}
	return pkgerrors.New(code, message).WithDetails(map[string]any{
		"unitKind": unit.Kind,
		"unitId":   unit.ID,
		"status":   status,
	})
}

func (r *repository) load(ctx context.Context, units []Unit) (map[Unit]*int64, map[Unit][]LockEntry, error) {
	byKind := make(map[enums.UnitKind][]uuid.UUID)
	for _, unit := range units {
		byKind[unit.Kind] = append(byKind[unit.Kind], unit.ID)
	}
	quantities := make(map[Unit]*int64, len(units))
	locks := make(map[Unit][]LockEntry, len(units))
	for kind, ids := range byKind {
		q, err := r.staticQuantities(ctx, kind, ids)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
		}
		lk, err := r.activeLocks(ctx, kind, ids)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load locks")
		}
		for id, quantity := range q {
			unit := Unit{Kind: kind, ID: id}
			quantities[unit] = quantity
			locks[unit] = lk[id]
		}
	}
	return quantities, locks, nil
}

func heldBy(locks []LockEntry, userID uuid.UUID) int64 {
	var held int64
	for _, lock := range locks {
		if lock.UserID == userID {
			held += lock.Quantity
		}
	}
	return held
}

// checkDemand passes demand already covered by the user's granted locks and
// otherwise requires it to fit in the quantity other users have not locked.
func checkDemand(quantity *int64, locks []LockEntry, userID uuid.UUID, demand, held int64) enums.StockStatus {
	if demand <= held {
		return enums.StockStatusInStock
	}
	left := remainingFor(quantity, locks, &userID)
	if left.Unlimited || left.Quantity >= demand {
		return enums.StockStatusInStock
	}
	if left.Quantity == 0 {
		return enums.StockStatusOutOfStock
	}
	return enums.StockStatusInsufficient
}

func validateItems(userID uuid.UUID, items []Item) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.IsTicket() == (item.ProductID != uuid.Nil) {
			return pkgerrors.New(pkgerrors.CodeValidation, "item must reference either a product or a session ticket")
		}
	}
	return nil
}

func unitNotFound(unit Unit) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", unit.Kind).
		WithDetails(map[string]any{"unitId": unit.ID})
}
