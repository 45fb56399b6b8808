package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

type stockTable struct {
	table     string
	lockTable string
	lockCol   string
}

var stockTables = map[enums.UnitKind]stockTable{
	enums.UnitKindProduct:       {table: "products", lockTable: "ordering_items", lockCol: "product_id"},
	enums.UnitKindParameterSet:  {table: "parameter_sets", lockTable: "ordering_items", lockCol: "parameter_set_id"},
	enums.UnitKindSessionTicket: {table: "session_tickets", lockTable: "experience_order_managements", lockCol: "session_ticket_id"},
}

func tableFor(kind enums.UnitKind) (stockTable, error) {
	t, ok := stockTables[kind]
	if !ok {
		return stockTable{}, fmt.Errorf("unknown unit kind %q", kind)
	}
	return t, nil
}

// repository holds the lock and stock queries. Every method runs on the handle
// it is bound to, so callers choose between the pool and a transaction.
type repository struct {
	db *gorm.DB
}

func (r *repository) withTx(tx *gorm.DB) *repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

type quantityRow struct {
	ID       uuid.UUID
	Quantity *int64
}

// staticQuantities returns the quantity column per existing unit id. Missing
// ids are absent from the map.
func (r *repository) staticQuantities(ctx context.Context, kind enums.UnitKind, ids []uuid.UUID) (map[uuid.UUID]*int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []quantityRow
	err = r.db.WithContext(ctx).
		Table(t.table).
		Select("id, quantity").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Quantity
	}
	return out, nil
}

type lockRow struct {
	ID       int64
	UserID   uuid.UUID
	UnitID   uuid.UUID
	Quantity int64
}

// activeLocks loads every lock held against the given units in one query.
func (r *repository) activeLocks(ctx context.Context, kind enums.UnitKind, ids []uuid.UUID) (map[uuid.UUID][]LockEntry, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]LockEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []lockRow
	err = r.db.WithContext(ctx).
		Table(t.lockTable).
		Select(fmt.Sprintf("id, user_id, %s AS unit_id, quantity", t.lockCol)).
		Where(fmt.Sprintf("%s IN ?", t.lockCol), ids).
		Order("id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UnitID] = append(out[row.UnitID], LockEntry{ID: row.ID, UserID: row.UserID, Quantity: row.Quantity})
	}
	return out, nil
}

// decrease consumes qty from the unit. The quantity is clamped at zero and
// left untouched when unlimited; purchased_count always advances.
func (r *repository) decrease(ctx context.Context, unit Unit, qty int64) (int64, error) {
	t, err := tableFor(unit.Kind)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).
		Table(t.table).
		Where("id = ?", unit.ID).
		Updates(map[string]any{
			"purchased_count": gorm.Expr("purchased_count + ?", qty),
			"quantity":        gorm.Expr("CASE WHEN quantity IS NULL THEN NULL WHEN quantity > ? THEN quantity - ? ELSE 0 END", qty, qty),
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) findProductLock(ctx context.Context, userID uuid.UUID, item Item) (*models.OrderingItem, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, item.ProductID)
	if item.ParameterSetID != nil {
		q = q.Where("parameter_set_id = ?", *item.ParameterSetID)
	} else {
		q = q.Where("parameter_set_id IS NULL")
	}
	var rows []models.OrderingItem
	if err := q.Order("id ASC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) findTicketLock(ctx context.Context, userID uuid.UUID, ticketID uuid.UUID) (*models.ExperienceOrderManagement, error) {
	var rows []models.ExperienceOrderManagement
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_ticket_id = ?", userID, ticketID).
		Order("id ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// lockChange records what upsertLock did to a row so a rejected reservation
// can be undone.
type lockChange struct {
	ticket   bool
	id       int64
	created  bool
	resized  bool
	previous int64
}

// upsertLock inserts a lock for the item or resizes the user's existing lock to
// the requested quantity.
func (r *repository) upsertLock(ctx context.Context, userID uuid.UUID, item Item, lockType enums.LockType, intentID *string) (lockChange, error) {
	if item.IsTicket() {
		existing, err := r.findTicketLock(ctx, userID, item.SessionTicketID)
		if err != nil {
			return lockChange{}, err
		}
		if existing != nil {
			change := lockChange{ticket: true, id: existing.ID, resized: existing.Quantity != item.Quantity, previous: existing.Quantity}
			return change, r.promoteLock(ctx, &models.ExperienceOrderManagement{}, existing.ID, existing.Type, lockType, change, item.Quantity, intentID)
		}
		row := models.ExperienceOrderManagement{
			UserID:          userID,
			SessionTicketID: item.SessionTicketID,
			Quantity:        item.Quantity,
			Type:            lockType,
			PaymentIntentID: intentID,
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return lockChange{}, err
		}
		return lockChange{ticket: true, id: row.ID, created: true}, nil
	}

	existing, err := r.findProductLock(ctx, userID, item)
	if err != nil {
		return lockChange{}, err
	}
	if existing != nil {
		change := lockChange{id: existing.ID, resized: existing.Quantity != item.Quantity, previous: existing.Quantity}
		return change, r.promoteLock(ctx, &models.OrderingItem{}, existing.ID, existing.Type, lockType, change, item.Quantity, intentID)
	}
	row := models.OrderingItem{
		UserID:          userID,
		ProductID:       item.ProductID,
		ParameterSetID:  item.ParameterSetID,
		Quantity:        item.Quantity,
		Type:            lockType,
		PaymentIntentID: intentID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return lockChange{}, err
	}
	return lockChange{id: row.ID, created: true}, nil
}

// promoteLock attaches checkout state to an existing lock. A cart lock becomes
// an ordering lock; an ordering lock is never demoted.
func (r *repository) promoteLock(ctx context.Context, model any, id int64, current, requested enums.LockType, change lockChange, quantity int64, intentID *string) error {
	updates := map[string]any{}
	if current != enums.LockTypeOrdering && requested == enums.LockTypeOrdering {
		updates["type"] = requested
	}
	if change.resized {
		updates["quantity"] = quantity
	}
	if intentID != nil {
		updates["payment_intent_id"] = *intentID
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(updates).Error
}

// revertLocks deletes the rows a rejected reservation inserted and puts resized
// rows back to their previous quantity.
func (r *repository) revertLocks(ctx context.Context, changes []lockChange) error {
	var productIDs, ticketIDs []int64
	for _, change := range changes {
		switch {
		case change.created && change.ticket:
			ticketIDs = append(ticketIDs, change.id)
		case change.created:
			productIDs = append(productIDs, change.id)
		case change.resized:
			var model any = &models.OrderingItem{}
			if change.ticket {
				model = &models.ExperienceOrderManagement{}
			}
			if err := r.db.WithContext(ctx).Model(model).Where("id = ?", change.id).
				Update("quantity", change.previous).Error; err != nil {
				return err
			}
		}
	}
	if len(productIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("id IN ?", productIDs).Delete(&models.OrderingItem{}).Error; err != nil {
			return err
		}
	}
	if len(ticketIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("id IN ?", ticketIDs).Delete(&models.ExperienceOrderManagement{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// deleteUserLocks removes the user's locks on the items' products and tickets
// and returns the number of rows removed.
func (r *repository) deleteUserLocks(ctx context.Context, userID uuid.UUID, items []Item) (int64, error) {
	var productIDs, ticketIDs []uuid.UUID
	for _, item := range items {
		if item.IsTicket() {
			ticketIDs = append(ticketIDs, item.SessionTicketID)
		} else {
			productIDs = append(productIDs, item.ProductID)
		}
	}
	var deleted int64
	if len(productIDs) > 0 {
		res := r.db.WithContext(ctx).
			Where("user_id = ? AND product_id IN ?", userID, productIDs).
			Delete(&models.OrderingItem{})
		if res.Error != nil {
			return deleted, res.Error
		}
		deleted += res.RowsAffected
	}
	if len(ticketIDs) > 0 {
		res := r.db.WithContext(ctx).
			Where("user_id = ? AND session_ticket_id IN ?", userID, ticketIDs).
			Delete(&models.ExperienceOrderManagement{})
		if res.Error != nil {
			return deleted, res.Error
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

type expiredRow struct {
	ID     int64
	UnitID uuid.UUID
}

// deleteExpired removes locks of lockType created at or before cutoff and
// returns the distinct units they held.
func (r *repository) deleteExpired(ctx context.Context, scope Scope, lockType enums.LockType, cutoff time.Time) (int64, []uuid.UUID, error) {
	var (
		model   any
		table   string
		unitCol string
	)
	switch scope {
	case ScopeItems:
		model, table, unitCol = &models.OrderingItem{}, "ordering_items", "product_id"
	case ScopeExperiences:
		model, table, unitCol = &models.ExperienceOrderManagement{}, "experience_order_managements", "session_ticket_id"
	default:
		return 0, nil, fmt.Errorf("unknown sweep scope %q", scope)
	}

	var rows []expiredRow
	err := r.db.WithContext(ctx).
		Table(table).
		Select(fmt.Sprintf("id, %s AS unit_id", unitCol)).
		Where("type = ? AND created_at <= ?", lockType, cutoff).
		Scan(&rows).Error
	if err != nil {
		return 0, nil, err
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}

	ids := make([]int64, 0, len(rows))
	seen := make(map[uuid.UUID]struct{})
	var units []uuid.UUID
	for _, row := range rows {
		ids = append(ids, row.ID)
		if _, ok := seen[row.UnitID]; !ok {
			seen[row.UnitID] = struct{}{}
			units = append(units, row.UnitID)
		}
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(model)
	if res.Error != nil {
		return 0, nil, res.Error
	}
	return res.RowsAffected, units, nil
}
