package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/coinqueue"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/internal/notifications"
	"github.com/angelmondragon/vibes-market-backend/internal/orders"
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
)

// Settlement is a group this call moved to completed, with the orders it
// completed.
type Settlement struct {
	Group  models.OrderGroup
	Orders []models.Order
}

// TransferBook is what CreatePaymentTransfers records: the settled orders, the
// group's legs and the shop percentages in force.
type TransferBook struct {
	Orders                  []models.Order
	Legs                    []models.PaymentTransaction
	Shops                   map[uuid.UUID]models.Shop
	DefaultPlatformPercents decimal.Decimal
}

// settleIfPaid settles the group once every leg has been paid by its backend.
func (s *service) settleIfPaid(ctx context.Context, tx *gorm.DB, lc *legContext) (*Settlement, error) {
	repo := s.orders.WithTx(tx)
	legs, err := repo.FindTransactionsByGroup(ctx, lc.group.ID)
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, nil
	}
	for _, leg := range legs {
		if !leg.Status.IsSettled() {
			return nil, nil
		}
	}
	group, err := repo.FindGroup(ctx, lc.group.ID)
	if err != nil {
		return nil, err
	}
	orderRows, err := repo.FindOrdersByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	settlement, err := s.HandleOrders(ctx, tx, group, orderRows)
	if err != nil || settlement == nil {
		return nil, err
	}
	if _, err := s.CreatePaymentTransfers(ctx, tx, TransferBook{
		Orders:                  settlement.Orders,
		Legs:                    legs,
		Shops:                   lc.shops,
		DefaultPlatformPercents: lc.settings.PlatformFeePercents,
	}); err != nil {
		return nil, err
	}
	return settlement, nil
}

// HandleOrders completes the group and its orders inside tx: it assigns order
// codes, decrements stock, drops the buyer's locks, queues the cashback and
// records the settlement event. A group that is no longer created yields
// (nil, nil).
func (s *service) HandleOrders(ctx context.Context, tx *gorm.DB, group *models.OrderGroup, orderRows []models.Order) (*Settlement, error) {
	if tx == nil {
		return nil, dbpkg.ErrTxRequired
	}
	if group == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order group is required")
	}
	repo := s.orders.WithTx(tx)
	now := s.now().UTC()

	groupCode := orders.GenerateCode(group.ID, group.CreatedAt)
	moved, err := repo.CompleteGroup(ctx, group.ID, groupCode, now)
	if err != nil {
		return nil, fmt.Errorf("complete order group: %w", err)
	}
	if !moved {
		s.logg.Info(s.logg.WithOrderGroupID(ctx, group.ID), "order group already settled")
		return nil, nil
	}

	settled := &Settlement{Group: *group}
	settled.Group.Status = enums.OrderGroupStatusCompleted
	settled.Group.Code = &groupCode
	settled.Group.CompletedAt = &now

	for _, order := range orderRows {
		code := orders.GenerateCode(order.ID, order.OrderedAt)
		ok, err := repo.CompleteOrder(ctx, order.ID, code, now)
		if err != nil {
			return nil, fmt.Errorf("complete order %d: %w", order.ID, err)
		}
		if !ok {
			continue
		}
		order.Code = &code
		order.Status = enums.OrderStatusCompleted
		order.CompletedAt = &now
		settled.Orders = append(settled.Orders, order)
	}

	for _, delta := range stockDeltas(settled.Orders) {
		if err := s.inventory.Decrease(ctx, tx, delta.unit, delta.quantity); err != nil {
			return nil, err
		}
	}

	if err := s.inventory.DeleteUserLocks(ctx, tx, group.UserID, lockItems(settled.Orders)); err != nil {
		return nil, fmt.Errorf("delete locks: %w", err)
	}

	if group.EarnedCoins > 0 {
		user, err := s.customers.WithTx(tx).FindUser(ctx, group.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user for cashback: %w", err)
		}
		groupID := group.ID
		if err := s.coinQueue.Enqueue(ctx, tx, coinqueue.Entry{
			Action:         enums.CashbackFor(group.ItemType),
			UserExternalID: user.ExternalID,
			Amount:         group.EarnedCoins,
			StartedAt:      now,
			OrderGroupID:   &groupID,
		}); err != nil {
			return nil, fmt.Errorf("enqueue cashback: %w", err)
		}
	}

	payload := outbox.OrderGroupSettled{
		OrderGroupID: group.ID,
		UserID:       group.UserID,
		TotalAmount:  group.TotalAmount,
		UsedCoins:    group.UsedCoins,
		EarnedCoins:  group.EarnedCoins,
	}
	if group.PaymentIntentID != nil {
		payload.PaymentIntentID = *group.PaymentIntentID
	}
	for _, order := range settled.Orders {
		payload.OrderIDs = append(payload.OrderIDs, order.ID)
		payload.OrderCodes = append(payload.OrderCodes, *order.Code)
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderGroupSettled,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   fmt.Sprint(group.ID),
		Data:          payload,
		OccurredAt:    now,
	}); err != nil {
		return nil, fmt.Errorf("emit settlement event: %w", err)
	}
	return settled, nil
}

// CreatePaymentTransfers records one row per order and leg that carries a
// share of that order. Rows already present are skipped.
func (s *service) CreatePaymentTransfers(ctx context.Context, tx *gorm.DB, book TransferBook) (int64, error) {
	if tx == nil {
		return 0, dbpkg.ErrTxRequired
	}
	if len(book.Orders) == 0 || len(book.Legs) == 0 {
		return 0, nil
	}
	var (
		hasFiat      bool
		fiatTransfer int64
	)
	for _, leg := range book.Legs {
		if leg.IsFiat {
			hasFiat = true
			fiatTransfer = leg.TransferAmount
		}
	}

	rows := make([]models.PaymentTransfer, 0, len(book.Orders)*len(book.Legs))
	for _, leg := range book.Legs {
		refs, err := decodeRefs(leg.TransferRefs)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("decode transfer refs of payment transaction %d", leg.ID))
		}
		shares := sharesFor(book.Orders, hasFiat, fiatTransfer, leg.IsFiat)
		for i, order := range book.Orders {
			share := shares[i]
			if share.TransferAmount == 0 && share.PlatformFee == 0 {
				continue
			}
			shopPercents := book.DefaultPlatformPercents
			if shop, ok := book.Shops[order.ShopID]; ok && shop.PlatformPercents.Valid {
				shopPercents = shop.PlatformPercents.Decimal
			}
			row := models.PaymentTransfer{
				OrderID:              order.ID,
				PaymentTransactionID: leg.ID,
				ShopID:               order.ShopID,
				Amount:               share.TransferAmount,
				PlatformFee:          share.PlatformFee,
				PlatformPercents:     shopPercents.Add(leg.StripeFeePercents),
				IsFiat:               leg.IsFiat,
			}
			if id, ok := refs[fmt.Sprint(order.ID)]; ok {
				row.TransferID = &id
			}
			rows = append(rows, row)
		}
	}
	inserted, err := s.orders.WithTx(tx).CreatePaymentTransfers(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("create payment transfers: %w", err)
	}
	return inserted, nil
}

func (s *service) notifySettled(ctx context.Context, settled *Settlement, shops map[uuid.UUID]models.Shop) {
	if s.mailer == nil {
		return
	}
	user, err := s.customers.FindUser(ctx, settled.Group.UserID)
	if err != nil {
		s.logg.Error(ctx, "load buyer for order e-mails", err)
		return
	}
	codes := make([]string, 0, len(settled.Orders))
	for _, order := range settled.Orders {
		codes = append(codes, *order.Code)
	}
	msgs := []notifications.Message{{
		To:       user.Email,
		Template: notifications.TemplateOrderConfirmation,
		Data: map[string]any{
			"displayName": user.DisplayName,
			"orderCodes":  codes,
			"totalAmount": settled.Group.TotalAmount,
			"usedCoins":   settled.Group.UsedCoins,
			"earnedCoins": settled.Group.EarnedCoins,
		},
	}}
	for _, order := range settled.Orders {
		shop, ok := shops[order.ShopID]
		if !ok {
			continue
		}
		msgs = append(msgs, notifications.Message{
			To:       shop.Email,
			Template: notifications.TemplateNewOrderForSeller,
			Data: map[string]any{
				"shopName":    shop.Name,
				"orderCode":   *order.Code,
				"totalAmount": order.TotalAmount,
			},
		})
	}
	notifications.SendBestEffort(ctx, s.mailer, s.logg, msgs...)
}

type stockDelta struct {
	unit     inventory.Unit
	quantity int64
}

// stockDeltas accumulates quantities per variant, then per product across the
// whole batch, then per ticket, so each unit is decremented once.
func stockDeltas(orderRows []models.Order) []stockDelta {
	var variants, products, tickets []stockDelta
	index := make(map[inventory.Unit]int)
	add := func(list *[]stockDelta, unit inventory.Unit, qty int64) {
		if i, ok := index[unit]; ok {
			(*list)[i].quantity += qty
			return
		}
		index[unit] = len(*list)
		*list = append(*list, stockDelta{unit: unit, quantity: qty})
	}
	for _, order := range orderRows {
		for _, item := range order.Items {
			if item.Quantity <= 0 {
				continue
			}
			if item.SessionTicketID != nil {
				add(&tickets, inventory.SessionTicketUnit(*item.SessionTicketID), item.Quantity)
				continue
			}
			if item.ParameterSetID != nil {
				add(&variants, inventory.ParameterSetUnit(*item.ParameterSetID), item.Quantity)
			}
			if item.ProductID != nil {
				add(&products, inventory.ProductUnit(*item.ProductID), item.Quantity)
			}
		}
	}
	out := make([]stockDelta, 0, len(variants)+len(products)+len(tickets))
	out = append(out, variants...)
	out = append(out, products...)
	return append(out, tickets...)
}

func lockItems(orderRows []models.Order) []inventory.Item {
	var items []inventory.Item
	for _, order := range orderRows {
		for _, detail := range order.Items {
			item := inventory.Item{ParameterSetID: detail.ParameterSetID, Quantity: detail.Quantity}
			if detail.ProductID != nil {
				item.ProductID = *detail.ProductID
			}
			if detail.SessionTicketID != nil {
				item.SessionTicketID = *detail.SessionTicketID
			}
			items = append(items, item)
		}
	}
	return items
}

func decodeRefs(raw json.RawMessage) (map[string]string, error) {
	refs := map[string]string{}
	if len(raw) == 0 {
		return refs, nil
	}
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}
