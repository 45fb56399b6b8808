package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vibes-market-backend/internal/fees"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

// LineItem is one requested cart line: a product (optionally a variant) or a
// session ticket.
type LineItem struct {
	ProductID       uuid.UUID  `json:"productId"`
	ParameterSetID  *uuid.UUID `json:"parameterSetId,omitempty"`
	SessionTicketID uuid.UUID  `json:"sessionTicketId"`
	Quantity        int64      `json:"quantity"`
}

// InventoryItem is the ledger view of the line.
func (l LineItem) InventoryItem() inventory.Item {
	return inventory.Item{
		ProductID:       l.ProductID,
		ParameterSetID:  l.ParameterSetID,
		SessionTicketID: l.SessionTicketID,
		Quantity:        l.Quantity,
	}
}

// InventoryItems converts lines for the ledger.
func InventoryItems(lines []LineItem) []inventory.Item {
	out := make([]inventory.Item, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.InventoryItem())
	}
	return out
}

// FeeSettings are the percentages the aggregator prices transfers with.
type FeeSettings struct {
	DefaultPlatformPercents decimal.Decimal
	StripeFeePercents       decimal.Decimal
}

type GroupInput struct {
	User      *models.User
	Address   *models.ShippingAddress
	Items     []LineItem
	Fees      FeeSettings
	OrderedAt time.Time
}

// ShopOrder is the order to create for one shop and its fee split.
type ShopOrder struct {
	Shop             models.Shop
	Order            models.Order
	PlatformPercents decimal.Decimal
	Fees             fees.TransferFees
}

// Checkout is the aggregated purchase across shops.
type Checkout struct {
	ItemType       enums.ItemType
	Orders         []ShopOrder
	Amount         int64
	ShippingFee    int64
	TotalAmount    int64
	TransferAmount int64
}

// TransferFees lists the per-order fee splits in order.
func (c *Checkout) TransferFees() []fees.TransferFees {
	out := make([]fees.TransferFees, 0, len(c.Orders))
	for _, o := range c.Orders {
		out = append(out, o.Fees)
	}
	return out
}

// Aggregator groups cart lines into per-shop orders.
type Aggregator interface {
	GroupByShop(ctx context.Context, input GroupInput) (*Checkout, error)
}

type service struct {
	catalog CatalogRepository
	now     func() time.Time
}

func NewService(catalog CatalogRepository) (Aggregator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{catalog: catalog, now: time.Now}, nil
}

// pricedLine is a line resolved against the catalog.
type pricedLine struct {
	shopID   uuid.UUID
	detail   models.OrderDetailItem
	shipping fees.ShippingLine
}

func (s *service) GroupByShop(ctx context.Context, input GroupInput) (*Checkout, error) {
	if input.User == nil || input.User.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products are required")
	}
	if input.Address == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	itemType, err := itemTypeOf(input.Items)
	if err != nil {
		return nil, err
	}

	lines, err := s.priceLines(ctx, itemType, input.Items)
	if err != nil {
		return nil, err
	}

	shopIDs := make([]uuid.UUID, 0)
	grouped := make(map[uuid.UUID][]pricedLine)
	for _, line := range lines {
		if _, ok := grouped[line.shopID]; !ok {
			shopIDs = append(shopIDs, line.shopID)
		}
		grouped[line.shopID] = append(grouped[line.shopID], line)
	}

	shops, err := s.catalog.FindShops(ctx, shopIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shops")
	}
	for _, id := range shopIDs {
		shop, ok := shops[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found").WithDetails(map[string]any{"shopId": id})
		}
		if shop.OwnerUserID == input.User.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot purchase from your own shop")
		}
	}

	orderedAt := input.OrderedAt
	if orderedAt.IsZero() {
		orderedAt = s.now()
	}
	checkout := &Checkout{ItemType: itemType}
	for _, id := range shopIDs {
		shopOrder := buildShopOrder(shops[id], grouped[id], input, orderedAt)
		checkout.Orders = append(checkout.Orders, shopOrder)
		checkout.Amount += shopOrder.Order.Amount
		checkout.ShippingFee += shopOrder.Order.ShippingFee
		checkout.TotalAmount += shopOrder.Order.TotalAmount
		checkout.TransferAmount += shopOrder.Fees.TransferAmount
	}
	return checkout, nil
}

func buildShopOrder(shop models.Shop, lines []pricedLine, input GroupInput, orderedAt time.Time) ShopOrder {
	var subtotal int64
	shippingLines := make([]fees.ShippingLine, 0, len(lines))
	for _, line := range lines {
		subtotal += line.detail.Amount
		shippingLines = append(shippingLines, line.shipping)
	}
	policy := fees.ShippingPolicy{
		Enabled:           shop.ShippingFeeEnabled,
		DomesticThreshold: shop.DomesticFreeShippingThreshold,
		OverseasThreshold: shop.OverseasFreeShippingThreshold,
	}
	country := input.Address.CountryCode
	shipping := fees.ShippingFee(shippingLines, policy, subtotal, country)

	items := make([]models.OrderDetailItem, 0, len(lines))
	for _, line := range lines {
		item := line.detail
		if shipping > 0 {
			item.ShippingFee = fees.ShippingFee([]fees.ShippingLine{line.shipping}, fees.ShippingPolicy{Enabled: true}, 0, country)
		}
		item.SnapshotProductMaterials.ShopName = shop.Name
		items = append(items, item)
	}

	shopPercents := input.Fees.DefaultPlatformPercents
	if shop.PlatformPercents.Valid {
		shopPercents = shop.PlatformPercents.Decimal
	}
	total := subtotal + shipping
	split := fees.CalcPaymentTransferFees(total, shopPercents, input.Fees.StripeFeePercents)

	order := models.Order{
		UserID:      input.User.ID,
		ShopID:      shop.ID,
		Status:      enums.OrderStatusCreated,
		Amount:      subtotal,
		ShippingFee: shipping,
		TotalAmount: total,
		PlatformFee: split.PlatformFee,
		StripeFee:   fees.ProcessorFee(total, input.Fees.StripeFeePercents),
		Shipping:    snapshotAddress(input.Address),
		Items:       items,
		OrderedAt:   orderedAt.UTC(),
	}
	return ShopOrder{Shop: shop, Order: order, PlatformPercents: shopPercents, Fees: split}
}

func (s *service) priceLines(ctx context.Context, itemType enums.ItemType, items []LineItem) ([]pricedLine, error) {
	if itemType == enums.ItemTypeExperience {
		return s.priceTickets(ctx, items)
	}
	return s.priceProducts(ctx, items)
}

func (s *service) priceProducts(ctx context.Context, items []LineItem) ([]pricedLine, error) {
	var productIDs, variantIDs []uuid.UUID
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
		if item.ParameterSetID != nil {
			variantIDs = append(variantIDs, *item.ParameterSetID)
		}
	}
	products, err := s.catalog.FindProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	variants, err := s.catalog.FindParameterSets(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parameter sets")
	}

	lines := make([]pricedLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"productId": item.ProductID})
		}
		if !product.Status.IsPurchasable() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available for purchase").WithDetails(map[string]any{"productId": product.ID})
		}

		productID := product.ID
		unitPrice := product.Price
		detail := models.OrderDetailItem{ProductID: &productID}
		if item.ParameterSetID != nil {
			variant, ok := variants[*item.ParameterSetID]
			if !ok || variant.ProductID != product.ID {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "parameter set not found").WithDetails(map[string]any{"parameterSetId": *item.ParameterSetID})
			}
			variantID := variant.ID
			detail.ParameterSetID = &variantID
			detail.Color = variant.Color
			detail.CustomParameter = variant.CustomParameter
			if variant.Price != nil {
				unitPrice = *variant.Price
			}
		}
		detail.Quantity = item.Quantity
		detail.UnitPrice = unitPrice
		detail.Amount = unitPrice * item.Quantity
		detail.SnapshotProductMaterials = models.ProductSnapshot{
			Title:           product.Title,
			ImageURL:        product.ImageURL,
			UnitPrice:       unitPrice,
			Color:           detail.Color,
			CustomParameter: detail.CustomParameter,
		}

		lines = append(lines, pricedLine{
			shopID: product.ShopID,
			detail: detail,
			shipping: fees.ShippingLine{
				DomesticFee: product.ShippingFee,
				OverseasFee: product.OverseasShippingFee,
				Disabled:    product.ShippingFeeDisabled,
			},
		})
	}
	return lines, nil
}

func (s *service) priceTickets(ctx context.Context, items []LineItem) ([]pricedLine, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.SessionTicketID)
	}
	tickets, err := s.catalog.FindSessionTickets(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session tickets")
	}

	lines := make([]pricedLine, 0, len(items))
	for _, item := range items {
		ticket, ok := tickets[item.SessionTicketID]
		if !ok || ticket.Experience == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session ticket not found").WithDetails(map[string]any{"sessionTicketId": item.SessionTicketID})
		}
		if !ticket.Experience.Status.IsPurchasable() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "experience is not available for purchase").WithDetails(map[string]any{"experienceId": ticket.ExperienceID})
		}
		ticketID := ticket.ID
		lines = append(lines, pricedLine{
			shopID: ticket.Experience.ShopID,
			detail: models.OrderDetailItem{
				SessionTicketID: &ticketID,
				Quantity:        item.Quantity,
				UnitPrice:       ticket.Price,
				Amount:          ticket.Price * item.Quantity,
				SnapshotProductMaterials: models.ProductSnapshot{
					Title:       ticket.Experience.Title,
					ImageURL:    ticket.Experience.ImageURL,
					UnitPrice:   ticket.Price,
					TicketTitle: ticket.Title,
				},
			},
			shipping: fees.ShippingLine{Disabled: true},
		})
	}
	return lines, nil
}

// itemTypeOf rejects malformed lines and checkouts mixing products and tickets.
func itemTypeOf(items []LineItem) (enums.ItemType, error) {
	var itemType enums.ItemType
	for _, item := range items {
		if item.Quantity <= 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		isTicket := item.SessionTicketID != uuid.Nil
		if isTicket == (item.ProductID != uuid.Nil) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "item must reference either a product or a session ticket")
		}
		current := enums.ItemTypeProduct
		if isTicket {
			current = enums.ItemTypeExperience
		}
		if itemType != "" && itemType != current {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "products and experiences must be checked out separately")
		}
		itemType = current
	}
	return itemType, nil
}

func snapshotAddress(a *models.ShippingAddress) models.AddressSnapshot {
	return models.AddressSnapshot{
		RecipientName: a.RecipientName,
		PostalCode:    a.PostalCode,
		CountryCode:   a.CountryCode,
		Prefecture:    a.Prefecture,
		City:          a.City,
		Line1:         a.Line1,
		Line2:         a.Line2,
		Phone:         a.Phone,
	}
}
