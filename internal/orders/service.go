package orders

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

// OrderIDPrefix marks storefront order identifiers.
const OrderIDPrefix = "ord_"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the ordering and fulfillment workflow. Payment columns are
// never written here.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderSummary, error)
	Get(ctx context.Context, id string) (*OrderView, error)
	ListForRequester(ctx context.Context, requesterID string, params pagination.Params) (*SummaryPage, error)
	AdminList(ctx context.Context, params pagination.Params, filters ListFilters) (*DetailPage, error)
	AdminGet(ctx context.Context, id string) (*OrderDetail, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDetail, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the orders service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewOrderID returns a fresh provider-independent order identifier.
func NewOrderID() string {
	id := uuid.New()
	return OrderIDPrefix + hex.EncodeToString(id[:])
}

// ValidOrderID reports whether value looks like an order id. Provider
// payloads are checked with it before any lookup.
func ValidOrderID(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > 64 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderSummary, error) {
	if strings.TrimSpace(input.RequesterID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requester identity missing")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.RequesterEmail)); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester email is invalid")
	}
	if strings.TrimSpace(input.RequesterName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester name is required")
	}
	if !input.Service.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported service %q", input.Service))
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", currency))
	}

	opts, err := parseParams(input.Service, input.Params)
	if err != nil {
		return nil, err
	}
	quote, err := Quote(input.Service, opts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:             NewOrderID(),
		RequesterID:    strings.TrimSpace(input.RequesterID),
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		RequesterName:  strings.TrimSpace(input.RequesterName),
		RequesterPhone: strings.TrimSpace(input.RequesterPhone),
		Service:        input.Service,
		Params:         input.Params,
		Status:         enums.OrderStatusPending,
		QuoteAmount:    quote,
		QuoteCurrency:  currency,
		PaymentStatus:  enums.PaymentStatusUnset,
		PaymentMethod:  enums.PaymentMethodUnset,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.RequesterID, Email: order.RequesterEmail, Role: enums.UserRoleCustomer.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:        order.ID,
				Service:        order.Service,
				QuoteAmount:    order.QuoteAmount,
				QuoteCurrency:  order.QuoteCurrency,
				RequesterName:  order.RequesterName,
				RequesterEmail: order.RequesterEmail,
				CreatedAt:      order.CreatedAt,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID)
	s.logg.Info(logCtx, "order created")

	summary := newOrderSummary(order)
	return &summary, nil
}

func (s *service) Get(ctx context.Context, id string) (*OrderView, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewOrderView(order)
	return &view, nil
}

func (s *service) ListForRequester(ctx context.Context, requesterID string, params pagination.Params) (*SummaryPage, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requester identity missing")
	}
	list, err := s.repo.ListByRequester(ctx, requesterID, params)
	if err != nil {
		return nil, listError(err)
	}
	page := &SummaryPage{Orders: make([]OrderSummary, 0, len(list.Orders)), NextCursor: list.NextCursor}
	for i := range list.Orders {
		page.Orders = append(page.Orders, newOrderSummary(&list.Orders[i]))
	}
	return page, nil
}

func (s *service) AdminList(ctx context.Context, params pagination.Params, filters ListFilters) (*DetailPage, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *filters.Status))
	}
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, listError(err)
	}
	page := &DetailPage{Orders: make([]OrderDetail, 0, len(list.Orders)), NextCursor: list.NextCursor}
	for i := range list.Orders {
		page.Orders = append(page.Orders, newOrderDetail(&list.Orders[i]))
	}
	return page, nil
}

func (s *service) AdminGet(ctx context.Context, id string) (*OrderDetail, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := newOrderDetail(order)
	return &detail, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDetail, error) {
	if strings.TrimSpace(input.ActorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", input.Status))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if err := CheckTransition(order, input.Status); err != nil {
			return err
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, order.Version, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently, retry")
		}

		from := order.Status
		order.Status = input.Status
		order.Version++
		order.UpdatedAt = s.now()
		updated = order

		actor := &outbox.ActorRef{UserID: input.ActorID, Email: input.ActorEmail, Role: enums.UserRoleAdmin.String()}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				From:      from,
				To:        input.Status,
				ChangedBy: input.ActorID,
			},
		}); err != nil {
			return err
		}
		if input.Status != enums.OrderStatusCompleted {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCompletedEvent{
				OrderID:        order.ID,
				Service:        order.Service,
				RequesterName:  order.RequesterName,
				RequesterEmail: order.RequesterEmail,
				CompletedAt:    order.UpdatedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": updated.ID, "status": updated.Status, "actor_id": input.ActorID})
	s.logg.Info(logCtx, "order status updated")

	detail := newOrderDetail(updated)
	return &detail, nil
}

func (s *service) load(ctx context.Context, id string) (*models.Order, error) {
	id = strings.TrimSpace(id)
	if !ValidOrderID(id) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is invalid")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func listError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, pagination.ErrBadCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
}
