package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/aidigitalagency/storefront-backend/pkg/db"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const onceIndex = "ux_outbox_events_event_aggregate"

var (
	errNoTx        = errors.New("outbox: transaction required")
	errNoAggregate = errors.New("outbox: aggregate id required")
)

// DomainEvent is what a domain service hands to the outbox. Data is the typed
// payload from the payloads package; Version and OccurredAt are defaulted.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) check() error {
	if strings.TrimSpace(e.AggregateID) == "" {
		return errNoAggregate
	}
	if e.EventType == "" || e.AggregateType == "" {
		return fmt.Errorf("outbox: event %q on aggregate %q is incomplete", e.EventType, e.AggregateType)
	}
	return nil
}

// Emitter is the write side consumed by the domain services.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// Emit writes the event through tx, so the row only exists if the caller's
// state change commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	row, err := s.rowFor(event)
	if err != nil {
		return err
	}
	if tx == nil {
		return errNoTx
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("outbox: insert %s: %w", event.EventType, err)
	}
	s.queued(ctx, row)
	return nil
}

// EmitIfNotExists queues an event that may exist at most once per aggregate.
// A concurrent writer losing the race on the partial unique index is not an
// error; the savepoint keeps the caller's transaction usable on Postgres.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.check(); err != nil {
		return err
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return fmt.Errorf("outbox: lookup %s: %w", event.EventType, err)
	}
	if exists {
		return nil
	}

	const savepoint = "outbox_once"
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return fmt.Errorf("outbox: savepoint: %w", err)
	}
	err = s.Emit(ctx, tx, event)
	if err != nil && dbpkg.IsUniqueViolation(err, onceIndex) {
		return tx.RollbackTo(savepoint).Error
	}
	return err
}

func (s *Service) rowFor(event DomainEvent) (models.OutboxEvent, error) {
	if err := event.check(); err != nil {
		return models.OutboxEvent{}, err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox: encode %s payload: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    max(event.Version, 1),
		EventID:    s.newID().String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = s.now()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox: encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            s.newID(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, nil
}

func (s *Service) queued(ctx context.Context, row models.OutboxEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
	})
	s.logg.Debug(ctx, "outbox event queued")
}
