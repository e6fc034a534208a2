package reconcile

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// Event is a verified, provider-normalized payment report.
type Event struct {
	Provider              enums.PaymentMethod
	OrderID               string
	Outcome               enums.PaymentStatus
	Amount                decimal.NullDecimal
	Currency              string
	ProviderTransactionID string
	ProviderOrderID       string
	ProviderEventID       string
	Payload               json.RawMessage
	ReceivedAt            time.Time
}

// Result is the outcome of reconciling one event. Order is the state after
// reconciliation when the order exists.
type Result struct {
	Outcome   enums.ReconcileResult
	OrderID   string
	Order     *models.Order
	AnomalyID *uuid.UUID
}

// AnomalyList is one cursor page of anomalies.
type AnomalyList struct {
	Anomalies  []models.PaymentAnomaly `json:"anomalies"`
	NextCursor string                  `json:"nextCursor,omitempty"`
}

// ResolveAction is the admin decision on an anomaly.
type ResolveAction string

const (
	ResolveAccept  ResolveAction = "accept"
	ResolveDismiss ResolveAction = "dismiss"
)

// ResolveInput carries an admin anomaly decision.
type ResolveInput struct {
	AnomalyID  uuid.UUID
	Action     ResolveAction
	ActorID    string
	ActorEmail string
	Note       string
}
