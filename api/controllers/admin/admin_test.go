package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/api/middleware"
	internalorders "github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/internal/reconcile"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

type stubAdminOrders struct {
	filters     internalorders.ListFilters
	updateInput internalorders.UpdateStatusInput
	updateErr   error
}

func (s *stubAdminOrders) AdminList(_ context.Context, _ pagination.Params, filters internalorders.ListFilters) (*internalorders.DetailPage, error) {
	s.filters = filters
	return &internalorders.DetailPage{Orders: []internalorders.OrderDetail{}}, nil
}

func (s *stubAdminOrders) AdminGet(_ context.Context, id string) (*internalorders.OrderDetail, error) {
	detail := &internalorders.OrderDetail{RequesterEmail: "buyer@example.com"}
	detail.ID = id
	return detail, nil
}

func (s *stubAdminOrders) UpdateStatus(_ context.Context, input internalorders.UpdateStatusInput) (*internalorders.OrderDetail, error) {
	s.updateInput = input
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	detail := &internalorders.OrderDetail{}
	detail.ID = input.OrderID
	detail.Status = input.Status
	return detail, nil
}

type stubAnomalies struct {
	status  *enums.AnomalyStatus
	resolve reconcile.ResolveInput
	anomaly models.PaymentAnomaly
}

func (s *stubAnomalies) ListAnomalies(_ context.Context, _ pagination.Params, status *enums.AnomalyStatus) (*reconcile.AnomalyList, error) {
	s.status = status
	return &reconcile.AnomalyList{Anomalies: []models.PaymentAnomaly{s.anomaly}, NextCursor: "next"}, nil
}

func (s *stubAnomalies) GetAnomaly(_ context.Context, id uuid.UUID) (*models.PaymentAnomaly, error) {
	if id != s.anomaly.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "anomaly not found")
	}
	return &s.anomaly, nil
}

func (s *stubAnomalies) ResolveAnomaly(_ context.Context, input reconcile.ResolveInput) (*models.PaymentAnomaly, error) {
	s.resolve = input
	resolved := s.anomaly
	resolved.Status = enums.AnomalyStatusDismissed
	return &resolved, nil
}

func adminRequest(method, target, body string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithIdentity(req.Context(), middleware.Identity{
		UserID: "admin-1",
		Email:  "ops@example.com",
		Role:   string(enums.UserRoleAdmin),
	})
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
}

func sampleAnomaly() models.PaymentAnomaly {
	currency := "INR"
	return models.PaymentAnomaly{
		ID:               uuid.New(),
		OrderID:          "ord_1",
		Provider:         enums.PaymentMethodCashfree,
		ObservedStatus:   enums.PaymentStatusSuccess,
		ReportedStatus:   enums.PaymentStatusFailed,
		ReportedAmount:   decimal.NewNullDecimal(decimal.RequireFromString("1499.00")),
		ReportedCurrency: &currency,
		Status:           enums.AnomalyStatusOpen,
		Occurrences:      2,
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestListOrdersParsesStatusFilter(t *testing.T) {
	svc := &stubAdminOrders{}
	rec := httptest.NewRecorder()
	ListOrders(svc, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/admin/orders?status=PAID", "", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.filters.Status == nil || *svc.filters.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid filter, got %+v", svc.filters)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ListOrders(&stubAdminOrders{}, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/admin/orders?status=shipped", "", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetOrderReturnsDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	GetOrder(&stubAdminOrders{}, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/admin/orders/ord_1", "", map[string]string{"orderId": "ord_1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"requesterEmail":"buyer@example.com"`) {
		t.Fatalf("expected unredacted detail: %s", rec.Body.String())
	}
}

func TestUpdateOrderStatusCarriesActor(t *testing.T) {
	svc := &stubAdminOrders{}
	rec := httptest.NewRecorder()
	req := adminRequest(http.MethodPatch, "/api/v1/admin/orders/ord_1/status", `{"status":"in_progress"}`, map[string]string{"orderId": "ord_1"})
	UpdateOrderStatus(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	in := svc.updateInput
	if in.OrderID != "ord_1" || in.Status != enums.OrderStatusInProgress || in.ActorID != "admin-1" || in.ActorEmail != "ops@example.com" {
		t.Fatalf("unexpected input %+v", in)
	}
}

func TestUpdateOrderStatusSurfacesStateConflict(t *testing.T) {
	svc := &stubAdminOrders{updateErr: pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")}
	rec := httptest.NewRecorder()
	req := adminRequest(http.MethodPatch, "/api/v1/admin/orders/ord_1/status", `{"status":"completed"}`, map[string]string{"orderId": "ord_1"})
	UpdateOrderStatus(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestListAnomaliesRendersCamelCase(t *testing.T) {
	svc := &stubAnomalies{anomaly: sampleAnomaly()}
	rec := httptest.NewRecorder()
	ListAnomalies(svc, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/admin/anomalies?status=open", "", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.status == nil || *svc.status != enums.AnomalyStatusOpen {
		t.Fatalf("expected open filter")
	}

	var envelope struct {
		Data struct {
			Anomalies []map[string]any `json:"anomalies"`
			Next      string           `json:"nextCursor"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data.Anomalies) != 1 || envelope.Data.Next != "next" {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
	row := envelope.Data.Anomalies[0]
	if row["orderId"] != "ord_1" || row["reportedStatus"] != "FAILED" || row["reportedAmount"] != "1499" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestGetAnomalyRejectsBadID(t *testing.T) {
	rec := httptest.NewRecorder()
	GetAnomaly(&stubAnomalies{}, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/admin/anomalies/nope", "", map[string]string{"anomalyId": "nope"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestResolveAnomaly(t *testing.T) {
	anomaly := sampleAnomaly()
	svc := &stubAnomalies{anomaly: anomaly}
	rec := httptest.NewRecorder()
	req := adminRequest(http.MethodPost, "/api/v1/admin/anomalies/"+anomaly.ID.String()+"/resolve",
		`{"action":"dismiss","note":"  provider test event  "}`,
		map[string]string{"anomalyId": anomaly.ID.String()})
	ResolveAnomaly(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	in := svc.resolve
	if in.AnomalyID != anomaly.ID || in.Action != reconcile.ResolveDismiss || in.ActorID != "admin-1" {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.Note != "provider test event" {
		t.Fatalf("expected trimmed note, got %q", in.Note)
	}
}

func TestResolveAnomalyRejectsUnknownAction(t *testing.T) {
	anomaly := sampleAnomaly()
	rec := httptest.NewRecorder()
	req := adminRequest(http.MethodPost, "/", `{"action":"ignore"}`, map[string]string{"anomalyId": anomaly.ID.String()})
	ResolveAnomaly(&stubAnomalies{anomaly: anomaly}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
