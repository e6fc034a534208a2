package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

func deadLetter(aggregateID string, failedAt time.Time, message string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventOrderPaymentRecorded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"order_id":"` + aggregateID + `"}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &message,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQRecordTxClipsErrorText(t *testing.T) {
	conn := newOutboxTestDB(t)
	require.NoError(t, conn.AutoMigrate(&models.OutboxDLQ{}))
	repo := NewDLQRepository(conn)

	entry := deadLetter("ord_7f3a", time.Now().UTC(), strings.Repeat("x", maxDLQErrorLen+200))
	require.NoError(t, repo.RecordTx(conn, entry))

	var stored models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", entry.EventID).First(&stored).Error)
	require.NotEqual(t, uuid.Nil, stored.ID)
	require.Len(t, *stored.ErrorMessage, maxDLQErrorLen)

	require.Error(t, repo.RecordTx(nil, entry))
}

func TestDLQPurgeBeforeKeepsRecentRows(t *testing.T) {
	conn := newOutboxTestDB(t)
	require.NoError(t, conn.AutoMigrate(&models.OutboxDLQ{}))
	repo := NewDLQRepository(conn)
	now := time.Now().UTC()

	require.NoError(t, repo.RecordTx(conn, deadLetter("ord_old", now.Add(-100*24*time.Hour), "topic not found")))
	require.NoError(t, repo.RecordTx(conn, deadLetter("ord_new", now.Add(-time.Hour), "permission denied")))

	deleted, err := repo.PurgeBefore(context.Background(), now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var left []models.OutboxDLQ
	require.NoError(t, conn.Find(&left).Error)
	require.Len(t, left, 1)
	require.Equal(t, "ord_new", left[0].AggregateID)
}
