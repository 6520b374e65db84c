package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/queue"
)

type mockSender struct {
	mu   sync.Mutex
	sent []*Notification
	fail bool
}

func (m *mockSender) Send(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, n)
	return nil
}

func TestDispatch_CriticalLabResult(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, zerolog.Nop())

	v := 2.1
	orderedBy := uuid.New()
	payload, _ := json.Marshal(queue.LabResult{
		TestID: uuid.New(), PatientID: uuid.New(), TestCode: "K", TestName: "Potassium",
		Value: &v, Unit: "mmol/L", Flag: "critical_low", OrderedBy: orderedBy,
	})

	n, err := d.Dispatch(context.Background(), queue.TopicLabResultCritical, payload)
	require.NoError(t, err)
	assert.Equal(t, "sent", n.Status)
	assert.Equal(t, "CRITICAL lab result: Potassium", n.Subject)
	assert.Contains(t, n.Body, "resulted 2.1 mmol/L (critical_low)")
	assert.Equal(t, "ordering-physician:"+orderedBy.String(), n.Recipient)
	assert.Equal(t, "urgent", n.Priority)
	assert.Len(t, sender.sent, 1)
}

func TestDispatch_UnknownTopic(t *testing.T) {
	d := NewDispatcher(&mockSender{}, zerolog.Nop())
	_, err := d.Dispatch(context.Background(), "nope", []byte(`{}`))
	assert.Error(t, err)
}

func TestDispatch_FailureThenRetry(t *testing.T) {
	sender := &mockSender{fail: true}
	d := NewDispatcher(sender, zerolog.Nop())

	payload, _ := json.Marshal(queue.LowStock{Name: "Amoxicillin", Strength: "500mg", StockQuantity: 3, ReorderLevel: 10})
	n, err := d.Dispatch(context.Background(), queue.TopicPharmacyLowStock, payload)
	require.NoError(t, err)
	assert.Equal(t, "failed", n.Status)
	assert.Equal(t, 1, d.Stats()["failed"])

	sender.fail = false
	retried, err := d.Retry(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, "sent", retried.Status)
	assert.Equal(t, "Amoxicillin 500mg is at 3 units (reorder level 10).", retried.Body)

	_, err = d.Retry(context.Background(), n.ID)
	assert.Error(t, err, "already sent")
	_, err = d.Retry(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRecent_KeepsLastEntries(t *testing.T) {
	d := NewDispatcher(&mockSender{}, zerolog.Nop())
	for i := 0; i < historySize+20; i++ {
		payload := []byte(fmt.Sprintf(`{"name":"Med%d","strength":"1mg","stock_quantity":1,"reorder_level":5}`, i))
		_, err := d.Dispatch(context.Background(), queue.TopicPharmacyLowStock, payload)
		require.NoError(t, err)
	}
	recent := d.Recent("")
	require.Len(t, recent, historySize)
	assert.Equal(t, fmt.Sprintf("Low stock: Med%d 1mg", historySize+19), recent[0].Subject)
	assert.Empty(t, d.Recent("failed"))
}

func TestHandler_List(t *testing.T) {
	d := NewDispatcher(&mockSender{}, zerolog.Nop())
	payload, _ := json.Marshal(queue.AppointmentBooked{AppointmentID: uuid.New(), Type: "consultation"})
	_, err := d.Dispatch(context.Background(), queue.TopicAppointmentBooked, payload)
	require.NoError(t, err)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), rec)
	require.NoError(t, NewHandler(d).List(c))

	var got []Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, queue.TopicAppointmentBooked, got[0].Topic)
}
