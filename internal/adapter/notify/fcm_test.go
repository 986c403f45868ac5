package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"delivery-settlement/internal/core/domain"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", nil
}

func TestFCMSink_Send(t *testing.T) {
	fake := &fakeMessenger{}
	sink := &FCMSink{client: fake, log: zerolog.New(io.Discard)}

	err := sink.Send(context.Background(), "device-1", domain.Notification{
		RecipientID: uuid.New(),
		Template:    domain.NotifyOrderStatusChanged,
		Data:        map[string]string{"order_id": "o-1", "status": "PICKED_UP"},
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)

	msg := fake.sent[0]
	assert.Equal(t, "device-1", msg.Token)
	assert.Equal(t, "Order update", msg.Notification.Title)
	assert.Equal(t, "Your order is now PICKED_UP", msg.Notification.Body)
	assert.Equal(t, "o-1", msg.Data["order_id"])
	assert.Equal(t, domain.NotifyOrderStatusChanged, msg.Data["type"])
	assert.Equal(t, "high", msg.Android.Priority)
}

func TestFCMSink_SendError(t *testing.T) {
	sink := &FCMSink{client: &fakeMessenger{err: errors.New("unregistered")}, log: zerolog.New(io.Discard)}

	err := sink.Send(context.Background(), "device-1", domain.Notification{Template: domain.NotifyOrderAssigned})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered")
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		n        domain.Notification
		title    string
		contains string
	}{
		{"assigned", domain.Notification{Template: domain.NotifyOrderAssigned}, "New delivery", "assigned"},
		{"opened", domain.Notification{Template: domain.NotifySettlementOpened, Data: map[string]string{"amount_owed": "9500", "deadline": "Wed"}}, "Weekly settlement", "9500"},
		{"rejected", domain.Notification{Template: domain.NotifySettlementRejected, Data: map[string]string{"notes": "blurry receipt"}}, "Settlement rejected", "blurry receipt"},
		{"unknown", domain.Notification{Template: "promo.weekend"}, "Notification", "promo.weekend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := render(tt.n)
			assert.Equal(t, tt.title, title)
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestLogSink_NeverFails(t *testing.T) {
	sink := NewLogSink(zerolog.New(io.Discard))
	assert.NoError(t, sink.Send(context.Background(), "", domain.Notification{Template: domain.NotifySettlementApproved}))
}
