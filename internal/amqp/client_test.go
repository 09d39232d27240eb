package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{64, 30 * time.Second}, // no shift overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("Circuit breaker should be closed initially")
		}
	})

	t.Run("record success resets state", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 3)
		atomic.StoreInt32(&client.state, StateOpen)

		client.recordSuccess()

		if client.isCircuitOpen() {
			t.Error("Circuit breaker should be closed after success")
		}
		if atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("Failure count should be reset to 0 after success")
		}
	})

	t.Run("multiple failures open circuit", func(t *testing.T) {
		client.recordSuccess()
		for i := 0; i < maxFailures-1; i++ {
			client.recordFailure()
		}
		if client.isCircuitOpen() {
			t.Fatal("Circuit breaker should stay closed below the threshold")
		}
		client.recordFailure()
		if !client.isCircuitOpen() {
			t.Error("Circuit breaker should be open after max failures")
		}
	})

	t.Run("circuit transitions to half-open after timeout", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)

		if client.isCircuitOpen() {
			t.Error("Circuit should transition to half-open after timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Error("State should be StateHalfOpen after timeout")
		}
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateHalfOpen)
		atomic.StoreInt64(&client.failureCount, 0)
		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("State should be StateOpen after a half-open failure")
		}
	})
}

func TestClient_PublishPaymentEvent_FailsFast(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}
	ev := NewPaymentEvent(core.Payment{ID: uuid.New(), LeaseID: uuid.New(), Status: core.PaymentPending})

	t.Run("publish fails when circuit is open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishPaymentEvent(context.Background(), ev)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("PublishPaymentEvent() error = %v, want ErrCircuitOpen", err)
		}
	})

	t.Run("publish respects context cancellation", func(t *testing.T) {
		client.recordSuccess()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.PublishPaymentEvent(ctx, ev); err != context.Canceled {
			t.Errorf("PublishPaymentEvent() error = %v, want context.Canceled", err)
		}
	})
}

func TestPaymentEvent_JSON(t *testing.T) {
	msg := &PaymentEvent{
		PaymentID: uuid.New(),
		LeaseID:   uuid.New(),
		Status:    core.PaymentCompleted,
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(raw), `"status":"COMPLETED"`) {
		t.Errorf("ToJSON() = %s, want status field", raw)
	}

	parsed, err := PaymentEventFromJSON(raw)
	if err != nil {
		t.Fatalf("PaymentEventFromJSON() error = %v", err)
	}
	if parsed.PaymentID != msg.PaymentID || parsed.LeaseID != msg.LeaseID || parsed.Status != msg.Status {
		t.Errorf("PaymentEventFromJSON() = %+v, want %+v", parsed, msg)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestPaymentEventFromJSON_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"bad uuid":       `{"paymentId":"nope","leaseId":"nope","status":"PENDING"}`,
		"missing ids":    `{"status":"PENDING"}`,
		"unknown status": fmt.Sprintf(`{"paymentId":%q,"leaseId":%q,"status":"REFUNDED"}`, uuid.New(), uuid.New()),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := PaymentEventFromJSON([]byte(body)); err == nil {
				t.Error("PaymentEventFromJSON() should fail")
			}
		})
	}
}

type fakeDelivery struct {
	raw     []byte
	acked   bool
	nacked  bool
	requeue bool
}

func (d *fakeDelivery) Ack(bool) error { d.acked = true; return nil }
func (d *fakeDelivery) Nack(_, requeue bool) error {
	d.nacked = true
	d.requeue = requeue
	return nil
}
func (d *fakeDelivery) body() []byte { return d.raw }

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	valid, _ := NewPaymentEvent(core.Payment{ID: uuid.New(), LeaseID: uuid.New(), Status: core.PaymentCompleted}).ToJSON()

	t.Run("ack on success", func(t *testing.T) {
		d := &fakeDelivery{raw: valid}
		var got *PaymentEvent
		dispatch(ctx, log.Discard(), d, func(_ context.Context, ev *PaymentEvent) error {
			got = ev
			return nil
		})
		if !d.acked || d.nacked {
			t.Errorf("acked=%v nacked=%v, want ack only", d.acked, d.nacked)
		}
		if got == nil || got.Status != core.PaymentCompleted {
			t.Errorf("handler got %+v", got)
		}
	})

	t.Run("requeue on handler error", func(t *testing.T) {
		d := &fakeDelivery{raw: valid}
		dispatch(ctx, log.Discard(), d, func(context.Context, *PaymentEvent) error { return errors.New("boom") })
		if !d.nacked || !d.requeue || d.acked {
			t.Errorf("nacked=%v requeue=%v acked=%v, want nack with requeue", d.nacked, d.requeue, d.acked)
		}
	})

	t.Run("drop undecodable body", func(t *testing.T) {
		d := &fakeDelivery{raw: []byte("garbage")}
		called := false
		dispatch(ctx, log.Discard(), d, func(context.Context, *PaymentEvent) error { called = true; return nil })
		if called {
			t.Error("handler should not run for undecodable body")
		}
		if !d.nacked || d.requeue {
			t.Errorf("nacked=%v requeue=%v, want nack without requeue", d.nacked, d.requeue)
		}
	})
}

func TestReconnectLoop_ResetsBackoffAfterConsuming(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// started reports, per session, whether consuming began before the drop.
	started := []bool{false, false, false, true, false}
	calls, resets := 0, 0
	s := func(context.Context) (bool, error) {
		if calls == len(started) {
			cancel()
			return false, errors.New("shutting down")
		}
		ok := started[calls]
		calls++
		return ok, errors.New("connection lost")
	}

	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	err := reconnectLoop(ctx, log.Discard(), s, sleep, func() { resets++ })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("reconnectLoop() error = %v, want context.Canceled", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second, 2 * time.Second}
	if fmt.Sprint(waits) != fmt.Sprint(want) {
		t.Errorf("backoffs = %v, want %v", waits, want)
	}
	if resets != len(want) {
		t.Errorf("resets = %d, want %d", resets, len(want))
	}
}

func TestReconnectLoop_StopsWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := func(context.Context) (bool, error) {
		cancel()
		return false, nil
	}
	err := reconnectLoop(ctx, log.Discard(), s, sleepContext, func() { t.Error("reset after cancel") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("reconnectLoop() error = %v, want context.Canceled", err)
	}
}
