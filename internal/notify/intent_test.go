package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/pkg/circuitbreaker"
)

func TestComposeApproved(t *testing.T) {
	subject, body := Compose(KindApproved, 42, "Amoxicillin", "")
	if !strings.Contains(subject, "#42") || !strings.Contains(subject, "approved") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Amoxicillin") {
		t.Errorf("body missing drug name: %q", body)
	}
}

func TestComposeDenied(t *testing.T) {
	subject, body := Compose(KindDenied, 42, "", "prescription expired")
	if !strings.Contains(subject, "denied") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "prescription expired") {
		t.Errorf("body missing reason: %q", body)
	}
	// No drug resolved yet: the message falls back to a generic reference.
	if !strings.Contains(body, "your prescription") {
		t.Errorf("body = %q", body)
	}
}

func TestNewIntentHasDedupKey(t *testing.T) {
	a := NewIntent(KindApproved, 1, 42, 100, "Amoxicillin", "")
	b := NewIntent(KindApproved, 1, 42, 100, "Amoxicillin", "")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("intent IDs not unique: %q vs %q", a.ID, b.ID)
	}
	if a.Subject == "" || a.Body == "" {
		t.Error("intent created without composed message")
	}
}

type stubTransport struct {
	sent    int
	sendErr error
}

func (s *stubTransport) Send(context.Context, int64, string, string) error {
	s.sent++
	return s.sendErr
}

func newTestDispatcher(tr Transport) *Dispatcher {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("test"), zap.NewNop())
	return NewDispatcher(tr, breaker, nil, zap.NewNop())
}

func TestDispatcherDeliver(t *testing.T) {
	tr := &stubTransport{}
	d := newTestDispatcher(tr)

	in := NewIntent(KindApproved, 1, 42, 100, "Amoxicillin", "")
	if err := d.Deliver(context.Background(), in); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if tr.sent != 1 {
		t.Errorf("sends = %d, want 1", tr.sent)
	}
}

func TestDispatcherDeliverFailure(t *testing.T) {
	tr := &stubTransport{sendErr: errors.New("smtp unreachable")}
	d := newTestDispatcher(tr)

	in := NewIntent(KindDenied, 1, 42, 100, "", "expired")
	err := d.Deliver(context.Background(), in)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if !errors.Is(err, tr.sendErr) {
		t.Errorf("err = %v, want wrapped transport error", err)
	}
}
