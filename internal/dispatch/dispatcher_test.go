package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PedroDircksen/Lighthouse/internal/channel"
)

type fakeMail struct {
	to, subject, body string
	calls             int
	err               error
}

func (f *fakeMail) Send(to, subject, body string) error {
	f.calls++
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

func emptyRegistry(t *testing.T) *channel.Registry {
	t.Helper()
	return channel.NewRegistry(channel.Config{
		GatewayURL: "ws://127.0.0.1:0",
		StateDir:   t.TempDir(),
	})
}

func TestSendTextRequiresInput(t *testing.T) {
	d := New(emptyRegistry(t), nil, Config{SessionID: "main"})
	if err := d.SendText(context.Background(), "", "olá"); err == nil {
		t.Error("blank phone must not send")
	}
	if err := d.SendText(context.Background(), "5511987654321", "  "); err == nil {
		t.Error("blank text must not send")
	}
}

func TestSendTextWithoutSession(t *testing.T) {
	d := New(emptyRegistry(t), nil, Config{SessionID: "main"})
	err := d.SendText(context.Background(), "5511987654321", "olá")
	if !errors.Is(err, channel.ErrSessionNotReady) {
		t.Errorf("err = %v, want ErrSessionNotReady", err)
	}
}

func TestNotifyLegsAreIndependent(t *testing.T) {
	mail := &fakeMail{}
	d := New(emptyRegistry(t), mail, Config{SessionID: "main"})

	out := d.Notify(context.Background(), "5511987654321", "ana@example.com", "olá")
	if out.Primary == nil {
		t.Error("primary leg must fail without a session")
	}
	if out.Secondary != nil {
		t.Errorf("secondary = %v, mail leg must not inherit the primary failure", out.Secondary)
	}
	if mail.calls != 1 || mail.to != "ana@example.com" {
		t.Errorf("mail calls = %d to = %q", mail.calls, mail.to)
	}
	if mail.subject != "Atualização do seu projeto" {
		t.Errorf("subject = %q, want default", mail.subject)
	}
}

func TestNotifySecondaryFailure(t *testing.T) {
	mail := &fakeMail{err: errors.New("smtp refused")}
	d := New(emptyRegistry(t), mail, Config{SessionID: "main"})

	out := d.Notify(context.Background(), "5511987654321", "ana@example.com", "olá")
	if out.Secondary == nil {
		t.Error("mail error must surface as the secondary outcome")
	}
}

func TestNotifySkipsMailLeg(t *testing.T) {
	mail := &fakeMail{}
	d := New(emptyRegistry(t), mail, Config{SessionID: "main"})

	d.Notify(context.Background(), "5511987654321", "", "olá")
	if mail.calls != 0 {
		t.Errorf("mail calls = %d, no email means no mail leg", mail.calls)
	}
}

func TestBulkRecordsEveryPhone(t *testing.T) {
	d := New(emptyRegistry(t), nil, Config{SessionID: "main", MinDelay: time.Second, MaxDelay: 2 * time.Second})
	var sleeps int
	d.sleep = func(time.Duration) { sleeps++ }

	results := d.Bulk(context.Background(), []string{"a", "b", "c"}, "olá")
	if len(results) != 3 {
		t.Fatalf("results = %v", results)
	}
	for _, res := range results {
		if res.OK || res.Error == "" {
			t.Errorf("result %+v, want failure with message", res)
		}
	}
	// The delay sits between sends, not before the first.
	if sleeps != 2 {
		t.Errorf("sleeps = %d, want 2", sleeps)
	}
}

func TestDelayBounds(t *testing.T) {
	d := New(emptyRegistry(t), nil, Config{SessionID: "main", MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second})
	for i := 0; i < 100; i++ {
		if got := d.Delay(); got < 2*time.Second || got > 5*time.Second {
			t.Fatalf("Delay = %v out of range", got)
		}
	}

	fixed := New(emptyRegistry(t), nil, Config{SessionID: "main", MinDelay: time.Second, MaxDelay: time.Second})
	if got := fixed.Delay(); got != time.Second {
		t.Errorf("Delay = %v, want exactly the floor", got)
	}
}
