// Package dispatch fans a message out over the primary channel session
// and, independently, the secondary mail channel. The two channels never
// affect each other's outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PedroDircksen/Lighthouse/internal/channel"
)

// MailSender is the secondary channel; nil disables it.
type MailSender interface {
	Send(to, subject, body string) error
}

type Config struct {
	SessionID string
	Subject   string
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

// Outcome is the per-destination result of one Notify call.
type Outcome struct {
	Primary   error
	Secondary error
}

// Result is a per-phone entry of a bulk send.
type Result struct {
	Phone string `json:"phone"`
	OK    bool   `json:"success"`
	Error string `json:"error,omitempty"`
}

type Dispatcher struct {
	sessions  *channel.Registry
	mail      MailSender
	sessionID string
	subject   string
	minDelay  time.Duration
	maxDelay  time.Duration
	sleep     func(time.Duration)
}

func New(sessions *channel.Registry, mail MailSender, cfg Config) *Dispatcher {
	subject := cfg.Subject
	if subject == "" {
		subject = "Atualização do seu projeto"
	}
	return &Dispatcher{
		sessions:  sessions,
		mail:      mail,
		sessionID: cfg.SessionID,
		subject:   subject,
		minDelay:  cfg.MinDelay,
		maxDelay:  cfg.MaxDelay,
		sleep:     time.Sleep,
	}
}

// Notify sends text to phone over the session and, when email is present
// and mail is configured, over the mail channel. Each leg fails on its
// own; both outcomes are reported.
func (d *Dispatcher) Notify(ctx context.Context, phone, email, text string) Outcome {
	var out Outcome
	out.Primary = d.SendText(ctx, phone, text)
	if email != "" && d.mail != nil {
		if err := d.mail.Send(email, d.subject, text); err != nil {
			out.Secondary = fmt.Errorf("mail to %s: %w", email, err)
		}
	}
	return out
}

// SendText resolves phone to a channel address and sends text through
// the active session.
func (d *Dispatcher) SendText(ctx context.Context, phone, text string) error {
	if strings.TrimSpace(phone) == "" || strings.TrimSpace(text) == "" {
		return errors.New("phone and text are required")
	}
	session, ok := d.sessions.Get(d.sessionID)
	if !ok {
		return channel.ErrSessionNotReady
	}
	address, err := channel.ResolveAddress(ctx, session, phone)
	if err != nil {
		return fmt.Errorf("resolve address: %w", err)
	}
	return session.Send(ctx, address, text)
}

// Bulk sends text to each phone sequentially, applying the same
// randomized inter-send delay the pipeline uses.
func (d *Dispatcher) Bulk(ctx context.Context, phones []string, text string) []Result {
	results := make([]Result, 0, len(phones))
	for i, phone := range phones {
		if i > 0 {
			d.sleep(d.Delay())
		}
		err := d.SendText(ctx, phone, text)
		if err != nil {
			log.Printf("dispatch: bulk send to %s: %v", phone, err)
			results = append(results, Result{Phone: phone, Error: err.Error()})
			continue
		}
		results = append(results, Result{Phone: phone, OK: true})
	}
	return results
}

// Delay returns a random duration in [minDelay, maxDelay], the pause
// enforced between consecutive sends to respect channel rate limits.
func (d *Dispatcher) Delay() time.Duration {
	if d.maxDelay <= d.minDelay {
		return d.minDelay
	}
	return d.minDelay + rand.N(d.maxDelay-d.minDelay+1)
}

// Pause blocks for one randomized inter-send delay.
func (d *Dispatcher) Pause() {
	d.sleep(d.Delay())
}
