package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/PedroDircksen/Lighthouse/internal/channel"
	"github.com/PedroDircksen/Lighthouse/internal/config"
	"github.com/PedroDircksen/Lighthouse/internal/dispatch"
	"github.com/PedroDircksen/Lighthouse/internal/mail"
	"github.com/PedroDircksen/Lighthouse/internal/notify"
	"github.com/PedroDircksen/Lighthouse/internal/pipeline"
	"github.com/PedroDircksen/Lighthouse/internal/storage/sqlite"
	"github.com/PedroDircksen/Lighthouse/internal/token"
	"github.com/PedroDircksen/Lighthouse/internal/tracker"
)

// app is the composition root: every long-lived component, built once
// from config and injected explicitly. Nothing global.
type app struct {
	cfg      config.Config
	sessions *channel.Registry
	dispatch *dispatch.Dispatcher
}

func buildApp(cfg config.Config) *app {
	sessions := channel.NewRegistry(channel.Config{
		GatewayURL:        cfg.Channel.GatewayURL,
		StateDir:          cfg.Channel.StateDir,
		ReconnectInterval: cfg.Channel.ReconnectInterval.Std(),
		MaxRetries:        cfg.Channel.MaxRetries,
	})

	var mailer dispatch.MailSender
	if cfg.Mail.Enabled() {
		mailer = mail.NewSender(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}

	return &app{
		cfg:      cfg,
		sessions: sessions,
		dispatch: dispatch.New(sessions, mailer, dispatch.Config{
			SessionID: cfg.Channel.SessionID,
			MinDelay:  cfg.Pipeline.MinDelay.Std(),
			MaxDelay:  cfg.Pipeline.MaxDelay.Std(),
		}),
	}
}

// buildRunner assembles the sync pipeline. It fails when the tracker
// credentials or the token secret are missing, before any work happens.
func (a *app) buildRunner() (*pipeline.Runner, *sqlite.Store, error) {
	if err := a.cfg.ValidateTracker(); err != nil {
		return nil, nil, err
	}
	signer, err := token.NewSigner(a.cfg.TokenSecret)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.New(a.cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	source := tracker.New(tracker.Config{
		BaseURL: a.cfg.Tracker.BaseURL,
		Token:   a.cfg.Tracker.Token,
		TeamID:  a.cfg.Tracker.TeamID,
		Tag:     a.cfg.Tracker.Tag,
	})
	composer := notify.New(notify.Config{
		BaseURL:   a.cfg.Notify.BaseURL,
		APIKey:    a.cfg.Notify.APIKey,
		Model:     a.cfg.Notify.Model,
		PortalURL: a.cfg.Notify.PortalURL,
	})

	runner := pipeline.NewRunner(source, store, signer, composer, a.dispatch, pipeline.Config{
		Tag:          a.cfg.Tracker.Tag,
		DoneStatuses: a.cfg.Tracker.DoneSet(),
		PhoneField:   a.cfg.Tracker.PhoneField,
		EmailField:   a.cfg.Tracker.EmailField,
	})
	return runner, store, nil
}

// connectSession starts the channel session when credential material
// exists from a previous link, mirroring service startup: an unlinked
// identity stays down until an explicit link.
func (a *app) connectSession(ctx context.Context) error {
	id := a.cfg.Channel.SessionID
	if !a.sessions.HasCredentials(id) {
		return nil
	}
	_, err := a.sessions.Connect(ctx, id)
	return err
}

// waitReady polls the session until it is Open, it closes, or the
// timeout elapses.
func (a *app) waitReady(ctx context.Context, timeout time.Duration) error {
	id := a.cfg.Channel.SessionID
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s, ok := a.sessions.Get(id)
		if ok {
			switch s.State() {
			case channel.StateOpen:
				return nil
			case channel.StateClosed:
				return fmt.Errorf("session %s closed before opening", id)
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("session %s not ready after %s", id, timeout)
}
