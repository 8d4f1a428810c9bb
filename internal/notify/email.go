package notify

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/logbus"
)

// EmailNotifier mails a short summary when a batch task finishes. Events
// are queued and sent from a background loop so SMTP latency never blocks
// the engine.
type EmailNotifier struct {
	cfg config.NotifyConfig
	bus *logbus.Bus

	mu     sync.Mutex
	queue  chan TaskCompletedEvent
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(cfg config.NotifyConfig, bus *logbus.Bus) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		cfg:    cfg,
		bus:    bus,
		queue:  make(chan TaskCompletedEvent, 64),
		cancel: cancel,
	}
	n.wg.Add(1)
	go n.loop(ctx)
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyTaskCompleted(_ context.Context, evt TaskCompletedEvent) {
	select {
	case n.queue <- evt:
	default:
		if n.bus != nil {
			n.bus.Log("warn", "notify queue full, dropping event", map[string]any{"taskId": evt.TaskID})
		}
	}
}

func (n *EmailNotifier) loop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-n.queue:
			if err := n.send(evt); err != nil && n.bus != nil {
				n.bus.Log("error", "send notification mail", map[string]any{
					"taskId": evt.TaskID,
					"error":  err.Error(),
				})
			}
		}
	}
}

func (n *EmailNotifier) send(evt TaskCompletedEvent) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To)
	m.SetHeader("Subject", fmt.Sprintf("Registration task %s completed (%d/%d ok)", evt.TaskID, evt.Completed, evt.Total))
	m.SetBody("text/plain", fmt.Sprintf(
		"Task %s finished at %s.\n\nRequested: %d\nCompleted: %d\nFailed: %d\nDuration: %s\n",
		evt.TaskID, evt.At.Format("2006-01-02 15:04:05"), evt.Total, evt.Completed, evt.Failed, evt.Duration.Round(0)))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.Username, n.cfg.Password)
	return d.DialAndSend(m)
}
