package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/logbus"
	"ethermail_farm/internal/model"
	"ethermail_farm/internal/notify"
	"ethermail_farm/internal/store/sqlite"
	"ethermail_farm/internal/taskstore"
)

// Registrar creates one account through one proxy. The production
// implementation is the full wallet → nonce → login → onboarding workflow.
type Registrar interface {
	Register(ctx context.Context, proxy string) (model.CreatedAccount, error)
}

type Options struct {
	Tasks    *taskstore.Store
	Store    *sqlite.Store
	Bus      *logbus.Bus
	Limits   config.LimitsConfig
	Upstream config.UpstreamConfig
	Notifier notify.Notifier

	// Registrar overrides the default workflow; used by tests.
	Registrar Registrar
}

// Engine executes batch registration tasks in the background: bounded
// concurrency per task, optional launch pacing, per-item outcome
// aggregation into the task store. A failing item never aborts siblings
// and a task always reaches completed, whatever the failure count.
type Engine struct {
	tasks     *taskstore.Store
	bus       *logbus.Bus
	notifier  notify.Notifier
	registrar Registrar

	inFlight chan struct{}
	wg       sync.WaitGroup
}

func New(opts Options) *Engine {
	maxInFlight := opts.Limits.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 10
	}

	registrar := opts.Registrar
	if registrar == nil {
		globalQPS := opts.Limits.GlobalQPS
		if globalQPS <= 0 {
			globalQPS = 5
		}
		globalBurst := opts.Limits.GlobalBurst
		if globalBurst <= 0 {
			globalBurst = 10
		}
		registrar = &accountRegistrar{
			cfg:     opts.Upstream,
			store:   opts.Store,
			bus:     opts.Bus,
			limiter: rate.NewLimiter(rate.Limit(globalQPS), globalBurst),
		}
	}

	return &Engine{
		tasks:     opts.Tasks,
		bus:       opts.Bus,
		notifier:  opts.Notifier,
		registrar: registrar,
		inFlight:  make(chan struct{}, maxInFlight),
	}
}

// Launch starts executing the task and returns immediately; callers poll
// the task store (or watch the bus) for progress.
func (e *Engine) Launch(taskID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(context.Background(), taskID)
	}()
}

// Close waits for in-flight tasks to finish or the context to expire.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, taskID string) {
	proxies, count, delaySeconds, err := e.tasks.Params(taskID)
	if err != nil {
		return
	}
	startedAt := time.Now()
	e.tasks.MarkRunning(taskID)
	if e.bus != nil {
		e.bus.Log("info", "task started", map[string]any{"taskId": taskID, "count": count})
	}

	// Decorrelate proxy wear from list order: shuffle, then assign the
	// first count proxies 1:1 to work items.
	shuffled := append([]string(nil), proxies...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	assigned := shuffled[:count]

	var wg sync.WaitGroup
	for _, proxy := range assigned {
		wg.Add(1)
		go func(proxy string) {
			defer wg.Done()
			e.runItem(ctx, taskID, proxy, delaySeconds)
		}(proxy)
	}
	wg.Wait()

	e.tasks.MarkCompleted(taskID)
	snap, err := e.tasks.Get(taskID)
	if err != nil {
		return
	}
	if e.bus != nil {
		e.bus.Log("info", "task completed", map[string]any{
			"taskId":    taskID,
			"completed": snap.Completed,
			"failed":    snap.Failed,
		})
		e.bus.Progress(model.TaskProgress{
			TaskID:    taskID,
			Status:    snap.Status,
			Total:     snap.Total,
			Completed: snap.Completed,
			Failed:    snap.Failed,
		})
	}
	if e.notifier != nil {
		e.notifier.NotifyTaskCompleted(ctx, notify.TaskCompletedEvent{
			At:        time.Now(),
			TaskID:    taskID,
			Total:     snap.Total,
			Completed: snap.Completed,
			Failed:    snap.Failed,
			Duration:  time.Since(startedAt),
		})
	}
}

func (e *Engine) runItem(ctx context.Context, taskID, proxy string, delaySeconds float64) {
	if delaySeconds > 0 {
		// Throttle the launch burst; the item does no work until the
		// pacing delay has passed and an admission slot is free.
		timer := time.NewTimer(time.Duration(delaySeconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			e.recordFailure(taskID, proxy, ctx.Err().Error())
			return
		}
	}

	select {
	case e.inFlight <- struct{}{}:
	case <-ctx.Done():
		e.recordFailure(taskID, proxy, ctx.Err().Error())
		return
	}
	defer func() { <-e.inFlight }()

	res, err := e.registrar.Register(ctx, proxy)
	if err != nil {
		e.recordFailure(taskID, proxy, err.Error())
		return
	}
	progress := e.tasks.RecordSuccess(taskID, res)
	if e.bus != nil {
		e.bus.Log("info", "account registered", map[string]any{
			"taskId":        taskID,
			"walletAddress": res.WalletAddress,
		})
		e.bus.Progress(progress)
	}
}

func (e *Engine) recordFailure(taskID, proxy, msg string) {
	progress := e.tasks.RecordFailure(taskID, msg)
	if e.bus != nil {
		e.bus.Log("error", "account registration failed", map[string]any{
			"taskId": taskID,
			"proxy":  proxy,
			"error":  msg,
		})
		e.bus.Progress(progress)
	}
}
