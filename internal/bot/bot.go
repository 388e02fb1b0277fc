// Package bot wires the runtime together: the inference engine, the tool
// dispatcher and the chat transport become the lifecycle's environment, and
// the kernel runs one user state machine per chat peer.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"botd/internal/httpapi"
	"botd/internal/kernel"
	"botd/internal/lifecycle"
	"botd/internal/metrics"
	"botd/pkg/types"
)

// Options carries the bot's collaborators and tuning.
type Options struct {
	LLM   lifecycle.Decider
	Chat  lifecycle.Sender
	Tools lifecycle.ToolRunner

	Logger zerolog.Logger
	Clock  func() time.Time

	ForceResetDelay time.Duration
	GoodbyeDelay    time.Duration

	// status reporting
	ModelPath   string
	SessionPath string
	SessionWarm func() bool

	// kernel observability hook, optional
	Publisher kernel.EventPublisher
}

// Bot is the assembled runtime minus the transport poller and ops server,
// which the caller supervises.
type Bot struct {
	lc      *kernel.LifeCycle[types.UserID, lifecycle.State, lifecycle.Action, *lifecycle.Env]
	opts    Options
	started time.Time
	now     func() time.Time
	sender  *senderRef
}

var _ httpapi.Service = (*Bot)(nil)

// senderRef lets the transport be wired after the kernel, breaking the
// construction cycle between bot and transport.
type senderRef struct {
	mu sync.RWMutex
	s  lifecycle.Sender
}

func (r *senderRef) SendDM(ctx context.Context, id types.UserID, text string) error {
	r.mu.RLock()
	s := r.s
	r.mu.RUnlock()
	if s == nil {
		return errors.New("no transport wired")
	}
	return s.SendDM(ctx, id, text)
}

// New spawns the kernel around the user lifecycle. When Options.Chat is nil,
// wire the transport later via SetSender.
func New(ctx context.Context, opts Options) *Bot {
	sender := &senderRef{s: opts.Chat}
	env := &lifecycle.Env{
		LLM:             opts.LLM,
		Chat:            sender,
		Tools:           opts.Tools,
		Log:             opts.Logger,
		Now:             opts.Clock,
		ForceResetDelay: opts.ForceResetDelay,
		GoodbyeDelay:    opts.GoodbyeDelay,
	}
	env.ApplyDefaults()

	b := &Bot{opts: opts, now: env.Now, sender: sender}
	b.started = env.Now()

	pub := kernel.EventPublisher(&gaugePublisher{bot: b, next: opts.Publisher})
	b.lc = kernel.Spawn(ctx, env, lifecycle.Transition, lifecycle.NewSchedule(env), kernel.Config{
		Logger:    opts.Logger,
		Clock:     env.Now,
		Publisher: pub,
	})
	return b
}

// SetSender wires the outbound transport.
func (b *Bot) SetSender(s lifecycle.Sender) {
	b.sender.mu.Lock()
	b.sender.s = s
	b.sender.mu.Unlock()
}

// Act satisfies chat.Sink: the transport posts inbound actions here.
func (b *Bot) Act(id types.UserID, action lifecycle.Action) {
	b.lc.Act(id, action)
}

// Close drains the kernel.
func (b *Bot) Close() { b.lc.Close() }

// Users returns the live entity count.
func (b *Bot) Users() int { return b.lc.Entities() }

// Ready reports liveness for /healthz.
func (b *Bot) Ready() bool { return b.lc != nil }

// Status builds the /status payload.
func (b *Bot) Status() types.StatusResponse {
	warm := false
	if b.opts.SessionWarm != nil {
		warm = b.opts.SessionWarm()
	}
	now := b.now()
	return types.StatusResponse{
		State:          "ready",
		Users:          b.lc.Entities(),
		ModelPath:      b.opts.ModelPath,
		SessionWarm:    warm,
		SessionPath:    b.opts.SessionPath,
		UptimeSeconds:  int64(now.Sub(b.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// gaugePublisher keeps the active-user gauge current and forwards events.
type gaugePublisher struct {
	bot  *Bot
	next kernel.EventPublisher
}

func (p *gaugePublisher) Publish(e kernel.Event) {
	switch e.Name {
	case "entity_spawned", "entity_deleted":
		if p.bot.lc != nil {
			metrics.ActiveUsers.Set(float64(p.bot.lc.Entities()))
		}
	}
	if p.next != nil {
		p.next.Publish(e)
	}
}
