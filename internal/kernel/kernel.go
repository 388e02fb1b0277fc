// Package kernel is a generic per-entity state machine runtime: each entity
// gets a serial mailbox, transitions produce new state plus deferred effects,
// and schedules declare timed wake-ups that are re-derived from the state
// after every transition. The chat user lifecycle is one instance of it.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduled is a timed wake-up: deliver Action at or after At, unless a
// later transition supersedes it.
type Scheduled[A any] struct {
	At     time.Time
	Action A
}

// Effect is a deferred side effect. It runs on its own goroutine and must
// yield the action that reports its result; the kernel posts that action
// back to the entity's mailbox. Effects must not panic.
type Effect[A any] func(ctx context.Context) A

// Transition computes the successor state and any effects for one action.
// Returning an error drops the action and leaves the state unchanged.
type Transition[ID comparable, S, A, E any] func(env E, id ID, state S, action A) (S, []Effect[A], error)

// Schedule declares the timed wake-ups that must be pending while the
// entity sits in the given state. The kernel owns reconciliation: timers
// from the previous state are cancelled wholesale and the new set is armed.
type Schedule[S, A any] func(state S) []Scheduled[A]

// Doneable lets a state ask for its entity to be garbage-collected.
// Checked via type assertion after every transition.
type Doneable interface {
	LifecycleDone() bool
}

// Config carries optional kernel dependencies.
type Config struct {
	Logger      zerolog.Logger
	Clock       func() time.Time
	Publisher   EventPublisher
	MailboxSize int
}

// LifeCycle runs one state machine over many entities.
type LifeCycle[ID comparable, S, A, E any] struct {
	env        E
	transition Transition[ID, S, A, E]
	schedule   Schedule[S, A]
	log        zerolog.Logger
	now        func() time.Time
	pub        EventPublisher
	mboxSize   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	mailboxes map[ID]chan A
}

// Spawn creates the kernel. Entities come into existence lazily on their
// first action, starting from the zero value of S.
func Spawn[ID comparable, S, A, E any](
	ctx context.Context,
	env E,
	transition Transition[ID, S, A, E],
	schedule Schedule[S, A],
	cfg Config,
) *LifeCycle[ID, S, A, E] {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 8
	}
	kctx, cancel := context.WithCancel(ctx)
	return &LifeCycle[ID, S, A, E]{
		env:        env,
		transition: transition,
		schedule:   schedule,
		log:        cfg.Logger,
		now:        cfg.Clock,
		pub:        cfg.Publisher,
		mboxSize:   cfg.MailboxSize,
		ctx:        kctx,
		cancel:     cancel,
		mailboxes:  make(map[ID]chan A),
	}
}

// Act enqueues an action for one entity, creating it on first contact.
// Actions for the same entity are observed in enqueue order.
func (lc *LifeCycle[ID, S, A, E]) Act(id ID, action A) {
	lc.mu.Lock()
	ch, ok := lc.mailboxes[id]
	if !ok {
		ch = make(chan A, lc.mboxSize)
		lc.mailboxes[id] = ch
		lc.wg.Add(1)
		go lc.runEntity(id, ch)
	}
	lc.mu.Unlock()
	if !ok {
		lc.pub.Publish(Event{Name: "entity_spawned", Entity: fmt.Sprint(id)})
	}

	select {
	case ch <- action:
	case <-lc.ctx.Done():
	}
}

// Entities returns the number of live entities.
func (lc *LifeCycle[ID, S, A, E]) Entities() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.mailboxes)
}

// Close cancels all entities, timers and effects and waits for them.
func (lc *LifeCycle[ID, S, A, E]) Close() {
	lc.cancel()
	lc.wg.Wait()
}

func (lc *LifeCycle[ID, S, A, E]) runEntity(id ID, ch chan A) {
	defer lc.wg.Done()

	var state S
	var timers []*time.Timer
	stopTimers := func() {
		for _, t := range timers {
			t.Stop()
		}
		timers = nil
	}
	defer stopTimers()

	entity := fmt.Sprint(id)
	for {
		select {
		case <-lc.ctx.Done():
			return
		case action := <-ch:
			newState, effects, err := lc.transition(lc.env, id, state, action)
			if err != nil {
				// invalid pair: drop the action, keep the state
				lc.log.Warn().Str("entity", entity).Err(err).
					Msgf("dropping action %T", action)
				lc.pub.Publish(Event{Name: "transition_error", Entity: entity,
					Fields: map[string]any{"error": err.Error()}})
				continue
			}
			state = newState

			// cancel stale wake-ups before the new state is observable
			stopTimers()
			for _, s := range lc.schedule(state) {
				d := s.At.Sub(lc.now())
				if d < 0 {
					d = 0
				}
				action := s.Action
				timers = append(timers, time.AfterFunc(d, func() {
					lc.Act(id, action)
				}))
			}

			for _, eff := range effects {
				lc.wg.Add(1)
				go func(eff Effect[A]) {
					defer lc.wg.Done()
					result := eff(lc.ctx)
					if lc.ctx.Err() != nil {
						return
					}
					lc.Act(id, result)
				}(eff)
			}

			lc.pub.Publish(Event{Name: "transition", Entity: entity,
				Fields: map[string]any{"effects": len(effects)}})

			if d, ok := any(state).(Doneable); ok && d.LifecycleDone() {
				lc.remove(id, ch)
				return
			}
		}
	}
}

// remove drops the entity. A drainer keeps late posts to the dead mailbox
// from blocking their senders; those actions are discarded.
func (lc *LifeCycle[ID, S, A, E]) remove(id ID, ch chan A) {
	lc.mu.Lock()
	if cur, ok := lc.mailboxes[id]; ok && cur == ch {
		delete(lc.mailboxes, id)
	}
	lc.mu.Unlock()
	lc.pub.Publish(Event{Name: "entity_deleted", Entity: fmt.Sprint(id)})

	lc.wg.Add(1)
	go func() {
		defer lc.wg.Done()
		for {
			select {
			case <-lc.ctx.Done():
				return
			case <-ch:
			}
		}
	}()
}
