package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/ai"
	"github.com/bihua-university/melodex/internal/syncx"
)

type EventType string

const (
	EventQueued  EventType = "queued"
	EventStarted EventType = "started"
	EventDone    EventType = "done"
	EventFailed  EventType = "failed"
)

type Event struct {
	Type     EventType `json:"type"`
	MusicID  string    `json:"musicId"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
	Time     time.Time `json:"time"`
}

// Worker runs enrich jobs one at a time, in the order they were queued, and
// fans progress events out to subscribers.
type Worker struct {
	svc   *Service
	log   *zap.Logger
	queue *syncx.UnboundedChan[string]

	mu      sync.Mutex
	queued  map[string]bool
	subs    map[int]*syncx.UnboundedChan[Event]
	nextSub int
}

func NewWorker(svc *Service, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		svc:    svc,
		log:    log,
		queue:  syncx.NewUnboundedChan[string](64),
		queued: make(map[string]bool),
		subs:   make(map[int]*syncx.UnboundedChan[Event]),
	}
}

// Enqueue schedules musicID. A track already waiting is not queued twice.
func (w *Worker) Enqueue(musicID string) bool {
	w.mu.Lock()
	if w.queued[musicID] {
		w.mu.Unlock()
		return false
	}
	w.queued[musicID] = true
	w.mu.Unlock()

	if !w.queue.Send(musicID) {
		w.mu.Lock()
		delete(w.queued, musicID)
		w.mu.Unlock()
		return false
	}
	w.publish(Event{Type: EventQueued, MusicID: musicID})
	return true
}

// Pending is the number of jobs waiting to run.
func (w *Worker) Pending() int {
	return w.queue.Len()
}

// Subscribe returns a stream of events and a func that ends it.
func (w *Worker) Subscribe() (<-chan Event, func()) {
	ch := syncx.NewUnboundedChan[Event](16)
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	w.mu.Unlock()

	var once sync.Once
	return ch.Out(), func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
			ch.Close()
		})
	}
}

func (w *Worker) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		ch.Send(e)
	}
}

// Run consumes the queue until Stop is called and the queue is drained, then
// ends every subscription.
func (w *Worker) Run(ctx context.Context) {
	defer w.closeSubs()
	for id := range w.queue.Out() {
		w.mu.Lock()
		delete(w.queued, id)
		w.mu.Unlock()

		if ctx.Err() != nil {
			w.publish(Event{Type: EventFailed, MusicID: id, Error: ctx.Err().Error()})
			continue
		}
		w.publish(Event{Type: EventStarted, MusicID: id})

		res, err := w.svc.Enrich(ctx, id)
		if err != nil {
			w.log.Warn("enrich job failed", zap.String("music_id", id), zap.Error(err))
			w.publish(Event{Type: EventFailed, MusicID: id, Status: statusOf(err), Error: messageOf(err)})
			continue
		}
		w.publish(Event{Type: EventDone, MusicID: id, Status: "ok", Fallback: res.Fallback})
	}
}

// Stop stops accepting jobs. Run returns once the queued ones are handled.
func (w *Worker) Stop() {
	w.queue.Close()
}

func (w *Worker) closeSubs() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		ch.Close()
		delete(w.subs, id)
	}
}

func statusOf(err error) string {
	if kind, ok := ai.KindOf(err); ok {
		return kind.String()
	}
	return "error"
}

// messageOf renders AI failures with their fixed user facing text.
func messageOf(err error) string {
	var aerr *ai.Error
	if errors.As(err, &aerr) {
		return aerr.Message()
	}
	return err.Error()
}
