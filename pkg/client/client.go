// Package client is the caller-facing API over a command queue.
//
// Each resource kind has a service that turns typed calls into queue
// commands and listener callbacks back into results, and a wrapper that owns
// one handle. All request bookkeeping happens on a single dispatch.Executor;
// listener callbacks arrive on the queue's router goroutine and hop onto the
// executor before touching any pending table.
//
// Blocking calls take a context. There is no timeout: a request the server
// never answers blocks until ctx is done, and the abandoned entry stays in
// its table until a late answer removes it.
package client

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/dispatch"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/telemetry"
)

// Dependencies bundles the services a wrapper needs to issue further
// commands.
type Dependencies struct {
	Executor  *dispatch.Executor
	Telemetry *telemetry.Telemetry

	Files         *FileService
	Artboards     *ArtboardService
	StateMachines *StateMachineService
	Images        *ImageService
	Fonts         *FontService
	Audio         *AudioService
	Instances     *ViewModelInstanceService
}

// NewDependencies creates every service on q. A nil tel disables telemetry.
func NewDependencies(q commandqueue.Queue, exec *dispatch.Executor, tel *telemetry.Telemetry) *Dependencies {
	b := newBase(exec, tel)
	return &Dependencies{
		Executor:      exec,
		Telemetry:     b.tel,
		Files:         newFileService(q, b),
		Artboards:     newArtboardService(q, b),
		StateMachines: newStateMachineService(q, b),
		Images:        newImageService(q, b),
		Fonts:         newFontService(q, b),
		Audio:         newAudioService(q, b),
		Instances:     newViewModelInstanceService(q, b),
	}
}

// base is what every service shares.
type base struct {
	exec *dispatch.Executor
	tel  *telemetry.Telemetry
	log  *telemetry.Logger
}

func newBase(exec *dispatch.Executor, tel *telemetry.Telemetry) *base {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &base{
		exec: exec,
		tel:  tel,
		log:  tel.Logger.NewComponentLogger("client"),
	}
}

// operation names one awaited request for tracing and metrics.
type operation struct {
	name   string
	kind   protocol.Kind
	handle protocol.Handle
}

// call registers a pending entry in table, issues the command on the
// executor, then waits for the answer outside it.
func call[T any](ctx context.Context, b *base, ids commandqueue.RequestIDSource, table *pending.Map[T], op operation, issue func(id protocol.RequestID)) (T, error) {
	return await(ctx, b, op, func() <-chan pending.Result[T] {
		id := ids.NextRequestID()
		ch := table.Add(id)
		issue(id)
		return ch
	})
}

// await runs start on the executor and blocks on the channel it returns.
func await[T any](ctx context.Context, b *base, op operation, start func() <-chan pending.Result[T]) (T, error) {
	var zero T

	ctx, span := b.tel.Tracer.StartRequestSpan(ctx, op.name, op.kind, op.handle)
	defer span.End()
	timer := telemetry.NewTimer()

	var ch <-chan pending.Result[T]
	if err := b.exec.Sync(func() { ch = start() }); err != nil {
		telemetry.RecordError(span, err)
		return zero, err
	}
	b.tel.Metrics.RecordRequestStarted()

	v, err := pending.Await(ctx, ch)
	switch {
	case err == nil:
		telemetry.RecordSuccess(span)
		b.tel.Metrics.RecordRequestCompleted(op.name, "ok", timer.Duration())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		telemetry.RecordError(span, err)
		b.tel.Metrics.RecordRequestCompleted(op.name, "abandoned", timer.Duration())
		b.log.WithHandle(op.kind, op.handle).Debugf("%s abandoned", op.name)
	default:
		telemetry.RecordError(span, err)
		b.tel.Metrics.RecordRequestCompleted(op.name, "error", timer.Duration())
	}
	return v, err
}

// then is Map.Add with a step that runs on the executor before the waiter
// is woken. The step is skipped when the request is rejected.
func then[T any](table *pending.Map[T], id protocol.RequestID, onSuccess func()) <-chan pending.Result[T] {
	ch := make(chan pending.Result[T], 1)
	table.Then(id, func(r pending.Result[T]) {
		if r.Err == nil {
			onSuccess()
		}
		ch <- r
	})
	return ch
}

// rejectAny rejects id in the first table that holds it.
func rejectAny(id protocol.RequestID, err error, rejecters ...func(protocol.RequestID, error) bool) bool {
	for _, reject := range rejecters {
		if reject(id, err) {
			return true
		}
	}
	return false
}

// settled logs a callback that found no pending request.
func (b *base) settled(ok bool, kind protocol.Kind, h protocol.Handle, id protocol.RequestID, callback string) {
	if ok {
		return
	}
	b.tel.Metrics.RecordCallbackDropped("no_request")
	b.log.WithHandle(kind, h).WithRequestID(id).Debugf("%s for a request that is not pending", callback)
}

// fire issues a command that expects no answer.
func fire(b *base, ids commandqueue.RequestIDSource, issue func(id protocol.RequestID)) error {
	return b.exec.Sync(func() { issue(ids.NextRequestID()) })
}

// allocate issues a command that returns its handle synchronously.
func allocate(b *base, ids commandqueue.RequestIDSource, issue func(id protocol.RequestID) protocol.Handle) (protocol.Handle, error) {
	var h protocol.Handle
	err := b.exec.Sync(func() { h = issue(ids.NextRequestID()) })
	return h, err
}

// post schedules fn on the executor without waiting. It is used on release
// paths, which may run on the cleanup goroutine.
func (b *base) post(what string, fn func()) {
	if !b.exec.Post(fn) {
		b.log.Debugf("%s dropped: executor stopped", what)
	}
}

// lifetime runs release exactly once, on Close or when the owner becomes
// unreachable.
type lifetime struct {
	once    *sync.Once
	release func()
	cleanup runtime.Cleanup
}

// newLifetime ties release to owner. release must not reference owner.
func newLifetime[T any](owner *T, release func()) *lifetime {
	once := new(sync.Once)
	l := &lifetime{once: once, release: release}
	l.cleanup = runtime.AddCleanup(owner, func(fn func()) { once.Do(fn) }, release)
	return l
}

func (l *lifetime) close() {
	l.cleanup.Stop()
	l.once.Do(l.release)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
