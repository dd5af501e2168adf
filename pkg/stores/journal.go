package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/telemetry"
)

const (
	defaultJournalBuffer = 1024
	journalBatchSize     = 64
)

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalLogger sets the logger used for write failures.
func WithJournalLogger(log *telemetry.Logger) JournalOption {
	return func(j *Journal) { j.log = log.NewComponentLogger("journal") }
}

// WithJournalBuffer sets how many entries may wait for the writer before new
// ones are dropped.
func WithJournalBuffer(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.buffer = n
		}
	}
}

// Journal records a worker's traffic into a Store session. It satisfies
// commandqueue.Recorder: recording never blocks, and entries that do not fit
// in the buffer are counted and dropped.
type Journal struct {
	store   Store
	session string
	log     *telemetry.Logger
	buffer  int

	seq     atomic.Int64
	dropped atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	entries chan *Entry
	done    chan struct{}
}

// NewJournal creates session in store and starts writing entries to it.
func NewJournal(ctx context.Context, store Store, session *Session, opts ...JournalOption) (*Journal, error) {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	j := &Journal{
		store:   store,
		session: session.ID,
		log:     telemetry.NewNopLogger(),
		buffer:  defaultJournalBuffer,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.entries = make(chan *Entry, j.buffer)

	go j.run()
	return j, nil
}

// SessionID returns the session entries are written to.
func (j *Journal) SessionID() string { return j.session }

// Dropped returns how many entries were discarded because the buffer was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

func (j *Journal) RecordCommand(cmd *protocol.Command) {
	c := *cmd
	c.Data = nil
	j.record(DirectionCommand, string(cmd.Type), cmd.RequestID, cmd.Handle, len(cmd.Data), &c)
}

func (j *Journal) RecordCallback(cb *protocol.Callback) {
	j.record(DirectionCallback, string(cb.Type), cb.RequestID, cb.Handle, 0, cb)
}

func (j *Journal) record(dir Direction, typ string, id protocol.RequestID, h protocol.Handle, size int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		j.log.WithError(err).Warnf("encoding %s %s", dir, typ)
		return
	}
	entry := &Entry{
		SessionID:  j.session,
		Seq:        j.seq.Add(1),
		Direction:  dir,
		Type:       typ,
		RequestID:  uint64(id),
		Handle:     uint64(h),
		DataSize:   size,
		Payload:    string(payload),
		RecordedAt: time.Now(),
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.entries <- entry:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) run() {
	defer close(j.done)

	batch := make([]*Entry, 0, journalBatchSize)
	for entry := range j.entries {
		batch = append(batch, entry)
	drain:
		for len(batch) < journalBatchSize {
			select {
			case next, ok := <-j.entries:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		j.flush(batch)
		batch = batch[:0]
	}
}

func (j *Journal) flush(batch []*Entry) {
	if err := j.store.AppendEntries(context.Background(), batch); err != nil {
		j.dropped.Add(uint64(len(batch)))
		j.log.WithError(err).Warnf("writing %d journal entries", len(batch))
	}
}

// Close writes the remaining entries and marks the session ended.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.entries)
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := j.store.EndSession(ctx, j.session, time.Now()); err != nil {
		return fmt.Errorf("ending journal session: %w", err)
	}
	if n := j.dropped.Load(); n > 0 {
		j.log.Warnf("journal session %s dropped %d entries", j.session, n)
	}
	return nil
}
