package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"mapsketch/internal/logging"
	"mapsketch/internal/models"
)

/*
LEARNING: AUDIT WORKER POOL

The relay must never wait on the database while it is fanning out messages,
so session lifecycle facts are queued and written by a fixed pool of workers.

	relay --Opened/Bound/Closed--> jobs[hash(session) % workers] --> worker --> store

Each session always hashes to the same worker, so its Opened, Bound and Closed
rows are written in that order even though workers run concurrently.
*/

var ErrAuditStopped = errors.New("audit service is shutting down")

type auditKind int

const (
	auditOpened auditKind = iota
	auditBound
	auditClosed
)

// auditJob is one lifecycle fact waiting to be written
type auditJob struct {
	kind       auditKind
	sessionID  string
	remoteAddr string
	room       string
	user       models.UserInfo
	relayed    int64
	at         time.Time
}

// AuditServiceImpl writes session lifecycle records off the relay's hot path
type AuditServiceImpl struct {
	store SessionWriter

	queues []chan auditJob
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewAuditService creates the pool; call Start before use
func NewAuditService(store SessionWriter, workers, queueSize int) *AuditServiceImpl {
	if workers < 1 {
		workers = 1
	}
	queues := make([]chan auditJob, workers)
	for i := range queues {
		queues[i] = make(chan auditJob, queueSize)
	}
	return &AuditServiceImpl{store: store, queues: queues}
}

// Start spawns one goroutine per queue
func (s *AuditServiceImpl) Start() {
	logging.Info().Int("workers", len(s.queues)).Msg("🔧 Starting session audit workers")
	for i, q := range s.queues {
		s.wg.Add(1)
		go s.worker(i, q)
	}
}

func (s *AuditServiceImpl) worker(id int, jobs <-chan auditJob) {
	defer s.wg.Done()
	for job := range jobs {
		if err := s.write(job); err != nil {
			logging.Warn().Err(err).
				Int("worker", id).
				Str("session_id", job.sessionID).
				Msg("⚠️ Failed to write session audit record")
		}
	}
	logging.Debug().Int("worker", id).Msg("audit worker stopped")
}

func (s *AuditServiceImpl) write(job auditJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch job.kind {
	case auditOpened:
		return s.store.Opened(ctx, job.sessionID, job.remoteAddr, job.at)
	case auditBound:
		return s.store.Bound(ctx, job.sessionID, job.room, job.user, job.at)
	default:
		return s.store.Closed(ctx, job.sessionID, job.relayed, job.at)
	}
}

// submit queues a job on the session's worker. It blocks while that queue is
// full, which bounds memory if the database falls behind.
func (s *AuditServiceImpl) submit(ctx context.Context, job auditJob) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrAuditStopped
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(job.sessionID))
	q := s.queues[h.Sum32()%uint32(len(s.queues))]

	select {
	case q <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditServiceImpl) Opened(ctx context.Context, sessionID, remoteAddr string, at time.Time) error {
	return s.submit(ctx, auditJob{kind: auditOpened, sessionID: sessionID, remoteAddr: remoteAddr, at: at})
}

func (s *AuditServiceImpl) Bound(ctx context.Context, sessionID, room string, user models.UserInfo, at time.Time) error {
	return s.submit(ctx, auditJob{kind: auditBound, sessionID: sessionID, room: room, user: user, at: at})
}

func (s *AuditServiceImpl) Closed(ctx context.Context, sessionID string, relayed int64, at time.Time) error {
	return s.submit(ctx, auditJob{kind: auditClosed, sessionID: sessionID, relayed: relayed, at: at})
}

// QueueLength reports jobs waiting across all workers
func (s *AuditServiceImpl) QueueLength() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// Shutdown stops accepting jobs, drains what is queued and waits for workers
func (s *AuditServiceImpl) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	logging.Info().Msg("🛑 Draining session audit queue")
	s.wg.Wait()
	logging.Info().Msg("✓ Session audit workers stopped")
}
