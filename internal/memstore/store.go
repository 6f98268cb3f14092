// Package memstore keeps the whole knowledge base in process memory. It backs
// the server when no database is configured and serves as a fake in tests.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
)

// ErrEmbeddingJobNotFound is returned when a job id is unknown.
var ErrEmbeddingJobNotFound = errors.New("embedding job not found")

// Store holds every table. Its repositories are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nextEntryID int64
	entries     map[int64]*domain.KnowledgeEntry
	jobs        map[string]*domain.EmbeddingJob
	orgs        map[string]*domain.Organization
	keys        map[string]*domain.APIKey
	answers     map[string]*domain.AnswerRecord
}

func New() *Store {
	return &Store{
		entries: map[int64]*domain.KnowledgeEntry{},
		jobs:    map[string]*domain.EmbeddingJob{},
		orgs:    map[string]*domain.Organization{},
		keys:    map[string]*domain.APIKey{},
		answers: map[string]*domain.AnswerRecord{},
	}
}

// handle is embedded by every repository. Inside a transaction the store
// lock is already held and methods must not take it again.
type handle struct {
	s    *Store
	inTx bool
}

func (h handle) lock() func() {
	if h.inTx {
		return func() {}
	}
	h.s.mu.Lock()
	return h.s.mu.Unlock
}

func (h handle) rlock() func() {
	if h.inTx {
		return func() {}
	}
	h.s.mu.RLock()
	return h.s.mu.RUnlock
}

func (s *Store) Knowledge() *KnowledgeRepository {
	return &KnowledgeRepository{handle{s: s}}
}

func (s *Store) EmbeddingJobs() *EmbeddingJobRepository {
	return &EmbeddingJobRepository{handle{s: s}}
}

func (s *Store) Orgs() *OrgRepository {
	return &OrgRepository{handle{s: s}}
}

func (s *Store) APIKeys() *APIKeyRepository {
	return &APIKeyRepository{handle{s: s}}
}

func (s *Store) AnswerLog() *AnswerLogRepository {
	return &AnswerLogRepository{handle{s: s}}
}

func (s *Store) TxRunner() *TxRunner {
	return &TxRunner{s: s}
}

// TxRunner runs functions with the store locked. A function that returns an
// error leaves the entries and jobs as they were before it ran.
type TxRunner struct {
	s *Store
}

type txRepos struct {
	knowledge *KnowledgeRepository
	jobs      *EmbeddingJobRepository
}

func (r *txRepos) Knowledge() service.KnowledgeRepositoryInterface {
	return r.knowledge
}

func (r *txRepos) EmbeddingJobs() service.EmbeddingJobRepositoryInterface {
	return r.jobs
}

// WithTx must not be called with repositories obtained outside fn; they
// would block on the held lock.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	nextID := s.nextEntryID
	entries := make(map[int64]*domain.KnowledgeEntry, len(s.entries))
	for id, e := range s.entries {
		entries[id] = cloneEntry(e)
	}
	jobs := make(map[string]*domain.EmbeddingJob, len(s.jobs))
	for id, j := range s.jobs {
		jobs[id] = cloneJob(j)
	}

	h := handle{s: s, inTx: true}
	if err := fn(&txRepos{knowledge: &KnowledgeRepository{h}, jobs: &EmbeddingJobRepository{h}}); err != nil {
		s.nextEntryID = nextID
		s.entries = entries
		s.jobs = jobs
		return err
	}
	return nil
}
