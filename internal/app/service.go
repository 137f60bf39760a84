// Package service builds and owns every component of the lead distribution
// system and exposes the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/leadflow/internal/adapters/directory"
	"github.com/okian/leadflow/internal/adapters/mq/queue"
	"github.com/okian/leadflow/internal/adapters/mq/worker"
	"github.com/okian/leadflow/internal/adapters/notify"
	"github.com/okian/leadflow/internal/adapters/payment"
	"github.com/okian/leadflow/internal/adapters/repository"
	"github.com/okian/leadflow/internal/adapters/token"
	"github.com/okian/leadflow/internal/config"
	"github.com/okian/leadflow/internal/domain/cascade"
	"github.com/okian/leadflow/internal/domain/claim"
	"github.com/okian/leadflow/internal/domain/dedupe"
	"github.com/okian/leadflow/internal/domain/geo"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/ranking"
	"github.com/okian/leadflow/internal/domain/scoring"
	"github.com/okian/leadflow/pkg/logger"
	"github.com/okian/leadflow/pkg/metrics"
)

// Service implements the API dependencies for the lead distribution system.
type Service struct {
	mu sync.RWMutex

	cfg        *config.Config
	seed       []*model.Candidate
	payment    claim.PaymentPort
	notifier   cascade.Notifier
	originator cascade.Originator
	clock      cascade.Clock

	store     repository.Store
	directory *directory.Static
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	tracker   *claim.Tracker
	engine    *cascade.Engine
	tokens    *token.Issuer

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(context.Background()),
		clock: cascade.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.logger.Info(ctx, "starting lead service...")

	if err := s.build(ctx); err != nil {
		if s.store != nil {
			_ = s.store.Close()
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "lead service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("batchSize", s.cfg.BatchSize),
		logger.String("store", storeKind(s.cfg.StoreDSN)),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg

	if cfg.StoreDSN == "" {
		s.store = repository.NewMemoryStore()
	} else {
		st, err := repository.NewSQLiteStore(ctx, cfg.StoreDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = st
	}

	switch {
	case s.seed != nil:
		s.directory = directory.NewStatic(s.seed)
	case cfg.CandidatesFile != "":
		dir, err := directory.LoadFile(cfg.CandidatesFile)
		if err != nil {
			return fmt.Errorf("load candidates: %w", err)
		}
		s.directory = dir
	default:
		s.directory = directory.NewStatic(nil)
	}

	scorer, err := scoring.NewEngine(
		scoring.WithWeights(cfg.Weights()),
		scoring.WithDistanceFloor(cfg.DistanceFloor),
		scoring.WithWorkloadCaps(cfg.SoftWorkloadCap, cfg.HardWorkloadCap),
	)
	if err != nil {
		return fmt.Errorf("scoring engine: %w", err)
	}

	s.tracker = claim.NewTracker(cfg.SuspendAfterFailures)
	ranker := ranking.NewRanker(s.directory, scorer,
		ranking.WithMinScore(cfg.MinScore),
		ranking.WithMaxCandidates(cfg.MaxCandidates),
		ranking.WithSuspensions(s.tracker),
		ranking.WithGeoOptions(geo.WithCellDegrees(cfg.GeoCellDegrees)),
	)

	if s.payment == nil {
		s.payment = payment.NewSimulator()
	}
	coordinator := claim.NewCoordinator(s.payment,
		claim.WithPaymentTimeout(cfg.PaymentTimeout()),
		claim.WithMaxAttempts(cfg.PaymentMaxAttempts),
		claim.WithTracker(s.tracker),
		claim.WithNow(s.clock.Now),
	)

	s.tokens, err = token.NewIssuer(cfg.TokenSecret,
		token.WithGrace(cfg.TokenTTL()),
		token.WithBaseURL(cfg.BaseURL),
		token.WithNow(s.clock.Now),
	)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	logNotifier := notify.NewLog(s.logger.Named("notify"))
	if s.notifier == nil {
		s.notifier = logNotifier
	}
	if s.originator == nil {
		s.originator = logNotifier
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))

	engineOpts := []cascade.Option{
		cascade.WithBatchSize(cfg.BatchSize),
		cascade.WithStore(s.store),
		cascade.WithNotifier(notify.NewLimited(s.notifier, cfg.NotifyRatePerSec, cfg.NotifyBurst)),
		cascade.WithOriginator(s.originator),
		cascade.WithLinks(s.tokens),
		cascade.WithClock(s.clock),
		cascade.WithExpiryDispatcher(func(t model.Task) bool {
			return s.queue.Enqueue(context.Background(), t)
		}),
		cascade.WithLogger(s.logger.Named("cascade")),
	}
	for u, d := range cfg.OfferTimeouts() {
		engineOpts = append(engineOpts, cascade.WithTimeout(u, d))
	}
	s.engine = cascade.NewEngine(ranker, coordinator, engineOpts...)

	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, worker.HandlerFunc(s.handle))
	return nil
}

// Stop drains the task queue, stops deadline timers and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping lead service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.engine.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "lead service stopped")
	return errors.Join(errs...)
}

// handle runs one task from the queue.
func (s *Service) handle(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam
	switch t.Kind {
	case model.TaskIntake:
		_, err := s.engine.Open(ctx, t.Lead)
		if errors.Is(err, cascade.ErrLeadExists) {
			s.logger.Debug(ctx, "lead already open", logger.String("lead_id", t.Lead.ID))
			return nil
		}
		return err
	case model.TaskExpire:
		return s.engine.Expire(ctx, t.LeadID, t.OfferID)
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}

// Submit accepts a lead for asynchronous distribution. A lead id seen before
// is reported as a duplicate and not processed again.
func (s *Service) Submit(ctx context.Context, lead model.Lead) (duplicate bool, err error) { //nolint:gocritic // hugeParam
	if !s.isStarted() {
		return false, ErrNotStarted
	}
	if err := lead.Validate(); err != nil {
		metrics.RecordLeadRejected()
		return false, fmt.Errorf("submit: %w", err)
	}
	if s.deduper.SeenAndRecord(ctx, lead.ID) {
		metrics.RecordLeadDuplicate()
		return true, nil
	}
	if !s.queue.Enqueue(ctx, model.Task{Kind: model.TaskIntake, Lead: lead}) {
		s.deduper.Unrecord(ctx, lead.ID)
		return false, fmt.Errorf("submit %s: %w", lead.ID, ErrBackpressure)
	}
	metrics.RecordLeadIngested()
	return false, nil
}

// Respond verifies a response token and records the decision.
func (s *Service) Respond(ctx context.Context, raw string, decision model.Decision) (cascade.Response, error) {
	if !s.isStarted() {
		return cascade.Response{}, ErrNotStarted
	}
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return cascade.Response{}, err
	}
	return s.engine.Respond(ctx, claims.OfferID(), claims.CandidateID(), decision)
}

// Cancel withdraws a lead.
func (s *Service) Cancel(ctx context.Context, leadID string) (model.Lead, error) {
	if !s.isStarted() {
		return model.Lead{}, ErrNotStarted
	}
	return s.engine.Cancel(ctx, leadID)
}

// Lead returns a lead from the cascade, or from the store if the cascade
// no longer tracks it.
func (s *Service) Lead(ctx context.Context, id string) (model.Lead, error) {
	if !s.isStarted() {
		return model.Lead{}, ErrNotStarted
	}
	l, err := s.engine.Lead(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return s.store.Lead(ctx, id)
	}
	return l, err
}

// Offers returns a lead's offers in issue order.
func (s *Service) Offers(ctx context.Context, leadID string) ([]model.Offer, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	out, err := s.engine.Offers(ctx, leadID)
	if errors.Is(err, model.ErrNotFound) {
		if _, lerr := s.store.Lead(ctx, leadID); lerr != nil {
			return nil, lerr
		}
		return s.store.OffersByLead(ctx, leadID)
	}
	return out, err
}

// Offer returns one offer.
func (s *Service) Offer(ctx context.Context, id string) (model.Offer, error) {
	if !s.isStarted() {
		return model.Offer{}, ErrNotStarted
	}
	o, err := s.engine.Offer(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return s.store.Offer(ctx, id)
	}
	return o, err
}

// Claims returns a lead's claims in creation order.
func (s *Service) Claims(ctx context.Context, leadID string) ([]model.Claim, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	out, err := s.engine.Claims(ctx, leadID)
	if errors.Is(err, model.ErrNotFound) {
		if _, lerr := s.store.Lead(ctx, leadID); lerr != nil {
			return nil, lerr
		}
		return s.store.ClaimsByLead(ctx, leadID)
	}
	return out, err
}

// Claim returns one claim.
func (s *Service) Claim(ctx context.Context, id string) (model.Claim, error) {
	if !s.isStarted() {
		return model.Claim{}, ErrNotStarted
	}
	cl, err := s.engine.Claim(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return s.store.Claim(ctx, id)
	}
	return cl, err
}

// ReloadCandidates re-reads candidates_file. Rankings taken after the
// reload see the new pool; open leads keep their snapshot.
func (s *Service) ReloadCandidates(ctx context.Context) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	if s.cfg.CandidatesFile == "" {
		return nil
	}
	if err := s.directory.Reload(s.cfg.CandidatesFile); err != nil {
		return err
	}
	snap, _ := s.directory.Snapshot(ctx)
	s.logger.Info(ctx, "candidates reloaded",
		logger.Int("candidates", len(snap.Candidates)),
		logger.Any("version", snap.Version))
	return nil
}

// Reinstate clears a candidate's payment suspension.
func (s *Service) Reinstate(candidateID string) {
	if s.isStarted() {
		s.tracker.Reinstate(candidateID)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"queueSize":  s.cfg.QueueSize,
		"dedupeSize": s.cfg.DedupeSize,
		"batchSize":  s.cfg.BatchSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	es := s.engine.Stats(ctx)
	queueLen := s.queue.Len(ctx)
	stats["workerCount"] = s.pool.Size()
	stats["queueLength"] = queueLen
	stats["tasksProcessed"] = s.pool.Processed()
	stats["leadsSeen"] = s.deduper.Size()
	stats["leads"] = es.Leads
	stats["activeLeads"] = es.Active
	stats["leadsByStatus"] = es.ByStatus

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateLeadsActive(es.Active)
	return stats
}

// Wait blocks until scheduled notifications have been delivered.
func (s *Service) Wait() {
	s.mu.RLock()
	e := s.engine
	s.mu.RUnlock()
	if e != nil {
		e.Wait()
	}
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func storeKind(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return "sqlite"
}
