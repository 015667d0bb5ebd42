package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gridBot/internal/domain"
	"gridBot/internal/metrics"
	"gridBot/internal/ports"
)

// Supervisor is the process-wide registry of live engines, at most one per bot id.
type Supervisor struct {
	deps   Dependencies
	cfg    EngineConfig
	logger ports.Logger

	mu      sync.Mutex // protects engines, retired and locks
	engines map[string]*BotEngine
	retired map[string]*BotEngine // last deregistered engine per id, until its tick drains
	locks   map[string]*sync.Mutex
}

// NewSupervisor creates an empty registry. Engines are built from deps and cfg.
func NewSupervisor(deps Dependencies, cfg EngineConfig) (*Supervisor, error) {
	if deps.Repo == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Supervisor")
	}
	return &Supervisor{
		deps:    deps,
		cfg:     cfg.withDefaults(),
		logger:  deps.Logger,
		engines: make(map[string]*BotEngine),
		retired: make(map[string]*BotEngine),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Initialize restarts every bot persisted as RUNNING. Bots whose engine cannot
// start are forced to STOPPED. Only a failure to list bots is returned.
func (s *Supervisor) Initialize(ctx context.Context) error {
	op := "Initialize"
	bots, err := s.deps.Repo.ListBotsByStatus(ctx, domain.BotRunning)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to list running bots")
		return fmt.Errorf("list running bots: %w", err)
	}
	s.logger.Info(ctx, op+": Restoring bots", ports.Fields{"count": len(bots)})

	for _, bot := range bots {
		s.startOrMarkStopped(ctx, op, bot)
	}

	s.logger.Info(ctx, op+": Bots restored", ports.Fields{"running": s.RunningCount(), "total": len(bots)})
	return nil
}

// Reconcile aligns the live engines with the persisted statuses. Bots marked
// RUNNING without an engine are started, engines whose bot is no longer
// RUNNING are stopped, then pending manual close requests are served.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	op := "Reconcile"
	bots, err := s.deps.Repo.ListBotsByStatus(ctx, domain.BotRunning)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to list running bots")
		return fmt.Errorf("list running bots: %w", err)
	}

	wanted := make(map[string]bool, len(bots))
	for _, bot := range bots {
		wanted[bot.ID] = true
		if s.IsRunning(bot.ID) {
			continue
		}
		s.logger.Info(ctx, op+": Starting bot marked RUNNING", ports.Fields{"botID": bot.ID})
		s.startOrMarkStopped(ctx, op, bot)
	}

	for _, id := range s.RunningIds() {
		if wanted[id] {
			continue
		}
		s.logger.Info(ctx, op+": Stopping bot no longer marked RUNNING", ports.Fields{"botID": id})
		if err := s.StopBot(ctx, id); err != nil {
			s.logger.Error(ctx, err, op+": Failed to stop bot", ports.Fields{"botID": id})
		}
	}

	s.serveCloseRequests(ctx)
	return nil
}

// serveCloseRequests closes every flagged position of a running bot. Requests
// of stopped bots wait for the bot to run; a busy engine is retried on the
// next pass. A failed close drops the request.
func (s *Supervisor) serveCloseRequests(ctx context.Context) {
	op := "serveCloseRequests"
	requests, err := s.deps.Repo.ListCloseRequests(ctx)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to list close requests")
		return
	}

	for _, pos := range requests {
		if !s.IsRunning(pos.BotID) {
			continue
		}
		fields := ports.Fields{"botID": pos.BotID, "positionID": pos.ID}
		err := s.ClosePosition(ctx, pos.BotID, pos.ID)
		switch {
		case err == nil:
			s.logger.Info(ctx, op+": Position closed on request", fields)
		case errors.Is(err, ports.ErrEngineBusy), errors.Is(err, ports.ErrNotRunning):
			s.logger.Debug(ctx, op+": Engine unavailable, close deferred", fields)
		default:
			s.logger.Error(ctx, err, op+": Requested close failed", fields)
			if cerr := s.deps.Repo.ClearCloseRequest(ctx, pos.ID); cerr != nil {
				s.logger.Error(ctx, cerr, op+": Failed to drop close request", fields)
			}
		}
	}
}

// startOrMarkStopped starts bot, forcing it to STOPPED when its engine cannot
// start so that it is not retried forever.
func (s *Supervisor) startOrMarkStopped(ctx context.Context, op string, bot *domain.Bot) {
	s.recoverRuntime(ctx, bot)

	if err := s.StartBot(ctx, bot.ID); err != nil {
		s.logger.Error(ctx, err, op+": Failed to start bot, marking STOPPED", ports.Fields{"botID": bot.ID})
		stopped := domain.BotStopped
		if uerr := s.deps.Repo.UpdateBot(ctx, bot.ID, ports.BotUpdate{Status: &stopped, ClearStartedAt: true}); uerr != nil {
			s.logger.Error(ctx, uerr, op+": Failed to mark bot STOPPED", ports.Fields{"botID": bot.ID})
		}
	}
}

// recoverRuntime books the session interrupted by a crash, measured up to the
// last heartbeat, so that the restart can stamp a fresh startedAt.
func (s *Supervisor) recoverRuntime(ctx context.Context, bot *domain.Bot) {
	if bot.StartedAt == nil || bot.LastActivityAt == nil || !bot.LastActivityAt.After(*bot.StartedAt) {
		return
	}
	lost := int64(bot.LastActivityAt.Sub(*bot.StartedAt).Seconds())
	upd := ports.BotUpdate{AddRuntimeSeconds: lost, ClearStartedAt: true}
	if err := s.deps.Repo.UpdateBot(ctx, bot.ID, upd); err != nil {
		s.logger.Warn(ctx, "recoverRuntime: Failed to book interrupted session", ports.Fields{"botID": bot.ID, "error": err.Error()})
	}
}

// StartBot starts and registers an engine for id. It is a no-op when one is
// already registered. A tick still in flight on the previous engine of id is
// awaited first, bounded by ctx.
func (s *Supervisor) StartBot(ctx context.Context, id string) error {
	op := "StartBot"
	unlock := s.lockID(id)
	defer unlock()

	if e := s.lookup(id); e != nil && e.IsRunning() {
		return nil
	}
	if prev := s.retiredEngine(id); prev != nil {
		if err := prev.WaitIdle(ctx); err != nil {
			s.logger.Warn(ctx, op+": Previous engine still evaluating a tick", ports.Fields{"botID": id})
			return fmt.Errorf("wait for previous engine of bot %s: %w", id, err)
		}
		s.dropRetired(id, prev)
	}

	engine, err := NewBotEngine(id, s.deps, s.cfg)
	if err != nil {
		return err
	}
	engine.onStop = s.deregister

	s.register(engine)
	if err := engine.Start(ctx); err != nil {
		s.deregister(id, engine)
		return err
	}

	now := s.cfg.Clock().UTC()
	if err := s.deps.Repo.UpdateBot(ctx, id, ports.BotUpdate{StartedAt: &now, LastActivityAt: &now}); err != nil {
		s.logger.Warn(ctx, op+": Failed to stamp session start", ports.Fields{"botID": id, "error": err.Error()})
	}
	s.logger.Info(ctx, op+": Bot started", ports.Fields{"botID": id})
	return nil
}

// StopBot stops and deregisters the engine of id. It is a no-op when none is registered.
func (s *Supervisor) StopBot(ctx context.Context, id string) error {
	unlock := s.lockID(id)
	defer unlock()

	engine := s.lookup(id)
	if engine == nil {
		return nil
	}
	err := engine.Stop(ctx)
	s.deregister(id, engine)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "StopBot: Bot stopped", ports.Fields{"botID": id})
	return nil
}

// StopAll stops every registered engine, continuing past individual failures,
// then waits for in-flight ticks to drain or ctx to expire.
func (s *Supervisor) StopAll(ctx context.Context) error {
	op := "StopAll"
	s.mu.Lock()
	engines := make([]*BotEngine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.mu.Unlock()

	s.logger.Info(ctx, op+": Stopping all bots", ports.Fields{"count": len(engines)})

	var errs []error
	for _, e := range engines {
		if err := s.StopBot(ctx, e.BotID()); err != nil {
			s.logger.Error(ctx, err, op+": Failed to stop bot", ports.Fields{"botID": e.BotID()})
			errs = append(errs, fmt.Errorf("bot %s: %w", e.BotID(), err))
		}
	}
	for _, e := range engines {
		if err := e.WaitIdle(ctx); err != nil {
			s.logger.Warn(ctx, op+": Gave up waiting for in-flight tick", ports.Fields{"botID": e.BotID()})
			errs = append(errs, fmt.Errorf("bot %s: %w", e.BotID(), err))
		}
	}
	return errors.Join(errs...)
}

// ClosePosition manually closes a position of a running bot.
func (s *Supervisor) ClosePosition(ctx context.Context, botID, positionID string) error {
	engine := s.Engine(botID)
	if engine == nil {
		return fmt.Errorf("bot %s: %w", botID, ports.ErrNotRunning)
	}
	return engine.ClosePosition(ctx, positionID)
}

// IsRunning reports whether a live engine is registered for id.
func (s *Supervisor) IsRunning(id string) bool {
	return s.Engine(id) != nil
}

// Engine returns the live engine of id, or nil.
func (s *Supervisor) Engine(id string) *BotEngine {
	e := s.lookup(id)
	if e == nil || !e.IsRunning() {
		return nil
	}
	return e
}

// RunningIds returns the ids of all live engines, sorted.
func (s *Supervisor) RunningIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.engines))
	for id, e := range s.engines {
		if e.IsRunning() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RunningCount returns the number of live engines.
func (s *Supervisor) RunningCount() int {
	return len(s.RunningIds())
}

func (s *Supervisor) lookup(id string) *BotEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engines[id]
}

func (s *Supervisor) register(e *BotEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[e.BotID()] = e
	metrics.RunningEngines.Set(float64(len(s.engines)))
}

// deregister removes e unless another engine took its slot meanwhile. The
// removed engine is kept as retired so the next start can wait for its tick.
func (s *Supervisor) deregister(id string, e *BotEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engines[id] == e {
		delete(s.engines, id)
		s.retired[id] = e
	}
	metrics.RunningEngines.Set(float64(len(s.engines)))
}

func (s *Supervisor) retiredEngine(id string) *BotEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired[id]
}

func (s *Supervisor) dropRetired(id string, e *BotEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired[id] == e {
		delete(s.retired, id)
	}
}

// lockID serialises start/stop requests for one bot id.
func (s *Supervisor) lockID(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
