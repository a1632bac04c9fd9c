package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
)

const defaultMaintenanceInterval = 1 * time.Hour

// MaintenanceService runs the periodic hygiene passes: belief convergence
// per agent and pruning of long-inactive relationship edges.
type MaintenanceService struct {
	provider domain.StoreProvider
	analyzer *BeliefAnalyzer
	clock    domain.Clock
	logger   *zap.Logger

	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewMaintenanceService(provider domain.StoreProvider, analyzer *BeliefAnalyzer, clock domain.Clock, interval, retention time.Duration, logger *zap.Logger) *MaintenanceService {
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	return &MaintenanceService{
		provider:  provider,
		analyzer:  analyzer,
		clock:     clock,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

func (s *MaintenanceService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs maintenance on a periodic schedule in a background goroutine.
func (s *MaintenanceService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("maintenance started",
			zap.Duration("interval", s.interval),
			zap.Duration("edge_retention", s.retention))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("maintenance stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the maintenance loop.
func (s *MaintenanceService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce executes one maintenance sweep. Exposed so operators can trigger
// it out of schedule.
func (s *MaintenanceService) RunOnce(ctx context.Context) {
	// 1. Converge duplicate beliefs per agent.
	perAgent, err := s.provider.Stores().Memories.CountByAgent(ctx)
	if err != nil {
		s.logger.Error("failed to list agents for convergence", zap.Error(err))
	} else {
		for agentID := range perAgent {
			if err := s.analyzer.ConvergeDuplicates(ctx, agentID, nil); err != nil {
				s.logger.Warn("belief convergence failed",
					zap.String("agent_id", agentID),
					zap.Error(err))
			}
		}
	}

	// 2. Prune relationship edges that have been inactive past retention.
	if s.retention > 0 {
		cutoff := s.clock.Now().Add(-s.retention)
		pruned, err := s.provider.Stores().Relationships.DeleteInactiveOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("failed to prune inactive edges", zap.Error(err))
		} else if pruned > 0 {
			s.logger.Info("pruned inactive edges", zap.Int64("count", pruned))
		}
	}
}
