package jobs

import (
	"fmt"
	"log"

	"ScholarSaas/api/scholar/imports"
	"ScholarSaas/internal/logger"
	"ScholarSaas/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	hkConfig := NewDefaultHousekeepingConfig()

	// Override schedules from services.yaml if provided
	if s.config != nil {
		if sweep, ok := s.config["sweep_schedule"].(string); ok && sweep != "" {
			hkConfig.SweepSchedule = sweep
		}
		if prune, ok := s.config["prune_schedule"].(string); ok && prune != "" {
			hkConfig.PruneSchedule = prune
		}
		if retention, ok := s.config["retention_days"].(int); ok && retention > 0 {
			hkConfig.RetentionDays = retention
		}
	}

	if err := RunSessionSweeper(hkConfig, imports.Sessions()); err != nil {
		return fmt.Errorf("failed to start session sweeper: %v", err)
	}
	logger.GlobalLogger.LogAudit("Session sweeper scheduled")
	log.Println("Cron service started — Session Sweeper scheduled")

	if s.db != nil {
		if err := RunBatchPruner(hkConfig, s.db); err != nil {
			return fmt.Errorf("failed to start batch pruner: %v", err)
		}
		logger.GlobalLogger.LogAudit("Batch pruner scheduled")
		log.Println("Cron service started — Batch Pruner scheduled")
	}

	return nil
}

func (s *CronService) Stop() error {
	// The cron schedules are managed internally by their runners
	log.Println("Cron service stopped.")
	return nil
}
