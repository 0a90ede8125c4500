package scholar

import (
	"ScholarSaas/internal/serviceiface"
	"database/sql"
)

type ScholarService struct {
	config map[string]interface{}
	db     *sql.DB
}

func NewScholarService(cfg map[string]interface{}, db *sql.DB) serviceiface.Service {
	return &ScholarService{config: cfg, db: db}
}

func (s *ScholarService) Name() string {
	return "scholar"
}

func (s *ScholarService) Start() error {
	go StartScholarService(s.db)
	return nil
}

func (s *ScholarService) Stop() error {
	// Implement stop logic if needed
	return nil
}
