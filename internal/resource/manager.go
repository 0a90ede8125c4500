// Package resource tracks shared process handles (db pools, the S3
// archive client) so services can look them up by name and the
// heartbeat can report what is alive.
package resource

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ScholarSaas/internal/logger"
	"ScholarSaas/internal/serviceiface"
)

type ResourceManager struct {
	handles           map[string]interface{}
	mu                sync.RWMutex
	stopChan          chan struct{}
	heartbeatInterval time.Duration
}

func NewResourceManagerService(cfg map[string]interface{}) serviceiface.Service {
	interval := 5 * time.Second
	if val, ok := cfg["heartbeat_interval"]; ok {
		switch v := val.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				interval = d
			}
		case float64:
			interval = time.Duration(v) * time.Second
		}
	}
	return &ResourceManager{
		handles:           make(map[string]interface{}),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
	}
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("ResourceManager started")
	}
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop() error {
	close(rm.stopChan)
	return nil
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			if logger.GlobalLogger != nil {
				logger.GlobalLogger.LogAudit(rm.heartbeatStatus())
			}
		}
	}
}

// heartbeatStatus names every registered handle so a stuck scholar
// service shows up in the audit log as a missing entry.
func (rm *ResourceManager) heartbeatStatus() string {
	names := rm.ListResources()
	if len(names) == 0 {
		return "resource heartbeat: no handles registered"
	}
	return fmt.Sprintf("resource heartbeat: %d handles (%s)", len(names), strings.Join(names, ", "))
}

func (rm *ResourceManager) AddResource(key string, handle interface{}) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.handles[key] = handle
}

func (rm *ResourceManager) GetResource(key string) (interface{}, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	handle, exists := rm.handles[key]
	return handle, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.handles, key)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.handles))
	for key := range rm.handles {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
