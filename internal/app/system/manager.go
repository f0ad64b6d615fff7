package system

import (
	"context"
	"fmt"

	"github.com/rankboard/rankboard/internal/logging"
)

// Manager starts registered services in order and stops them in reverse.
type Manager struct {
	services []Service
	started  []Service
	log      *logging.Logger
}

// NewManager creates an empty manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{log: log.Named("system")}
}

// Register appends a service to the start order.
func (m *Manager) Register(svc Service) {
	m.services = append(m.services, svc)
}

// StartAll starts every registered service. On failure the services already
// started are stopped in reverse before the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Error("service start failed")
			m.StopAll(ctx)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
		m.log.WithField("service", svc.Name()).Info("service started")
	}
	return nil
}

// StopAll stops started services in reverse order, logging failures rather
// than aborting the shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Warn("service stop failed")
			continue
		}
		m.log.WithField("service", svc.Name()).Info("service stopped")
	}
	m.started = nil
}
