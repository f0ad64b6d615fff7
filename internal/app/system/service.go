package system

import "context"

// Service is a long-running component with an explicit lifecycle: the queue
// worker, the reconciliation sweeper, anything the Manager needs to bring up
// before serving traffic and wind down on shutdown.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
