package repository

import "context"

// ServiceMapRepository maps catalog keys to provider service ids. Keys are stable
// item ids; "{category}:::{item}" legacy keys are still read.
type ServiceMapRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, serviceID string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}
