package filestore

import (
	"context"
	"strings"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ServiceMapRepository = (*ServiceMapRepo)(nil)

// ServiceMapRepo persists {key: service_id}, the same shape the bot has always
// written, so existing legacy-keyed files load unchanged.
type ServiceMapRepo struct {
	file *jsonFile
	m    map[string]string
}

func NewServiceMapRepo(path string) (*ServiceMapRepo, error) {
	r := &ServiceMapRepo{file: newJSONFile(path), m: map[string]string{}}
	if _, err := r.file.load(&r.m); err != nil {
		return nil, err
	}
	if r.m == nil {
		r.m = map[string]string{}
	}
	for k, v := range r.m {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			return nil, corrupt(path, "service mapping "+k, domain.ErrInvalidArgument)
		}
	}
	return r, nil
}

func (r *ServiceMapRepo) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	v, ok := r.m[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (r *ServiceMapRepo) Set(ctx context.Context, key, serviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || serviceID == "" {
		return domain.ErrInvalidArgument
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	prev, had := r.m[key]
	r.m[key] = serviceID
	if err := r.file.save(r.m); err != nil {
		if had {
			r.m[key] = prev
		} else {
			delete(r.m, key)
		}
		return err
	}
	return nil
}

func (r *ServiceMapRepo) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	prev, had := r.m[key]
	if !had {
		return nil
	}
	delete(r.m, key)
	if err := r.file.save(r.m); err != nil {
		r.m[key] = prev
		return err
	}
	return nil
}

func (r *ServiceMapRepo) All(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	out := make(map[string]string, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out, nil
}
