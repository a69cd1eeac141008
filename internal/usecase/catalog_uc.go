package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ CatalogUseCase = (*catalogUC)(nil)

// MinMatchScore is the lowest similarity accepted by SyncServices.
const MinMatchScore = 0.60

type SyncMatch struct {
	ItemID      string
	ItemTitle   string
	ServiceID   string
	ServiceName string
	Score       float64
}

type SyncReport struct {
	Matched   []SyncMatch
	Unmatched []string // item ids without a good enough candidate
	Skipped   int      // already mapped, explicit service id, or bundle
}

type MappingEntry struct {
	Key       string
	ServiceID string
	Legacy    bool
}

type CatalogUseCase interface {
	Catalog(ctx context.Context) (*model.Catalog, error)
	Item(ctx context.Context, itemID string) (*model.CatalogItem, error)
	// Resolve returns the provider service id of item: its own id, then the
	// stable mapping, then the deprecated legacy key.
	Resolve(ctx context.Context, item *model.CatalogItem) (string, error)
	ProviderService(ctx context.Context, serviceID string) (*model.ProviderService, error)
	ProviderServices(ctx context.Context, limit int) ([]model.ProviderService, error)

	SetService(ctx context.Context, itemID, serviceID string) error
	Mappings(ctx context.Context, limit int) ([]MappingEntry, error)
	SyncServices(ctx context.Context) (*SyncReport, error)
	// MigrateLegacyKeys copies legacy-keyed mappings to stable item ids.
	MigrateLegacyKeys(ctx context.Context) (int, error)
}

// listInvalidator is implemented by provider clients that cache the service
// list.
type listInvalidator interface {
	Invalidate(ctx context.Context) error
}

type catalogUC struct {
	source   repository.CatalogSource
	mapping  repository.ServiceMapRepository
	provider adapter.ProviderClient
	log      *zerolog.Logger
}

func NewCatalogUseCase(source repository.CatalogSource, mapping repository.ServiceMapRepository, provider adapter.ProviderClient, logger *zerolog.Logger) *catalogUC {
	return &catalogUC{source: source, mapping: mapping, provider: provider, log: logger}
}

func (u *catalogUC) Catalog(ctx context.Context) (*model.Catalog, error) {
	return u.source.Load(ctx)
}

func (u *catalogUC) Item(ctx context.Context, itemID string) (*model.CatalogItem, error) {
	c, err := u.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	it, ok := c.Item(itemID)
	if !ok {
		return nil, fmt.Errorf("item %q: %w", itemID, domain.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (u *catalogUC) Resolve(ctx context.Context, item *model.CatalogItem) (string, error) {
	if item.ServiceID != "" {
		return item.ServiceID, nil
	}
	sid, err := u.mapping.Get(ctx, item.ID)
	if err == nil && sid != "" {
		return sid, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	sid, err = u.mapping.Get(ctx, item.LegacyKey())
	if err == nil && sid != "" {
		u.log.Warn().Str("item_id", item.ID).Str("legacy_key", item.LegacyKey()).Msg("service resolved through deprecated legacy key")
		return sid, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	return "", fmt.Errorf("item %q: %w", item.ID, domain.ErrUnmappedService)
}

func (u *catalogUC) ProviderService(ctx context.Context, serviceID string) (*model.ProviderService, error) {
	list, err := u.provider.ListServices(ctx)
	if err != nil {
		return nil, &domain.ProviderError{Op: "list_services", Err: err}
	}
	for i := range list {
		if list[i].ID == serviceID {
			s := list[i]
			return &s, nil
		}
	}
	return nil, fmt.Errorf("service %s not offered by %s: %w", serviceID, u.provider.Name(), domain.ErrUnmappedService)
}

func (u *catalogUC) ProviderServices(ctx context.Context, limit int) ([]model.ProviderService, error) {
	list, err := u.provider.ListServices(ctx)
	if err != nil {
		return nil, &domain.ProviderError{Op: "list_services", Err: err}
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (u *catalogUC) SetService(ctx context.Context, itemID, serviceID string) error {
	if itemID == "" || serviceID == "" {
		return domain.ErrInvalidArgument
	}
	if _, err := u.Item(ctx, itemID); err != nil {
		return err
	}
	if err := u.mapping.Set(ctx, itemID, serviceID); err != nil {
		return err
	}
	u.log.Info().Str("item_id", itemID).Str("service_id", serviceID).Msg("service mapping set")
	return nil
}

func (u *catalogUC) Mappings(ctx context.Context, limit int) ([]MappingEntry, error) {
	all, err := u.mapping.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MappingEntry, 0, len(all))
	for k, v := range all {
		out = append(out, MappingEntry{Key: k, ServiceID: v, Legacy: model.IsLegacyServiceKey(k)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (u *catalogUC) SyncServices(ctx context.Context) (*SyncReport, error) {
	defer logging.TraceDuration(u.log, "CatalogUC.SyncServices")()

	c, err := u.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	// Sync matches against the live list.
	if inv, ok := u.provider.(listInvalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			u.log.Warn().Err(err).Msg("service list cache not invalidated")
		}
	}
	services, err := u.provider.ListServices(ctx)
	if err != nil {
		return nil, &domain.ProviderError{Op: "list_services", Err: err}
	}
	type candidate struct {
		id, name, norm string
	}
	cands := make([]candidate, 0, len(services))
	for _, s := range services {
		cands = append(cands, candidate{id: s.ID, name: s.Name, norm: normalizeServiceName(s.Name)})
	}

	existing, err := u.mapping.All(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, it := range c.Items() {
		if it.ServiceID != "" || it.IsBundle() {
			report.Skipped++
			continue
		}
		if _, ok := existing[it.ID]; ok {
			report.Skipped++
			continue
		}
		if _, ok := existing[it.LegacyKey()]; ok {
			report.Skipped++
			continue
		}

		query := normalizeServiceName(it.Title)
		var best candidate
		bestScore := 0.0
		for _, cand := range cands {
			if score := similarity(query, cand.norm); score > bestScore {
				best, bestScore = cand, score
			}
		}
		if best.id == "" || bestScore < MinMatchScore {
			report.Unmatched = append(report.Unmatched, it.ID)
			continue
		}
		if err := u.mapping.Set(ctx, it.ID, best.id); err != nil {
			return report, err
		}
		report.Matched = append(report.Matched, SyncMatch{
			ItemID: it.ID, ItemTitle: it.Title, ServiceID: best.id, ServiceName: best.name, Score: bestScore,
		})
	}
	u.log.Info().Int("matched", len(report.Matched)).Int("unmatched", len(report.Unmatched)).Int("skipped", report.Skipped).Msg("service sync finished")
	return report, nil
}

func (u *catalogUC) MigrateLegacyKeys(ctx context.Context) (int, error) {
	c, err := u.source.Load(ctx)
	if err != nil {
		return 0, err
	}
	all, err := u.mapping.All(ctx)
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, it := range c.Items() {
		sid, ok := all[it.LegacyKey()]
		if !ok {
			continue
		}
		if _, has := all[it.ID]; !has {
			if err := u.mapping.Set(ctx, it.ID, sid); err != nil {
				return migrated, err
			}
			migrated++
		}
		if err := u.mapping.Delete(ctx, it.LegacyKey()); err != nil {
			return migrated, err
		}
	}
	if migrated > 0 {
		u.log.Info().Int("count", migrated).Msg("legacy service keys migrated")
	}
	return migrated, nil
}
