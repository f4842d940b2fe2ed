package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"payrecord/internal/cache"
	"payrecord/internal/core"
)

// MerchantStore persists per-user merchant icon configuration.
type MerchantStore interface {
	ListMerchants(ctx context.Context, userID string) ([]core.Merchant, error)
	UpsertMerchant(ctx context.Context, userID, name string, icon *string) (core.Merchant, error)
	DeleteMerchant(ctx context.Context, userID, name string) error
	ListCounterparties(ctx context.Context, userID string) ([]string, error)
}

// CacheObserver counts cache lookups.
type CacheObserver interface {
	IncCacheHit(cache string)
	IncCacheMiss(cache string)
}

// IconCacheName identifies the merchant icon cache in metrics and the cache manager.
const IconCacheName = "merchant_icons"

// MerchantService manages merchant icons and serves the icon lookup used
// to decorate bills.
type MerchantService struct {
	store    MerchantStore
	activity ActivityRecorder
	icons    *cache.LRUCache[map[string]string]
}

// NewMerchantService creates the service with a per-user icon cache.
// observer may be nil.
func NewMerchantService(store MerchantStore, activity ActivityRecorder, observer CacheObserver) *MerchantService {
	var opts []cache.Option
	if observer != nil {
		opts = append(opts, cache.WithLookupHook(func(hit bool) {
			if hit {
				observer.IncCacheHit(IconCacheName)
			} else {
				observer.IncCacheMiss(IconCacheName)
			}
		}))
	}
	return &MerchantService{
		store:    store,
		activity: orNoop(activity),
		icons:    cache.NewLRUCache[map[string]string](256, 5*time.Minute, opts...),
	}
}

// IconCache exposes the cache for registration with a cache.Manager.
func (s *MerchantService) IconCache() cache.Cleaner {
	return s.icons
}

// List returns every counterparty the user has used plus every configured
// merchant, sorted by name. Configured icons win.
func (s *MerchantService) List(ctx context.Context, userID string) ([]core.Merchant, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	names, err := s.store.ListCounterparties(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list counterparties: %w", err)
	}
	saved, err := s.store.ListMerchants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}

	byName := make(map[string]core.Merchant, len(names)+len(saved))
	for _, name := range names {
		byName[name] = core.Merchant{Name: name}
	}
	for _, m := range saved {
		byName[m.Name] = core.Merchant{Name: m.Name, Icon: m.Icon}
	}

	merchants := make([]core.Merchant, 0, len(byName))
	for _, m := range byName {
		merchants = append(merchants, m)
	}
	sort.Slice(merchants, func(i, j int) bool { return merchants[i].Name < merchants[j].Name })
	return merchants, nil
}

// Save sets the icon of a merchant, creating the configuration if needed.
func (s *MerchantService) Save(ctx context.Context, userID, name string, icon *string, origin string) (core.Merchant, error) {
	if userID == "" {
		return core.Merchant{}, core.ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Merchant{}, fmt.Errorf("%w: name is required", core.ErrInvalidInput)
	}

	m, err := s.store.UpsertMerchant(ctx, userID, name, core.NullIfEmpty(icon))
	if err != nil {
		return core.Merchant{}, fmt.Errorf("save merchant: %w", err)
	}
	s.icons.Delete(userID)

	s.activity.Record(ctx, userID, core.ActionUpdateMerchantIcon, "Updated icon for "+m.Name, origin)
	return m, nil
}

// Delete removes a merchant configuration. Bills are not touched.
func (s *MerchantService) Delete(ctx context.Context, userID, name, origin string) error {
	if userID == "" {
		return core.ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", core.ErrInvalidInput)
	}
	if err := s.store.DeleteMerchant(ctx, userID, name); err != nil {
		return fmt.Errorf("delete merchant: %w", err)
	}
	s.icons.Delete(userID)

	s.activity.Record(ctx, userID, core.ActionDeleteMerchant, "Deleted merchant config for "+name, origin)
	return nil
}

// Icons maps merchant name to icon URL for the user.
func (s *MerchantService) Icons(ctx context.Context, userID string) (map[string]string, error) {
	if icons, ok := s.icons.Get(userID); ok {
		return icons, nil
	}

	saved, err := s.store.ListMerchants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load merchant icons: %w", err)
	}
	icons := make(map[string]string, len(saved))
	for _, m := range saved {
		if icon := core.StringValue(m.Icon); icon != "" {
			icons[m.Name] = icon
		}
	}
	s.icons.Set(userID, icons)
	slog.DebugContext(ctx, "Merchant icons cached", "user_id", userID, "count", len(icons))
	return icons, nil
}
