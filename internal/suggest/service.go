package suggest

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"jizhang/internal/cache"
	"jizhang/internal/core"
	"jizhang/internal/log"
)

// Options tunes a Service.
type Options struct {
	// Timeout bounds a single provider call. Zero means 10s.
	Timeout time.Duration
	// CacheSize and CacheTTL configure the answer cache. Zero size means 256, zero TTL one hour.
	CacheSize int
	CacheTTL  time.Duration
	// Fallback is consulted when the primary suggester fails. Nil means answer CategoryOther.
	Fallback Suggester
}

// Service is the never-failing suggestion entry point used by the HTTP API and the CLI.
// It normalizes answers to known categories, caches them, and collapses concurrent
// requests for the same description into one provider call.
type Service struct {
	primary  Suggester
	fallback Suggester
	timeout  time.Duration
	cache    *cache.LRUCache[core.Category]
	group    singleflight.Group
}

func NewService(primary Suggester, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Service{
		primary:  primary,
		fallback: opts.Fallback,
		timeout:  opts.Timeout,
		cache:    cache.NewLRUCache[core.Category](opts.CacheSize, opts.CacheTTL),
	}
}

// Cache exposes the answer cache for registration with a cache.Manager.
func (s *Service) Cache() *cache.LRUCache[core.Category] {
	return s.cache
}

type result struct {
	category core.Category
}

// SuggestCategory returns a known category for description. Any failure, including
// cancellation of ctx, yields CategoryOther.
func (s *Service) SuggestCategory(ctx context.Context, description string) core.Category {
	key := cacheKey(description)
	if key == "" {
		return core.CategoryOther
	}
	if c, ok := s.cache.Get(key); ok {
		return c
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// Detached from the caller: one caller's cancellation must not fail the others sharing this flight.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.resolve(callCtx, key, description), nil
	})

	select {
	case <-ctx.Done():
		log.FromContext(ctx).WarnContext(ctx, "Category suggestion abandoned",
			log.FieldError, ctx.Err(), log.FieldOperation, log.OpSuggest)
		return core.CategoryOther
	case res := <-ch:
		return res.Val.(result).category
	}
}

func (s *Service) resolve(ctx context.Context, key, description string) result {
	c, err := s.primary.Suggest(ctx, description)
	if err == nil {
		c = c.Normalize()
		s.cache.Set(key, c)
		return result{category: c}
	}

	log.FromContext(ctx).WarnContext(ctx, "Category suggestion failed, using fallback",
		log.FieldError, err, log.FieldOperation, log.OpSuggest)

	if s.fallback != nil {
		if fc, ferr := s.fallback.Suggest(ctx, description); ferr == nil {
			return result{category: fc.Normalize()}
		}
	}
	return result{category: core.CategoryOther}
}

// cacheKey normalizes descriptions so trivially different spellings share an entry.
func cacheKey(description string) string {
	s := norm.NFKC.String(description)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
