package lookup

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/mask"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// Lookup sources, used as cache namespaces and metric labels.
const (
	SourceMunicipios = "municipios"
	SourceCNES       = "cnes"
)

// similarLimit bounds locally ranked unit suggestions.
const similarLimit = 5

// Backend is the subset of the backend client the Service decorates.
type Backend interface {
	VerifyUnit(ctx context.Context, name string) (model.UnitVerification, error)
	LookupCNES(ctx context.Context, code string) (model.CNESEstablishment, error)
	Municipios(ctx context.Context, q string) ([]string, error)
	CheckUsername(ctx context.Context, username string) (bool, error)
}

// Service serves lookups through a cache. Municipio and CNES results are
// cached per normalized key; unit verification and username availability
// always reach the backend. A failing cache never fails a lookup.
type Service struct {
	backend    Backend
	cache      Cache
	ttl        time.Duration
	maxResults int
	metrics    *observability.Metrics
	logger     *zap.Logger
	inflight   singleflight.Group
}

// NewService creates a Service. metrics and logger may be nil.
func NewService(b Backend, c Cache, cfg config.LookupConfig, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.Cache.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		backend:    b,
		cache:      c,
		ttl:        ttl,
		maxResults: cfg.MaxResults,
		metrics:    metrics,
		logger:     logger,
	}
}

// Municipios returns the municipio names matching q.
func (s *Service) Municipios(ctx context.Context, q string) ([]string, error) {
	key := SourceMunicipios + ":" + normalizeQuery(q)
	var names []string
	err := s.cached(ctx, SourceMunicipios, key, &names, func(ctx context.Context) (any, error) {
		return s.backend.Municipios(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	if s.maxResults > 0 && len(names) > s.maxResults {
		names = names[:s.maxResults]
	}
	return names, nil
}

// LookupCNES returns the establishment registered under code. Not-found and
// validation outcomes are not cached.
func (s *Service) LookupCNES(ctx context.Context, code string) (model.CNESEstablishment, error) {
	digits := mask.Digits(code)
	if len(digits) != 7 {
		return s.backend.LookupCNES(ctx, code)
	}
	var est model.CNESEstablishment
	err := s.cached(ctx, SourceCNES, SourceCNES+":"+digits, &est, func(ctx context.Context) (any, error) {
		return s.backend.LookupCNES(ctx, digits)
	})
	return est, err
}

// VerifyUnit checks a unit name with the backend. When the backend found no
// similar units itself, they are ranked locally from the full unit list.
func (s *Service) VerifyUnit(ctx context.Context, name string) (model.UnitVerification, error) {
	v, err := s.backend.VerifyUnit(ctx, name)
	if err != nil || v.Found {
		return v, err
	}
	if len(v.Similar) == 0 && len(v.All) > 0 {
		v.Similar = RankSimilar(name, v.All, similarLimit)
	}
	return v, nil
}

// CheckUsername reports whether username is available.
func (s *Service) CheckUsername(ctx context.Context, username string) (bool, error) {
	return s.backend.CheckUsername(ctx, username)
}

// cached loads key into out, calling fetch on a miss. Concurrent misses for
// the same key share one backend call.
func (s *Service) cached(ctx context.Context, source, key string, out any, fetch func(context.Context) (any, error)) error {
	ctx, span := observability.StartLookupSpan(ctx, source)

	if raw, ok := s.get(ctx, key); ok {
		if err := json.Unmarshal(raw, out); err == nil {
			span.SetAttributes(observability.AttrCacheHit.Bool(true))
			span.End()
			s.metrics.RecordLookupCacheHit(source)
			return nil
		}
	}
	s.metrics.RecordLookupCacheMiss(source)
	span.SetAttributes(observability.AttrCacheHit.Bool(false))

	raw, err, _ := s.inflight.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("lookup cache write failed", zap.String("key", key), zap.Error(err))
		}
		return data, nil
	})
	if err != nil {
		observability.EndSpan(span, err)
		return err
	}
	span.End()
	return json.Unmarshal(raw.([]byte), out)
}

func (s *Service) get(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("lookup cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
