package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mssola/useragent"
	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/cache"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// Device classes reported in StatsResult.Devices.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// StatsResult is the dashboard summary for the last WindowDays days.
type StatsResult struct {
	store.SummaryStats
	Devices     []store.CountStat `json:"deviceBreakdown"`
	Browsers    []store.CountStat `json:"browserBreakdown"`
	WindowDays  int               `json:"windowDays"`
	Since       time.Time         `json:"since"`
	Until       time.Time         `json:"until"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// StatsUsecase defines the interface for stats operations.
type StatsUsecase interface {
	Summary(ctx context.Context) (*StatsResult, error)
}

// StatsStore defines the interface for stats data access.
type StatsStore interface {
	SummaryStats(ctx context.Context, since, until time.Time) (*store.SummaryStats, error)
}

// StatsService implements StatsUsecase.
type StatsService struct {
	store      StatsStore
	cache      cache.Cache
	cacheTTL   time.Duration
	windowDays int
	now        func() time.Time
	logger     zerolog.Logger
}

// StatsOption configures a StatsService.
type StatsOption func(*StatsService)

// WithStatsCache caches results in c for ttl.
func WithStatsCache(c cache.Cache, ttl time.Duration) StatsOption {
	return func(s *StatsService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithStatsWindow sets the number of days summarised.
func WithStatsWindow(days int) StatsOption {
	return func(s *StatsService) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithStatsClock sets the time source (for testing).
func WithStatsClock(now func() time.Time) StatsOption {
	return func(s *StatsService) { s.now = now }
}

// WithStatsLogger sets the logger for cache failures.
func WithStatsLogger(l zerolog.Logger) StatsOption {
	return func(s *StatsService) { s.logger = l }
}

// NewStatsService creates a new StatsService.
func NewStatsService(st StatsStore, opts ...StatsOption) *StatsService {
	s := &StatsService{
		store:      st,
		windowDays: 30,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary returns statistics for [now - windowDays, now).
// Cache failures are logged and fall through to the store.
func (s *StatsService) Summary(ctx context.Context) (*StatsResult, error) {
	key := fmt.Sprintf("stats:%d", s.windowDays)

	if s.cache != nil && s.cacheTTL > 0 {
		b, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Msg("stats cache get failed")
		} else if ok {
			var cached StatsResult
			if err := json.Unmarshal(b, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	until := s.now().UTC()
	since := until.AddDate(0, 0, -s.windowDays)

	summary, err := s.store.SummaryStats(ctx, since, until)
	if err != nil {
		return nil, err
	}

	res := &StatsResult{
		SummaryStats: *summary,
		WindowDays:   s.windowDays,
		Since:        since,
		Until:        until,
		GeneratedAt:  until,
	}
	res.Devices, res.Browsers = breakdown(summary.UserAgents, summary.RecentViews)

	if s.cache != nil && s.cacheTTL > 0 {
		if b, err := json.Marshal(res); err == nil {
			if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Msg("stats cache set failed")
			}
		}
	}
	return res, nil
}

// breakdown classifies raw user agent counts by device and browser.
// Views without a user agent, or outside the listed agents, count as unknown.
func breakdown(agents []store.CountStat, views int64) (devices, browsers []store.CountStat) {
	deviceCounts := make(map[string]int64)
	browserCounts := make(map[string]int64)

	var classified int64
	for _, a := range agents {
		ua := useragent.New(a.Value)
		deviceCounts[deviceType(ua)] += a.Count

		name, _ := ua.Browser()
		if name == "" {
			name = DeviceUnknown
		}
		browserCounts[name] += a.Count
		classified += a.Count
	}
	if rest := views - classified; rest > 0 {
		deviceCounts[DeviceUnknown] += rest
		browserCounts[DeviceUnknown] += rest
	}

	return sortedCounts(deviceCounts), sortedCounts(browserCounts)
}

func deviceType(ua *useragent.UserAgent) string {
	if ua.Bot() {
		return DeviceBot
	}
	if ua.Mobile() {
		return DeviceMobile
	}
	if ua.OS() == "" {
		return DeviceUnknown
	}
	return DeviceDesktop
}

func sortedCounts(m map[string]int64) []store.CountStat {
	out := make([]store.CountStat, 0, len(m))
	for v, c := range m {
		out = append(out, store.CountStat{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
