package departure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/session"
)

// Predictor defaults.
const (
	// MinHistorySamples is the completed-session floor below which the
	// route baseline replaces the user's own history.
	MinHistorySamples = 3

	// DefaultMaxAdjustmentMin clamps the realtime delay adjustment to
	// ±30 minutes so a noisy upstream signal cannot run a prediction away.
	DefaultMaxAdjustmentMin = 30.0

	// DefaultHistoryLimit bounds how many recent sessions feed the average.
	DefaultHistoryLimit = 30
)

// CanonicalTimezone mirrors the streak calendar: departure dates and arrival
// targets are interpreted in one fixed regional timezone.
const CanonicalTimezone = "Asia/Seoul"

// HistorySource provides a user's completed sessions on a route.
// session.Repository satisfies it.
type HistorySource interface {
	CompletedByUserAndRoute(ctx context.Context, userID, routeID string, limit int) ([]*session.Session, error)
}

// DelaySource provides the live delay signal for a route, in signed minutes.
// A failure is treated as "no adjustment available," never as fatal.
type DelaySource interface {
	DelayMinutes(ctx context.Context, routeID string) (float64, error)
}

// BaselineSource provides route-level fallback travel times for users with
// insufficient history.
type BaselineSource interface {
	BaselineTravelMin(ctx context.Context, routeID string) (float64, error)
}

// StaticBaselines is a fixed BaselineSource backed by a route map.
type StaticBaselines struct {
	Routes  map[string]float64
	Default float64
}

// BaselineTravelMin returns the route's baseline, or the default.
func (b StaticBaselines) BaselineTravelMin(_ context.Context, routeID string) (float64, error) {
	if min, ok := b.Routes[routeID]; ok {
		return min, nil
	}
	return b.Default, nil
}

// Alert describes one due pre-departure notification. This package decides
// when an alert is due, never how it is delivered.
type Alert struct {
	UserID             string
	SettingID          string
	SnapshotID         string
	RouteID            string
	OffsetMinutes      int
	OptimalDepartureAt time.Time
}

// Dispatcher delivers due pre-alerts.
type Dispatcher interface {
	Notify(ctx context.Context, alert Alert) error
}

// ServiceConfig holds configuration for the departure predictor service.
type ServiceConfig struct {
	Repository Repository
	History    HistorySource
	Baselines  BaselineSource
	Logger     zerolog.Logger

	// Delays is the live delay signal. Nil means no adjustment is applied.
	Delays DelaySource

	// Dispatcher receives due pre-alerts. Nil disables delivery; offsets
	// are still marked sent so a later-configured dispatcher never replays
	// stale alerts.
	Dispatcher Dispatcher

	// Location overrides the canonical calendar. Defaults to Asia/Seoul.
	Location *time.Location

	// MinSamples overrides MinHistorySamples when > 0.
	MinSamples int

	// MaxAdjustmentMin overrides DefaultMaxAdjustmentMin when > 0.
	MaxAdjustmentMin float64

	// HistoryLimit overrides DefaultHistoryLimit when > 0.
	HistoryLimit int
}

// Service computes smart departure plans and drives their alert lifecycle.
// Snapshot writes for the same setting are serialized.
type Service struct {
	repo             Repository
	history          HistorySource
	baselines        BaselineSource
	delays           DelaySource
	dispatcher       Dispatcher
	logger           zerolog.Logger
	location         *time.Location
	minSamples       int
	maxAdjustmentMin float64
	historyLimit     int

	mu           sync.Mutex
	settingLocks map[string]*sync.Mutex
}

// NewService creates a new departure predictor service.
func NewService(cfg ServiceConfig) *Service {
	location := cfg.Location
	if location == nil {
		if loc, err := time.LoadLocation(CanonicalTimezone); err == nil {
			location = loc
		} else {
			location = time.UTC
		}
	}

	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = MinHistorySamples
	}

	maxAdjustment := cfg.MaxAdjustmentMin
	if maxAdjustment <= 0 {
		maxAdjustment = DefaultMaxAdjustmentMin
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	return &Service{
		repo:             cfg.Repository,
		history:          cfg.History,
		baselines:        cfg.Baselines,
		delays:           cfg.Delays,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
		location:         location,
		minSamples:       minSamples,
		maxAdjustmentMin: maxAdjustment,
		historyLimit:     historyLimit,
		settingLocks:     make(map[string]*sync.Mutex),
	}
}

// CreateSetting validates and persists a new departure setting. Pre-alert
// offsets are stored descending, the order they fire in.
func (s *Service) CreateSetting(ctx context.Context, setting *Setting, now time.Time) (*Setting, error) {
	if _, err := time.Parse("15:04", setting.ArrivalTarget); err != nil {
		return nil, fmt.Errorf("invalid arrival target %q: %w", setting.ArrivalTarget, err)
	}
	if setting.DepartureType == "" {
		setting.DepartureType = TypeCommute
	}

	setting.ID = "dst_" + uuid.New().String()[:22]
	setting.IsEnabled = true
	setting.CreatedAt = now
	setting.UpdatedAt = now
	sort.Sort(sort.Reverse(sort.IntSlice(setting.PreAlerts)))

	if err := s.repo.CreateSetting(ctx, setting); err != nil {
		return nil, err
	}

	return setting, nil
}

// GetSetting retrieves a setting owned by the user.
func (s *Service) GetSetting(ctx context.Context, userID, settingID string) (*Setting, error) {
	return s.repo.GetSetting(ctx, userID, settingID)
}

// ListSettings retrieves all of a user's settings.
func (s *Service) ListSettings(ctx context.Context, userID string) ([]*Setting, error) {
	return s.repo.ListSettingsByUser(ctx, userID)
}

// DisableSetting turns a setting off and cancels today's snapshot if one is
// still awaiting departure.
func (s *Service) DisableSetting(ctx context.Context, userID, settingID string, now time.Time) error {
	unlock := s.lockSetting(settingID)
	defer unlock()

	setting, err := s.repo.GetSetting(ctx, userID, settingID)
	if err != nil {
		return err
	}

	setting.IsEnabled = false
	setting.UpdatedAt = now
	if err := s.repo.UpdateSetting(ctx, setting); err != nil {
		return err
	}

	snap, err := s.repo.GetSnapshot(ctx, settingID, civilDate(now, s.location))
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil
		}
		return err
	}
	if !snap.Active() {
		return nil
	}

	snap.Status = StatusCancelled
	snap.UpdatedAt = now
	return s.repo.UpsertSnapshot(ctx, snap)
}

// Recalculate computes (or refreshes) the departure snapshot for the
// setting's current canonical date. Idempotent per (settingID, date): a
// repeat call mutates the same row, preserving its status and fired alerts.
func (s *Service) Recalculate(ctx context.Context, userID, settingID string, now time.Time) (*Snapshot, error) {
	unlock := s.lockSetting(settingID)
	defer unlock()

	setting, err := s.repo.GetSetting(ctx, userID, settingID)
	if err != nil {
		return nil, err
	}

	return s.recalculate(ctx, setting, now)
}

func (s *Service) recalculate(ctx context.Context, setting *Setting, now time.Time) (*Snapshot, error) {
	if !setting.IsEnabled {
		return nil, ErrSettingDisabled
	}

	localNow := now.In(s.location)
	if len(setting.ActiveDays) > 0 && !setting.ActiveOn(localNow.Weekday()) {
		return nil, ErrInactiveDay
	}

	date := civilDate(now, s.location)

	historyAvg, err := s.historyAvgTravelMin(ctx, setting.UserID, setting.RouteID)
	if err != nil {
		return nil, err
	}

	adjustment := s.realtimeAdjustmentMin(ctx, setting.RouteID)

	estimated := historyAvg + adjustment
	if estimated < 0 {
		estimated = 0
	}

	arrivalAt, err := setting.arrivalTargetOn(date, s.location)
	if err != nil {
		return nil, err
	}

	travel := time.Duration(estimated * float64(time.Minute))
	prep := time.Duration(setting.PrepTimeMinutes) * time.Minute
	optimal := arrivalAt.Add(-travel - prep)

	snap, err := s.repo.GetSnapshot(ctx, setting.ID, date)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			return nil, err
		}
		snap = &Snapshot{
			ID:            "dsn_" + uuid.New().String()[:22],
			SettingID:     setting.ID,
			UserID:        setting.UserID,
			RouteID:       setting.RouteID,
			DepartureDate: date,
			Status:        StatusScheduled,
		}
	}

	snap.HistoryAvgTravelMin = historyAvg
	snap.RealtimeAdjustmentMin = adjustment
	snap.EstimatedTravelMin = estimated
	snap.PrepTimeMinutes = setting.PrepTimeMinutes
	snap.ArrivalTargetAt = arrivalAt
	snap.OptimalDepartureAt = optimal
	snap.ComputedAt = now
	snap.UpdatedAt = now

	if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// TodaySnapshot returns the setting's snapshot for the current canonical
// date, computing it on demand if none exists yet.
func (s *Service) TodaySnapshot(ctx context.Context, userID, settingID string, now time.Time) (*Snapshot, error) {
	setting, err := s.repo.GetSetting(ctx, userID, settingID)
	if err != nil {
		return nil, err
	}

	snap, err := s.repo.GetSnapshot(ctx, settingID, civilDate(now, s.location))
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrSnapshotNotFound) {
		return nil, err
	}

	unlock := s.lockSetting(settingID)
	defer unlock()
	return s.recalculate(ctx, setting, now)
}

// ConfirmDeparted marks today's snapshot departed on the user's explicit
// confirmation.
func (s *Service) ConfirmDeparted(ctx context.Context, userID, settingID string, now time.Time) (*Snapshot, error) {
	unlock := s.lockSetting(settingID)
	defer unlock()

	if _, err := s.repo.GetSetting(ctx, userID, settingID); err != nil {
		return nil, err
	}

	snap, err := s.repo.GetSnapshot(ctx, settingID, civilDate(now, s.location))
	if err != nil {
		return nil, err
	}
	if !snap.Active() {
		return snap, nil
	}

	snap.Status = StatusDeparted
	snap.UpdatedAt = now
	if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// RecalculateAll refreshes snapshots for every enabled setting active on the
// current canonical day. Used by the recurring worker sweep. Returns the
// number of snapshots refreshed.
func (s *Service) RecalculateAll(ctx context.Context, now time.Time) (int, error) {
	settings, err := s.repo.ListEnabledSettings(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, setting := range settings {
		unlock := s.lockSetting(setting.ID)
		_, err := s.recalculate(ctx, setting, now)
		unlock()
		if err != nil {
			if errors.Is(err, ErrInactiveDay) {
				continue
			}
			s.logger.Error().Err(err).
				Str("setting_id", setting.ID).
				Msg("failed to recalculate departure snapshot")
			continue
		}
		refreshed++
	}

	return refreshed, nil
}

// EvaluateAlerts fires every due, unfired pre-alert across enabled settings
// and expires yesterday's unconfirmed snapshots. Firing is monotonic: an
// offset enters AlertsSent once and is never re-fired. Returns the number of
// alerts fired.
func (s *Service) EvaluateAlerts(ctx context.Context, now time.Time) (int, error) {
	settings, err := s.repo.ListEnabledSettings(ctx)
	if err != nil {
		return 0, err
	}

	today := civilDate(now, s.location)
	fired := 0
	for _, setting := range settings {
		s.expireStale(ctx, setting.ID, today, now)

		n, err := s.evaluateSetting(ctx, setting, today, now)
		if err != nil {
			s.logger.Error().Err(err).
				Str("setting_id", setting.ID).
				Msg("failed to evaluate pre-alerts")
			continue
		}
		fired += n
	}

	return fired, nil
}

func (s *Service) evaluateSetting(ctx context.Context, setting *Setting, today, now time.Time) (int, error) {
	unlock := s.lockSetting(setting.ID)
	defer unlock()

	snap, err := s.repo.GetSnapshot(ctx, setting.ID, today)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !snap.Active() {
		return 0, nil
	}

	offsets := append([]int(nil), setting.PreAlerts...)
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))

	minutes := snap.MinutesUntilDeparture(now)
	fired := 0
	for _, offset := range offsets {
		if minutes > float64(offset) || snap.AlertSent(offset) {
			continue
		}

		if s.dispatcher != nil {
			alert := Alert{
				UserID:             snap.UserID,
				SettingID:          snap.SettingID,
				SnapshotID:         snap.ID,
				RouteID:            snap.RouteID,
				OffsetMinutes:      offset,
				OptimalDepartureAt: snap.OptimalDepartureAt,
			}
			if err := s.dispatcher.Notify(ctx, alert); err != nil {
				// Leave the offset unsent so the next sweep retries it.
				s.logger.Error().Err(err).
					Str("snapshot_id", snap.ID).
					Int("offset_min", offset).
					Msg("failed to dispatch pre-alert")
				continue
			}
		}

		snap.AlertsSent = append(snap.AlertsSent, offset)
		snap.Status = StatusNotified
		fired++
	}

	if fired == 0 {
		return 0, nil
	}

	snap.UpdatedAt = now
	if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
		return fired, err
	}

	return fired, nil
}

// expireStale marks the previous day's snapshot expired if the user never
// confirmed departure.
func (s *Service) expireStale(ctx context.Context, settingID string, today, now time.Time) {
	yesterday := today.AddDate(0, 0, -1)
	snap, err := s.repo.GetSnapshot(ctx, settingID, yesterday)
	if err != nil || !snap.Active() {
		return
	}

	snap.Status = StatusExpired
	snap.UpdatedAt = now
	if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
		s.logger.Error().Err(err).
			Str("snapshot_id", snap.ID).
			Msg("failed to expire departure snapshot")
	}
}

// historyAvgTravelMin averages the user's recent completed sessions on the
// route, falling back to the route baseline below the sample floor.
func (s *Service) historyAvgTravelMin(ctx context.Context, userID, routeID string) (float64, error) {
	sessions, err := s.history.CompletedByUserAndRoute(ctx, userID, routeID, s.historyLimit)
	if err != nil {
		return 0, fmt.Errorf("read route history: %w", err)
	}

	if len(sessions) < s.minSamples {
		baseline, err := s.baselines.BaselineTravelMin(ctx, routeID)
		if err != nil {
			return 0, fmt.Errorf("read route baseline: %w", err)
		}
		return baseline, nil
	}

	var total float64
	for _, sess := range sessions {
		total += sess.Duration().Minutes()
	}
	return total / float64(len(sessions)), nil
}

// realtimeAdjustmentMin reads the live delay signal, clamped to the
// configured range. Signal failure means no adjustment.
func (s *Service) realtimeAdjustmentMin(ctx context.Context, routeID string) float64 {
	if s.delays == nil {
		return 0
	}

	delay, err := s.delays.DelayMinutes(ctx, routeID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("route_id", routeID).
			Msg("delay signal unavailable, no adjustment applied")
		return 0
	}

	if delay > s.maxAdjustmentMin {
		return s.maxAdjustmentMin
	}
	if delay < -s.maxAdjustmentMin {
		return -s.maxAdjustmentMin
	}
	return delay
}

func (s *Service) lockSetting(settingID string) func() {
	s.mu.Lock()
	l, ok := s.settingLocks[settingID]
	if !ok {
		l = &sync.Mutex{}
		s.settingLocks[settingID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// civilDate collapses an instant to its civil date in loc, anchored at
// midnight UTC.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
