package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/api"
	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/checkpoint"
	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/insight"
	"github.com/commutepulse/commutepulse/internal/neighbor"
	"github.com/commutepulse/commutepulse/internal/session"
	"github.com/commutepulse/commutepulse/internal/streak"
	"github.com/commutepulse/commutepulse/internal/worker"
)

const (
	testSecret   = "test-secret-key-for-testing-only"
	testIssuer   = "https://api.commutepulse.app"
	testAudience = "commutepulse-api"
	testUserID   = "usr_testuser123"
)

// stubCheckpointSource backs the neighbor matcher in router tests.
type stubCheckpointSource struct {
	sets map[string][]checkpoint.Key
}

func (s *stubCheckpointSource) ActiveCheckpointKeys(_ context.Context) (map[string][]checkpoint.Key, error) {
	return s.sets, nil
}

// stubRecompute satisfies handler.RecomputeRunner.
type stubRecompute struct {
	result *worker.RecomputeResult
}

func (s *stubRecompute) Run(_ context.Context) *worker.RecomputeResult {
	return s.result
}

func (s *stubRecompute) MetricsSnapshot() map[string]interface{} {
	return map[string]interface{}{"total_runs": int64(1)}
}

type routerFixture struct {
	router   http.Handler
	insights insight.Repository
	matcher  *neighbor.Matcher
	job      *stubRecompute
}

func newFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)

	streakSvc := streak.NewService(streak.ServiceConfig{
		Repository: streak.NewInMemoryRepository(),
		Logger:     logger,
		Location:   time.UTC,
	})

	sessionRepo := session.NewInMemoryRepository()
	sessionSvc := session.NewService(session.ServiceConfig{
		Repository: sessionRepo,
		Logger:     logger,
		Streaks:    streakSvc,
	})

	departureSvc := departure.NewService(departure.ServiceConfig{
		Repository: departure.NewInMemoryRepository(),
		History:    sessionRepo,
		Baselines:  departure.StaticBaselines{Default: 30},
		Logger:     logger,
		Location:   time.UTC,
	})

	matcher := neighbor.NewMatcher(neighbor.MatcherConfig{
		Source: &stubCheckpointSource{sets: map[string][]checkpoint.Key{}},
		Logger: logger,
	})

	insightRepo := insight.NewInMemoryRepository()
	job := &stubRecompute{result: &worker.RecomputeResult{RegionCount: 2}}

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Auth: middleware.AuthConfig{
			Secret:   []byte(testSecret),
			Issuer:   testIssuer,
			Audience: testAudience,
		},
		SessionService:   sessionSvc,
		StreakService:    streakSvc,
		DepartureService: departureSvc,
		InsightStore:     insightRepo,
		CongestionStore:  congestion.NewInMemoryRepository(),
		NeighborMatcher:  matcher,
		Job:              job,
	})

	return &routerFixture{
		router:   router,
		insights: insightRepo,
		matcher:  matcher,
		job:      job,
	}
}

// generateTestToken signs a valid access token for the test user.
func generateTestToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   testUserID,
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+generateTestToken(t))
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/ops/health", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/ops/ready", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SystemStatusRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/ops/status", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	w = f.do(t, http.MethodGet, "/v1/ops/status", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, float64(1), status.JobMetrics["total_runs"])
}

func TestRouter_TriggerRecompute(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/ops/recompute", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.RecomputeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.RegionCount)
}

func TestRouter_TriggerRecompute_Conflict(t *testing.T) {
	f := newFixture(t)
	f.job.result = &worker.RecomputeResult{Rejected: true}

	w := f.do(t, http.MethodPost, "/v1/ops/recompute", nil, true)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_SessionLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/me/sessions",
		models.SessionStartRequest{RouteID: "rt_1", RegionID: "seoul"}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, fmt.Sprintf("/v1/me/sessions/%s", sess.ID), w.Header().Get("Location"))
	assert.Equal(t, "in_progress", sess.Status)

	base := "/v1/me/sessions/" + sess.ID
	for _, name := range []string{"Gangnam", "City Hall"} {
		w = f.do(t, http.MethodPost, base+"/checkpoints", models.ArrivalRequest{
			Checkpoint: models.CheckpointInput{Name: name, Type: "subway"},
		}, true)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = f.do(t, http.MethodPost, base+"/complete", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.FinalizeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Updated)
	assert.Equal(t, "completed", result.Session.Status)
	assert.Len(t, result.Session.Records, 2)

	// Repeat completion is idempotent.
	w = f.do(t, http.MethodPost, base+"/complete", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Updated)

	// The completion counted toward the streak.
	w = f.do(t, http.MethodGet, "/v1/me/streak", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var st models.Streak
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, 1, st.WeeklyCount)
}

func TestRouter_SessionRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/me/sessions",
		models.SessionStartRequest{RouteID: "rt_1", RegionID: "seoul"}, false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_StreakZeroState(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/me/streak", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var st models.Streak
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, streak.DefaultWeeklyGoal, st.WeeklyGoal)
}

func TestRouter_SetWeeklyGoal(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/v1/me/streak/weekly-goal",
		models.WeeklyGoalRequest{WeeklyGoal: 3}, true)
	require.Equal(t, http.StatusOK, w.Code)

	var st models.Streak
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 3, st.WeeklyGoal)

	w = f.do(t, http.MethodPut, "/v1/me/streak/weekly-goal",
		models.WeeklyGoalRequest{WeeklyGoal: 9}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_InsightsPublic(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.insights.ReplaceAll(context.Background(), []*insight.RegionalInsight{
		{RegionID: "seoul", UserCount: 5, SessionCount: 12, AvgDurationMin: 42, TrendDirection: insight.TrendStable, ComputedAt: time.Now()},
	}))

	w := f.do(t, http.MethodGet, "/v1/insights/regions", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.RegionalInsightList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "seoul", list.Items[0].RegionID)

	w = f.do(t, http.MethodGet, "/v1/insights/regions/busan", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NeighborCountBeforeRebuild(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/me/neighbors", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, f.matcher.Rebuild(context.Background()))

	w = f.do(t, http.MethodGet, "/v1/me/neighbors", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var count models.NeighborCount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &count))
	assert.Equal(t, 0, count.NeighborCount)
	assert.Equal(t, neighbor.MinSharedCheckpoints, count.MinSharedCheckpoints)
}

func TestRouter_DepartureSettings(t *testing.T) {
	f := newFixture(t)

	create := models.DepartureSettingCreateRequest{
		RouteID:         "rt_1",
		DepartureType:   "commute",
		ArrivalTarget:   "23:59",
		PrepTimeMinutes: 20,
		ActiveDays:      []int{0, 1, 2, 3, 4, 5, 6},
		PreAlerts:       []int{30, 10},
	}

	w := f.do(t, http.MethodPost, "/v1/me/departures", create, true)
	require.Equal(t, http.StatusCreated, w.Code)

	var setting models.DepartureSetting
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &setting))
	assert.True(t, setting.IsEnabled)
	assert.Equal(t, []int{30, 10}, setting.PreAlerts)

	w = f.do(t, http.MethodGet, "/v1/me/departures", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.DepartureSettingList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	// The day's plan is computed on demand; no history yet, so the route
	// baseline carries the estimate.
	w = f.do(t, http.MethodGet, "/v1/me/departures/"+setting.ID+"/today", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.DepartureSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, "scheduled", snapshot.Status)
	assert.InDelta(t, 30, snapshot.EstimatedTravelMin, 0.001)

	w = f.do(t, http.MethodDelete, "/v1/me/departures/"+setting.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Recalculating a disabled setting conflicts.
	w = f.do(t, http.MethodPost, "/v1/me/departures/"+setting.ID+"/recalculate", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_DepartureValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/me/departures", models.DepartureSettingCreateRequest{
		RouteID:       "rt_1",
		DepartureType: "sideways",
		ArrivalTarget: "25:99",
	}, true)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.NotEmpty(t, problem.Errors)
}

func TestRouter_UnknownRoute(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/nope", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
