package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagrigoreva/moderation-be/internal/api/dto"
	"github.com/vagrigoreva/moderation-be/internal/cache"
	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

type fakeStore struct {
	events *[]string

	nextTaskID    int64
	createErr     error
	adExists      bool
	adExistsErr   error
	results       map[int64]*domain.ModerationResult
	getResultErr  error
	failedTasks   map[int64]string
	createdItems  []int64
	getResultHits int
}

func (s *fakeStore) CreatePending(ctx context.Context, itemID int64) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	*s.events = append(*s.events, "create")
	s.createdItems = append(s.createdItems, itemID)
	return s.nextTaskID, nil
}

func (s *fakeStore) GetResult(ctx context.Context, taskID int64) (*domain.ModerationResult, error) {
	s.getResultHits++
	if s.getResultErr != nil {
		return nil, s.getResultErr
	}
	result, ok := s.results[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return result, nil
}

func (s *fakeStore) FailResult(ctx context.Context, taskID int64, errorMessage string) error {
	s.failedTasks[taskID] = errorMessage
	return nil
}

func (s *fakeStore) AdExists(ctx context.Context, itemID int64) (bool, error) {
	return s.adExists, s.adExistsErr
}

type fakePublisher struct {
	events     *[]string
	publishErr error
	published  []domain.TaskMessage
}

func (p *fakePublisher) PublishTask(ctx context.Context, msg domain.TaskMessage) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	*p.events = append(*p.events, "publish")
	p.published = append(p.published, msg)
	return nil
}

type fakeCache struct {
	predictions map[string]domain.Prediction
	setCalls    int
	lookups     map[int64]cache.LookupSnapshot
	setLookups  []cache.LookupSnapshot
}

func (c *fakeCache) Get(ctx context.Context, fingerprint string) (domain.Prediction, bool) {
	pred, ok := c.predictions[fingerprint]
	return pred, ok
}

func (c *fakeCache) Set(ctx context.Context, fingerprint string, pred domain.Prediction) {
	c.setCalls++
	c.predictions[fingerprint] = pred
}

func (c *fakeCache) GetLookup(ctx context.Context, taskID int64) (cache.LookupSnapshot, bool) {
	snap, ok := c.lookups[taskID]
	return snap, ok
}

func (c *fakeCache) SetLookup(ctx context.Context, snap cache.LookupSnapshot) {
	if snap.Status != domain.StatusCompleted && snap.Status != domain.StatusFailed {
		return
	}
	c.setLookups = append(c.setLookups, snap)
}

type fakeModel struct {
	pred  domain.Prediction
	err   error
	calls int
}

func (m *fakeModel) Predict(ad *domain.Ad) (domain.Prediction, error) {
	m.calls++
	if m.err != nil {
		return domain.Prediction{}, m.err
	}
	return m.pred, nil
}

type handlerFixture struct {
	store     *fakeStore
	publisher *fakePublisher
	cache     *fakeCache
	model     *fakeModel
	engine    *gin.Engine
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := []string{}
	f := &handlerFixture{
		store: &fakeStore{
			events:      &events,
			nextTaskID:  42,
			adExists:    true,
			results:     make(map[int64]*domain.ModerationResult),
			failedTasks: make(map[int64]string),
		},
		publisher: &fakePublisher{events: &events},
		cache: &fakeCache{
			predictions: make(map[string]domain.Prediction),
			lookups:     make(map[int64]cache.LookupSnapshot),
		},
		model: &fakeModel{pred: domain.Prediction{IsViolation: false, Probability: 0.12}},
	}

	h := NewModerationHandler(&Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Storage:   f.store,
		Publisher: f.publisher,
		Cache:     f.cache,
		Model:     f.model,
	})

	f.engine = gin.New()
	f.engine.POST("/api/v1/moderation", h.SubmitModeration)
	f.engine.GET("/api/v1/moderation/:task_id", h.GetModerationResult)
	f.engine.POST("/api/v1/ads/predict", h.PredictAd)

	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestSubmitModeration(t *testing.T) {
	t.Run("accepts task and publishes after persisting", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/moderation", dto.SubmitModerationRequest{ItemID: 100})

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp dto.SubmitModerationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(42), resp.TaskID)
		assert.Equal(t, domain.StatusPending, resp.Status)

		// The pending record must exist before the task hits the queue
		assert.Equal(t, []string{"create", "publish"}, *f.store.events)

		require.Len(t, f.publisher.published, 1)
		msg := f.publisher.published[0]
		assert.Equal(t, int64(42), msg.TaskID)
		assert.Equal(t, int64(100), msg.ItemID)
		assert.Equal(t, 0, msg.RetryCount)
	})

	t.Run("returns 404 for unknown item", func(t *testing.T) {
		f := newFixture(t)
		f.store.adExists = false

		rec := f.do(t, http.MethodPost, "/api/v1/moderation", dto.SubmitModerationRequest{ItemID: 999})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, f.store.createdItems)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("marks record failed when publish fails", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.publishErr = fmt.Errorf("broker unavailable")

		rec := f.do(t, http.MethodPost, "/api/v1/moderation", dto.SubmitModerationRequest{ItemID: 100})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, f.store.failedTasks, int64(42))
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/moderation", map[string]any{"item_id": -1})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.store.createdItems)
	})
}

func TestGetModerationResult(t *testing.T) {
	t.Run("returns completed result and caches snapshot", func(t *testing.T) {
		f := newFixture(t)
		f.store.results[7] = &domain.ModerationResult{
			ID:          7,
			ItemID:      100,
			Status:      domain.StatusCompleted,
			IsViolation: sql.NullBool{Bool: false, Valid: true},
			Probability: sql.NullFloat64{Float64: 0.12, Valid: true},
		}

		rec := f.do(t, http.MethodGet, "/api/v1/moderation/7", nil)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.ModerationResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(7), resp.TaskID)
		assert.Equal(t, domain.StatusCompleted, resp.Status)
		require.NotNil(t, resp.IsViolation)
		assert.False(t, *resp.IsViolation)
		require.NotNil(t, resp.Probability)
		assert.InDelta(t, 0.12, *resp.Probability, 1e-9)

		require.Len(t, f.cache.setLookups, 1)
		assert.Equal(t, int64(7), f.cache.setLookups[0].TaskID)
	})

	t.Run("returns pending result without verdict fields", func(t *testing.T) {
		f := newFixture(t)
		f.store.results[8] = &domain.ModerationResult{
			ID:     8,
			ItemID: 100,
			Status: domain.StatusPending,
		}

		rec := f.do(t, http.MethodGet, "/api/v1/moderation/8", nil)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.ModerationResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.StatusPending, resp.Status)
		assert.Nil(t, resp.IsViolation)
		assert.Nil(t, resp.Probability)

		// Non-terminal snapshots must not be cached
		assert.Empty(t, f.cache.setLookups)
	})

	t.Run("serves cached snapshot without hitting the store", func(t *testing.T) {
		f := newFixture(t)
		violation := true
		f.cache.lookups[9] = cache.LookupSnapshot{
			TaskID:      9,
			Status:      domain.StatusCompleted,
			IsViolation: &violation,
		}

		rec := f.do(t, http.MethodGet, "/api/v1/moderation/9", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, f.store.getResultHits)
	})

	t.Run("returns 404 for unknown task", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/moderation/12345", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects non-numeric task id", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/moderation/abc", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPredictAd(t *testing.T) {
	validRequest := dto.PredictAdRequest{
		SellerID:         1,
		IsVerifiedSeller: true,
		ItemID:           100,
		Name:             "Vintage bike",
		Description:      "Well maintained road bike",
		Category:         10,
		ImagesQty:        3,
	}

	t.Run("invokes model on cache miss and caches verdict", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/ads/predict", validRequest)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp dto.PredictResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.IsViolation)
		assert.InDelta(t, 0.12, resp.Probability, 1e-9)

		assert.Equal(t, 1, f.model.calls)
		assert.Equal(t, 1, f.cache.setCalls)
	})

	t.Run("skips model on cache hit", func(t *testing.T) {
		f := newFixture(t)

		first := f.do(t, http.MethodPost, "/api/v1/ads/predict", validRequest)
		require.Equal(t, http.StatusOK, first.Code)

		second := f.do(t, http.MethodPost, "/api/v1/ads/predict", validRequest)
		require.Equal(t, http.StatusOK, second.Code)

		assert.Equal(t, 1, f.model.calls)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
	})

	t.Run("returns 503 when the model is unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.model.err = domain.ErrModelUnavailable

		rec := f.do(t, http.MethodPost, "/api/v1/ads/predict", validRequest)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("rejects payload without a name", func(t *testing.T) {
		f := newFixture(t)

		invalid := validRequest
		invalid.Name = ""
		rec := f.do(t, http.MethodPost, "/api/v1/ads/predict", invalid)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, f.model.calls)
	})
}
