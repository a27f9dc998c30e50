package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

// mockTokenRepository is an in-memory TokenRepository with optional overrides.
type mockTokenRepository struct {
	mu     sync.Mutex
	tokens []*model.Token

	findLatestUnexpiredFn func(ctx context.Context, now time.Time) (*model.Token, error)
	insertFn              func(ctx context.Context, token *model.Token) error
	purgeOlderThanFn      func(ctx context.Context, cutoff time.Time) (int64, error)

	invalidated []uuid.UUID
	lastUsed    int
}

func (m *mockTokenRepository) FindLatestUnexpired(ctx context.Context, now time.Time) (*model.Token, error) {
	if m.findLatestUnexpiredFn != nil {
		return m.findLatestUnexpiredFn(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tokens) - 1; i >= 0; i-- {
		if m.tokens[i].ExpiresAt.After(now) {
			c := *m.tokens[i]
			return &c, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (m *mockTokenRepository) Insert(ctx context.Context, token *model.Token) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *token
	m.tokens = append(m.tokens, &c)
	return nil
}

func (m *mockTokenRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed++
	for _, t := range m.tokens {
		if t.ID == id {
			t.MarkUsed(at)
			return nil
		}
	}
	return repository.ErrTokenNotFound
}

func (m *mockTokenRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, id)
	for _, t := range m.tokens {
		if t.ID == id {
			t.Invalidate()
			return nil
		}
	}
	return repository.ErrTokenNotFound
}

func (m *mockTokenRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.purgeOlderThanFn != nil {
		return m.purgeOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

func (m *mockTokenRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// mockTokenIssuer counts upstream OAuth calls.
type mockTokenIssuer struct {
	requestAppTokenFn func(ctx context.Context) (*repository.AppToken, error)
	validateTokenFn   func(ctx context.Context, accessToken string) error

	requestCount  atomic.Int32
	validateCount atomic.Int32
}

func (m *mockTokenIssuer) RequestAppToken(ctx context.Context) (*repository.AppToken, error) {
	n := m.requestCount.Add(1)
	if m.requestAppTokenFn != nil {
		return m.requestAppTokenFn(ctx)
	}
	return &repository.AppToken{
		AccessToken: "token-" + string(rune('a'+n-1)) + "-abcdef",
		ExpiresIn:   4 * time.Hour,
		TokenType:   model.TokenTypeBearer,
	}, nil
}

func (m *mockTokenIssuer) ValidateToken(ctx context.Context, accessToken string) error {
	m.validateCount.Add(1)
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, accessToken)
	}
	return nil
}

// mockGameCatalog provides a configurable mock for GameCatalog.
type mockGameCatalog struct {
	searchCategoriesFn func(ctx context.Context, query string, first int) ([]model.Game, error)
	calls              atomic.Int32
}

func (m *mockGameCatalog) SearchCategories(ctx context.Context, query string, first int) ([]model.Game, error) {
	m.calls.Add(1)
	if m.searchCategoriesFn != nil {
		return m.searchCategoriesFn(ctx, query, first)
	}
	return nil, nil
}

// mockVideoCatalog provides a configurable mock for VideoCatalog.
type mockVideoCatalog struct {
	getStreamsFn  func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error)
	getArchivesFn func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error)

	mu            sync.Mutex
	streamQueries []repository.VideoQuery
	archiveQuery  []repository.VideoQuery
}

func (m *mockVideoCatalog) GetStreams(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
	m.mu.Lock()
	m.streamQueries = append(m.streamQueries, q)
	m.mu.Unlock()
	if m.getStreamsFn != nil {
		return m.getStreamsFn(ctx, q)
	}
	return &repository.VideoPage{}, nil
}

func (m *mockVideoCatalog) GetArchives(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
	m.mu.Lock()
	m.archiveQuery = append(m.archiveQuery, q)
	m.mu.Unlock()
	if m.getArchivesFn != nil {
		return m.getArchivesFn(ctx, q)
	}
	return &repository.VideoPage{}, nil
}

// mockGameRecorder records every game it is handed.
type mockGameRecorder struct {
	mu    sync.Mutex
	games []model.Game
	err   error
}

func (m *mockGameRecorder) RecordGame(ctx context.Context, game *model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games = append(m.games, *game)
	return m.err
}

// mockSearchCache is a map-backed SearchCache with optional overrides.
// Entries seeded straight into data count as fetched with maxPageSize.
type mockSearchCache struct {
	mu     sync.Mutex
	data   map[string]*model.SearchResult
	limits map[string]int

	getFn  func(ctx context.Context, gameName string, limit int) (*model.SearchResult, error)
	saveFn func(ctx context.Context, gameName string, limit int, result *model.SearchResult) error

	saves atomic.Int32
}

func newMockSearchCache() *mockSearchCache {
	return &mockSearchCache{
		data:   make(map[string]*model.SearchResult),
		limits: make(map[string]int),
	}
}

func (m *mockSearchCache) Get(ctx context.Context, gameName string, limit int) (*model.SearchResult, error) {
	if m.getFn != nil {
		return m.getFn(ctx, gameName, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.NormalizeGameName(gameName)
	r, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	fetchLimit, ok := m.limits[key]
	if !ok {
		fetchLimit = maxPageSize
	}
	if !r.Covers(fetchLimit, limit) {
		return nil, nil
	}
	return r.Truncate(limit), nil
}

func (m *mockSearchCache) Save(ctx context.Context, gameName string, limit int, result *model.SearchResult) error {
	m.saves.Add(1)
	if m.saveFn != nil {
		return m.saveFn(ctx, gameName, limit, result)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.NormalizeGameName(gameName)
	m.data[key] = result
	m.limits[key] = limit
	return nil
}

func (m *mockSearchCache) Delete(ctx context.Context, gameName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, model.NormalizeGameName(gameName))
	delete(m.limits, model.NormalizeGameName(gameName))
	return nil
}

func (m *mockSearchCache) Clear(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.data)
	m.data = make(map[string]*model.SearchResult)
	m.limits = make(map[string]int)
	return n, nil
}

// mockGameRepository provides a configurable mock for GameRepository.
type mockGameRepository struct {
	upsertFn  func(ctx context.Context, game *model.Game) error
	getByIDFn func(ctx context.Context, id string) (*model.Game, error)
	upserted  []model.Game
}

func (m *mockGameRepository) Upsert(ctx context.Context, game *model.Game) error {
	m.upserted = append(m.upserted, *game)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, game)
	}
	return nil
}

func (m *mockGameRepository) GetByID(ctx context.Context, id string) (*model.Game, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrGameNotFound
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishFn func(ctx context.Context, task repository.GameRecordTask) error
	published []repository.GameRecordTask
}

func (m *mockMessageQueue) PublishGameRecord(ctx context.Context, task repository.GameRecordTask) error {
	m.published = append(m.published, task)
	if m.publishFn != nil {
		return m.publishFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeGameRecords(ctx context.Context, handler func(task repository.GameRecordTask) error) error {
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

func liveVideo(id string, views int) model.Video {
	return model.Video{ID: id, Type: model.VideoTypeLive, ViewCount: model.IntPtr(views), Duration: model.LiveDuration}
}

func archiveVideo(id string, views int) model.Video {
	return model.Video{ID: id, Type: model.VideoTypeArchive, ViewCount: model.IntPtr(views), Duration: "1h2m3s"}
}
