package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fyts-validation/internal/metrics"
	"fyts-validation/internal/models"
	"fyts-validation/internal/tracking"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

const (
	SessionStatusTracking = "tracking"
	sessionKeyPrefix      = "session:"
)

// Session 一次进行中的追踪，Filter 为过滤器的可序列化状态
type Session struct {
	ID        string         `json:"id"`
	Wallet    string         `json:"wallet"`
	StartedAt time.Time      `json:"startedAt"`
	Status    string         `json:"status"`
	LastError string         `json:"lastError,omitempty"`
	Filter    tracking.State `json:"filter"`
}

// Miles 当前已验证的里程
func (s *Session) Miles() float64 {
	return s.Filter.TotalMeters / tracking.MetersPerMile
}

type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	// Get 会话不存在或已过期时返回 errors.ErrSessionMissing
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session Session
	savedAt time.Time
}

// MemorySessionStore 进程内存储，和 redis 一样每次写入刷新过期时间；ttl <= 0 不过期
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	m.sessions[s.ID] = memoryEntry{session: *s, savedAt: now}
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, errors.ErrSessionMissing
	}
	if m.expired(e, m.now()) {
		m.evict(id)
		return nil, errors.ErrSessionMissing
	}
	s := e.session
	return &s, nil
}

func (m *MemorySessionStore) expired(e memoryEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.savedAt) > m.ttl
}

// sweep 清理超时未更新的会话，调用方持有锁
func (m *MemorySessionStore) sweep(now time.Time) {
	for id, e := range m.sessions {
		if m.expired(e, now) {
			m.evict(id)
		}
	}
}

func (m *MemorySessionStore) evict(id string) {
	delete(m.sessions, id)
	metrics.SessionsActive.Dec()
	logger.WithField("session_id", id).Info("追踪会话超时，已清理")
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// RedisSessionStore 以 JSON 存储在 session:<id>，每次写入刷新 TTL
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKeyPrefix+s.ID, data, r.ttl).Err()
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionMissing
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKeyPrefix+id).Err()
}

// SampleResult 一批样本处理后的结果
type SampleResult struct {
	Decisions   []tracking.Decision `json:"decisions"`
	Miles       float64             `json:"miles"`
	TotalMeters float64             `json:"totalMeters"`
	GPSUpdates  int                 `json:"gpsUpdates"`
	Movements   int                 `json:"movements"`
}

// SessionManager 把过滤器暴露为会话，所有会话操作串行执行
type SessionManager struct {
	mu     sync.Mutex
	store  SessionStore
	runs   *RunService
	params tracking.Params
	now    func() time.Time
}

func NewSessionManager(store SessionStore, runs *RunService, params tracking.Params) *SessionManager {
	return &SessionManager{
		store:  store,
		runs:   runs,
		params: params,
		now:    time.Now,
	}
}

// Start 新建会话，过滤器从零开始
func (m *SessionManager) Start(ctx context.Context, wallet string) (*Session, error) {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:        uuid.NewString(),
		Wallet:    normalized,
		StartedAt: m.now(),
		Status:    SessionStatusTracking,
		Filter:    tracking.NewFilter(m.params).State(),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, errors.New(errors.ErrRunStore, "保存追踪会话失败", err)
	}
	metrics.SessionsActive.Inc()

	logger.WithFields(map[string]interface{}{
		"session_id": s.ID,
		"wallet":     s.Wallet,
	}).Info("追踪会话已开始")
	return s, nil
}

// Get 查询会话状态，包括最近一次定位错误
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// AddSamples 按到达顺序逐个处理样本
func (m *SessionManager) AddSamples(ctx context.Context, id string, samples []tracking.Sample) (*SampleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	filter := tracking.RestoreFilter(m.params, s.Filter)
	decisions := make([]tracking.Decision, 0, len(samples))
	for _, sample := range samples {
		d := filter.Process(sample)
		metrics.SamplesTotal.WithLabelValues(string(d.Reason)).Inc()
		decisions = append(decisions, d)
	}

	s.Filter = filter.State()
	s.Status = SessionStatusTracking
	if err := m.store.Save(ctx, s); err != nil {
		return nil, errors.New(errors.ErrRunStore, "保存追踪会话失败", err)
	}

	return &SampleResult{
		Decisions:   decisions,
		Miles:       filter.Miles(),
		TotalMeters: filter.TotalMeters(),
		GPSUpdates:  filter.SampleCount(),
		Movements:   filter.ValidatedMovements(),
	}, nil
}

// ReportError 记录定位错误（权限被拒、超时等），会话继续，里程不变
func (m *SessionManager) ReportError(ctx context.Context, id, message string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown location error"
	}
	s.Status = "error"
	s.LastError = message
	if err := m.store.Save(ctx, s); err != nil {
		return nil, errors.New(errors.ErrRunStore, "保存追踪会话失败", err)
	}

	logger.WithFields(map[string]interface{}{
		"session_id": id,
		"message":    message,
	}).Warn("定位错误")
	return s, nil
}

// Stop 结束会话并提交待审核记录
func (m *SessionManager) Stop(ctx context.Context, id string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	duration := int64(m.now().Sub(s.StartedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	run, err := m.runs.Submit(ctx, RunSubmission{
		Wallet:          s.Wallet,
		Miles:           s.Miles(),
		DurationSeconds: duration,
		GPSUpdates:      s.Filter.SampleCount,
		Movements:       s.Filter.ValidatedMovements,
	})
	if err != nil {
		return nil, err
	}

	if err := m.store.Delete(ctx, id); err != nil {
		logger.WithFields(map[string]interface{}{
			"session_id": id,
			"error":      err,
		}).Warn("删除追踪会话失败")
	}
	metrics.SessionsActive.Dec()

	logger.WithFields(map[string]interface{}{
		"session_id": id,
		"run_id":     run.ID,
	}).Info("追踪会话已结束")
	return run, nil
}
