// Package simulator drives a running server with simulated students who
// open conversations, exchange messages and drop in and out of real-time
// connections.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"campus-lostfound/internal/middleware"
	"campus-lostfound/internal/models"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type SimConfig struct {
	NumUsers         int
	SimulationTime   time.Duration
	MessageFrequency float64 // messages per user per minute
	ReadFrequency    float64 // conversation reads per user per minute
	RecallPercentage float64 // share of sent messages recalled right away
	RejectPercentage float64 // share of messages carrying a blocked term
	DisconnectRate   float64 // per tick, for connected users
	ReconnectRate    float64 // per tick, for disconnected users
	ZipfS            float64
	TickInterval     time.Duration
	ServerURL        string
	JWTSecret        string
}

// DefaultSimConfig returns a small, steady workload.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumUsers:         20,
		SimulationTime:   2 * time.Minute,
		MessageFrequency: 6,
		ReadFrequency:    3,
		RecallPercentage: 0.05,
		RejectPercentage: 0.02,
		DisconnectRate:   0.02,
		ReconnectRate:    0.1,
		ZipfS:            1.07,
		TickInterval:     time.Second,
		ServerURL:        "http://localhost:8080",
	}
}

type SimulationStats struct {
	mu               sync.RWMutex
	StartTime        time.Time
	TotalRequests    int64
	SuccessRequests  int64
	FailedRequests   int64
	AverageLatency   time.Duration
	TotalMessages    int
	RejectedMessages int
	Recalls          int
	Reads            int
	EventsReceived   int
	totalLatency     time.Duration
}

// SimulatedUser is one student with a token and, while connected, a live
// websocket.
type SimulatedUser struct {
	ID            uuid.UUID
	Username      string
	Token         string
	Conversations []uuid.UUID

	mu          sync.Mutex
	conn        *ws.Conn
	IsConnected bool
}

type EnhancedSimulator struct {
	config  SimConfig
	stats   *SimulationStats
	users   []*SimulatedUser
	client  *http.Client
	gateway *middleware.JWTGateway
	logger  *zap.Logger
	rng     *rand.Rand
	rngMu   sync.Mutex
	mu      sync.RWMutex
}

func NewEnhancedSimulator(config SimConfig, logger *zap.Logger) *EnhancedSimulator {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &EnhancedSimulator{
		config: config,
		stats: &SimulationStats{
			StartTime: time.Now(),
		},
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		gateway: middleware.NewJWTGateway(config.JWTSecret),
		logger:  logger.Named("simulator"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *EnhancedSimulator) Run(ctx context.Context) error {
	s.logger.Info("starting simulation",
		zap.String("server", s.config.ServerURL),
		zap.Int("users", s.config.NumUsers),
		zap.Duration("duration", s.config.SimulationTime))

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer s.disconnectAll()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

func (s *EnhancedSimulator) initialize(ctx context.Context) error {
	// Phase 1: register users
	s.logger.Info("phase 1: registering users", zap.Int("count", s.config.NumUsers))
	for i := 0; i < s.config.NumUsers; i++ {
		user := &SimulatedUser{
			ID:       uuid.New(),
			Username: fmt.Sprintf("student_%d", i),
		}
		token, err := s.gateway.GenerateToken(user.ID)
		if err != nil {
			return err
		}
		user.Token = token
		if _, err := s.makeRequest(ctx, user, http.MethodPut, "/api/users/me", map[string]string{"username": user.Username}); err != nil {
			return fmt.Errorf("registering %s: %w", user.Username, err)
		}
		s.users = append(s.users, user)
	}

	// Phase 2: open conversations. A few users (the lost-and-found desk,
	// frequent finders) are contacted far more often than the rest.
	s.logger.Info("phase 2: opening conversations")
	if len(s.users) < 2 {
		return nil
	}
	seen := make(map[uuid.UUID]bool)
	for i, user := range s.users {
		contacts := 1 + s.getZipfNumber(3)
		for c := 0; c < contacts; c++ {
			j := s.getZipfNumber(len(s.users) - 1)
			if j == i {
				continue
			}
			conv, err := s.openConversation(ctx, user, s.users[j].ID)
			if err != nil {
				return err
			}
			if seen[conv] {
				continue
			}
			seen[conv] = true
			user.Conversations = append(user.Conversations, conv)
			s.users[j].Conversations = append(s.users[j].Conversations, conv)
		}
	}

	// Phase 3: everyone starts online
	for _, user := range s.users {
		if err := s.connect(ctx, user); err != nil {
			s.logger.Warn("initial connect failed", zap.String("user", user.Username), zap.Error(err))
		}
	}
	return nil
}

func (s *EnhancedSimulator) openConversation(ctx context.Context, user *SimulatedUser, otherID uuid.UUID) (uuid.UUID, error) {
	body, err := s.makeRequest(ctx, user, http.MethodPost, "/api/conversations/"+otherID.String(), nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("opening conversation: %w", err)
	}
	var view models.ConversationView
	if err := json.Unmarshal(body, &view); err != nil {
		return uuid.Nil, err
	}
	return view.ID, nil
}

// getZipfNumber returns a value in [0, max] skewed towards 0.
func (s *EnhancedSimulator) getZipfNumber(max int) int {
	if max <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(max))
	return int(zipf.Uint64())
}

func (s *EnhancedSimulator) chance(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

func (s *EnhancedSimulator) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// requestError is a response with an error status.
type requestError struct {
	Status int
	Code   string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("request failed with status %d (%s)", e.Status, e.Code)
}

func (s *EnhancedSimulator) makeRequest(ctx context.Context, user *SimulatedUser, method, endpoint string, data interface{}) ([]byte, error) {
	var body []byte
	var err error

	if data != nil {
		body, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.ServerURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Token)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		var apiErr struct {
			Code string `json:"code"`
		}
		json.Unmarshal(respBody, &apiErr)
		err = &requestError{Status: resp.StatusCode, Code: apiErr.Code}
	}
	s.recordRequestMetrics(start, err)
	return respBody, err
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	latency := time.Since(start)

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}
	s.stats.totalLatency += latency
	s.stats.AverageLatency = s.stats.totalLatency / time.Duration(s.stats.TotalRequests)
}

// connect opens user's websocket and counts the events it receives until
// the connection ends.
func (s *EnhancedSimulator) connect(ctx context.Context, user *SimulatedUser) error {
	url := "ws" + strings.TrimPrefix(s.config.ServerURL, "http") + "/ws?token=" + user.Token
	conn, resp, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	user.mu.Lock()
	user.conn = conn
	user.IsConnected = true
	user.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			s.stats.mu.Lock()
			s.stats.EventsReceived++
			s.stats.mu.Unlock()
		}
	}()
	return nil
}

func (s *EnhancedSimulator) disconnect(user *SimulatedUser) {
	user.mu.Lock()
	defer user.mu.Unlock()
	if user.conn != nil {
		user.conn.Close()
		user.conn = nil
	}
	user.IsConnected = false
}

func (s *EnhancedSimulator) disconnectAll() {
	for _, user := range s.users {
		s.disconnect(user)
	}
}

func (s *EnhancedSimulator) connected(user *SimulatedUser) bool {
	user.mu.Lock()
	defer user.mu.Unlock()
	return user.IsConnected
}

func (s *EnhancedSimulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			users := s.users
			s.mu.RUnlock()
			for _, user := range users {
				if s.connected(user) {
					if s.chance(s.config.DisconnectRate) {
						s.disconnect(user)
					}
				} else if s.chance(s.config.ReconnectRate) {
					if err := s.connect(ctx, user); err != nil && ctx.Err() == nil {
						s.logger.Debug("reconnect failed", zap.String("user", user.Username), zap.Error(err))
					}
				}
			}
		}
	}
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.logger.Info("simulation metrics",
				zap.Duration("elapsed", time.Since(s.stats.StartTime).Round(time.Second)),
				zap.Int64("requests", m.TotalRequests),
				zap.Int64("failed", m.ErrorCount),
				zap.Duration("avgLatency", m.AverageLatency),
				zap.Int("activeUsers", m.ActiveUsers),
				zap.Int("messages", m.TotalMessages),
				zap.Int("rejected", m.RejectedMessages),
				zap.Int("recalls", m.Recalls),
				zap.Int("events", m.EventsReceived))
		}
	}
}

// SimulationMetrics is a snapshot of the run so far.
type SimulationMetrics struct {
	TotalUsers       int
	ActiveUsers      int
	TotalRequests    int64
	ErrorCount       int64
	AverageLatency   time.Duration
	TotalMessages    int
	RejectedMessages int
	Recalls          int
	Reads            int
	EventsReceived   int
}

func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	users := s.users
	s.mu.RUnlock()

	active := 0
	for _, user := range users {
		if s.connected(user) {
			active++
		}
	}

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return SimulationMetrics{
		TotalUsers:       len(users),
		ActiveUsers:      active,
		TotalRequests:    s.stats.TotalRequests,
		ErrorCount:       s.stats.FailedRequests,
		AverageLatency:   s.stats.AverageLatency,
		TotalMessages:    s.stats.TotalMessages,
		RejectedMessages: s.stats.RejectedMessages,
		Recalls:          s.stats.Recalls,
		Reads:            s.stats.Reads,
		EventsReceived:   s.stats.EventsReceived,
	}
}
