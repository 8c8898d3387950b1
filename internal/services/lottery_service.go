package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/logger"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// ErrResetNotConfirmed is returned by Reset when the caller did not confirm.
var ErrResetNotConfirmed = errors.New("reset must be explicitly confirmed")

// Broadcaster receives the celebration event after a winning draw has
// been persisted. Implementations must not block.
type Broadcaster interface {
	BroadcastCelebration(tenantID string, tier models.PrizeTier, record models.WinnerRecord)
}

// LotterySession serializes draws for one tenant.
type LotterySession struct {
	mu           sync.Mutex
	LastActivity time.Time
}

// State is everything a caller needs to render a tenant's lottery.
type State struct {
	Winners       []models.WinnerRecord `json:"winners"`
	Probabilities models.Probabilities  `json:"probabilities"`
	Inputs        map[int]string        `json:"inputs"` // probabilities formatted for editing
}

// LotteryService loads and saves lottery state, runs draws through the
// engine and emits celebrations. It is the caller the engine is written for.
type LotteryService struct {
	mu       sync.RWMutex
	sessions map[string]*LotterySession // Key: tenantID

	engine      *DrawEngine
	store       store.Store
	defaults    models.Probabilities
	broadcaster Broadcaster
	timeLayout  string
	now         func() time.Time
}

// Option customizes a LotteryService.
type Option func(*LotteryService)

// WithBroadcaster sets the celebration receiver.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *LotteryService) { s.broadcaster = b }
}

// WithDefaultProbabilities replaces the built-in defaults used when a
// tenant has never saved probabilities.
func WithDefaultProbabilities(p models.Probabilities) Option {
	return func(s *LotteryService) { s.defaults = p.Clone() }
}

// WithTimeLayout sets the layout used for WinnerRecord.Time.
func WithTimeLayout(layout string) Option {
	return func(s *LotteryService) { s.timeLayout = layout }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LotteryService) { s.now = now }
}

// NewLotteryService creates and initializes a new LotteryService.
func NewLotteryService(engine *DrawEngine, st store.Store, opts ...Option) *LotteryService {
	s := &LotteryService{
		sessions:   make(map[string]*LotterySession),
		engine:     engine,
		store:      st,
		defaults:   models.DefaultProbabilities(),
		timeLayout: "2006/1/2 15:04:05",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the draw engine, mostly for the prize table.
func (s *LotteryService) Engine() *DrawEngine {
	return s.engine
}

// getSession returns a session for a tenant, creating one if it doesn't exist.
func (s *LotteryService) getSession(tenantID string) *LotterySession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[tenantID]
	if !exists {
		session = &LotterySession{}
		s.sessions[tenantID] = session
	}
	session.LastActivity = s.now()
	return session
}

// LoadState reads the tenant's winners and probabilities. Missing records
// fall back to an empty winner list and the default probabilities.
func (s *LotteryService) LoadState(ctx context.Context, tenantID string) (State, error) {
	winners, err := s.loadWinners(ctx, tenantID)
	if err != nil {
		return State{}, err
	}
	probs, err := s.loadProbabilities(ctx, tenantID)
	if err != nil {
		return State{}, err
	}
	return State{
		Winners:       winners,
		Probabilities: probs,
		Inputs:        FormatForEdit(s.engine.Tiers(), probs),
	}, nil
}

// FormatForEdit renders probabilities for the settings form.
func (s *LotteryService) FormatForEdit(probs models.Probabilities) map[int]string {
	return FormatForEdit(s.engine.Tiers(), probs)
}

// ParseEdited turns the settings form back into a probability map.
func (s *LotteryService) ParseEdited(inputs map[int]string) models.Probabilities {
	return ParseEdited(s.engine.Tiers(), inputs)
}

// SaveProbabilities replaces the tenant's probabilities. Values are stored
// as given; suspicious configurations are logged and returned as warnings.
func (s *LotteryService) SaveProbabilities(ctx context.Context, tenantID string, probs models.Probabilities) ([]string, error) {
	session := s.getSession(tenantID)
	session.mu.Lock()
	defer session.mu.Unlock()

	warnings := s.engine.CheckProbabilities(probs)
	for _, w := range warnings {
		logger.Warningf("tenant %s: %s", tenantID, w)
	}

	data, err := json.Marshal(probs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probabilities: %w", err)
	}
	if err := s.store.Set(ctx, store.ProbabilitiesKey(tenantID), data); err != nil {
		return nil, fmt.Errorf("failed to save probabilities: %w", err)
	}
	return warnings, nil
}

// Draw runs one draw for the tenant. On a win the new WinnerRecord is
// appended and persisted before the celebration is broadcast.
func (s *LotteryService) Draw(ctx context.Context, tenantID string) (models.DrawResult, *models.WinnerRecord, error) {
	session := s.getSession(tenantID)
	session.mu.Lock()
	defer session.mu.Unlock()

	state, err := s.LoadState(ctx, tenantID)
	if err != nil {
		return models.DrawResult{}, nil, err
	}

	result := s.engine.Draw(state.Probabilities, state.Winners)
	if !result.Win() {
		return result, nil, nil
	}

	record := models.WinnerRecord{
		Level: result.Tier.Level,
		Time:  s.now().Format(s.timeLayout),
	}
	if err := s.saveWinners(ctx, tenantID, append(state.Winners, record)); err != nil {
		return models.DrawResult{}, nil, err
	}
	logger.Infof("tenant %s won level %d (%s)", tenantID, record.Level, result.Tier.Name)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastCelebration(tenantID, *result.Tier, record)
	}
	return result, &record, nil
}

// Reset clears the tenant's winner list. Probabilities are kept.
func (s *LotteryService) Reset(ctx context.Context, tenantID string, confirmed bool) error {
	if !confirmed {
		return ErrResetNotConfirmed
	}
	session := s.getSession(tenantID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.saveWinners(ctx, tenantID, []models.WinnerRecord{}); err != nil {
		return err
	}
	logger.Infof("Cleared winners for tenant: %s", tenantID)
	return nil
}

// Status computes the prize pool summary shown in the status bar.
func (s *LotteryService) Status(ctx context.Context, tenantID string) (models.LotteryStatus, error) {
	state, err := s.LoadState(ctx, tenantID)
	if err != nil {
		return models.LotteryStatus{}, err
	}
	return s.StatusOf(state), nil
}

// StatusOf computes the summary for an already loaded state.
func (s *LotteryService) StatusOf(state State) models.LotteryStatus {
	tiers := s.engine.Tiers()
	status := models.LotteryStatus{
		Tiers:            make([]models.TierStatus, 0, len(tiers)),
		TotalCount:       s.engine.TotalCount(),
		TotalRemaining:   s.engine.TotalRemaining(state.Winners),
		Participants:     len(state.Winners),
		TotalProbability: s.engine.TotalProbability(state.Probabilities),
		Warnings:         s.engine.CheckProbabilities(state.Probabilities),
	}
	for _, t := range tiers {
		status.Tiers = append(status.Tiers, models.TierStatus{
			PrizeTier:   t,
			Remaining:   s.engine.Remaining(t.Level, state.Winners),
			Probability: state.Probabilities[t.Level],
		})
	}
	return status
}

// CleanUpInactiveSessions forgets tenants idle for longer than maxIdle.
// Persisted state is untouched. It returns the number of evicted sessions.
func (s *LotteryService) CleanUpInactiveSessions(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for tenantID, session := range s.sessions {
		if s.now().Sub(session.LastActivity) > maxIdle {
			delete(s.sessions, tenantID)
			evicted++
		}
	}
	return evicted
}

func (s *LotteryService) loadWinners(ctx context.Context, tenantID string) ([]models.WinnerRecord, error) {
	data, err := s.store.Get(ctx, store.WinnersKey(tenantID))
	if errors.Is(err, store.ErrNotFound) {
		return []models.WinnerRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load winners: %w", err)
	}

	var winners []models.WinnerRecord
	if err := json.Unmarshal(data, &winners); err != nil {
		logger.Errorf("tenant %s: discarding unreadable winners record: %v", tenantID, err)
		return []models.WinnerRecord{}, nil
	}
	if winners == nil {
		winners = []models.WinnerRecord{}
	}
	return winners, nil
}

func (s *LotteryService) saveWinners(ctx context.Context, tenantID string, winners []models.WinnerRecord) error {
	data, err := json.Marshal(winners)
	if err != nil {
		return fmt.Errorf("failed to marshal winners: %w", err)
	}
	if err := s.store.Set(ctx, store.WinnersKey(tenantID), data); err != nil {
		return fmt.Errorf("failed to save winners: %w", err)
	}
	return nil
}

func (s *LotteryService) loadProbabilities(ctx context.Context, tenantID string) (models.Probabilities, error) {
	data, err := s.store.Get(ctx, store.ProbabilitiesKey(tenantID))
	if errors.Is(err, store.ErrNotFound) {
		return s.defaults.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load probabilities: %w", err)
	}

	var probs models.Probabilities
	if err := json.Unmarshal(data, &probs); err != nil || probs == nil {
		logger.Errorf("tenant %s: discarding unreadable probabilities record: %v", tenantID, err)
		return s.defaults.Clone(), nil
	}
	return probs, nil
}
