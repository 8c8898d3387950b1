package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.WinnerRecord
	tiers  []models.PrizeTier
}

func (b *recordingBroadcaster) BroadcastCelebration(_ string, tier models.PrizeTier, record models.WinnerRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tiers = append(b.tiers, tier)
	b.events = append(b.events, record)
}

var fixedNow = time.Date(2024, 1, 2, 15, 4, 5, 0, time.Local)

func newTestService(rng RandomSource, st store.Store, b Broadcaster) *LotteryService {
	engine := NewDrawEngine(models.DefaultPrizeTiers(), rng)
	return NewLotteryService(engine, st,
		WithBroadcaster(b),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestLotteryService_Draw(t *testing.T) {
	const testTenantID = "test-tenant"
	ctx := context.Background()
	st := store.NewMemoryStore()
	b := &recordingBroadcaster{}
	service := newTestService(NewFixedRNG(0.005), st, b)

	t.Run("Test loading defaults", func(t *testing.T) {
		state, err := service.LoadState(ctx, testTenantID)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if len(state.Winners) != 0 {
			t.Errorf("Expected no winners, but got %d", len(state.Winners))
		}
		if state.Probabilities[3] != 0.10 {
			t.Errorf("Expected default probabilities, but got %v", state.Probabilities)
		}
		if state.Inputs[2] != "2%" {
			t.Errorf("Expected level 2 input 2%%, but got %q", state.Inputs[2])
		}
	})

	t.Run("Test successful draw", func(t *testing.T) {
		result, record, err := service.Draw(ctx, testTenantID)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !result.Win() || result.Tier.Level != 1 {
			t.Fatalf("Expected a level 1 win, but got %+v", result)
		}
		if record == nil || record.Time != "2024/1/2 15:04:05" {
			t.Fatalf("Expected a timestamped record, but got %+v", record)
		}

		data, err := st.Get(ctx, store.WinnersKey(testTenantID))
		if err != nil {
			t.Fatalf("Expected winners to be persisted, but got %v", err)
		}
		var winners []models.WinnerRecord
		if err := json.Unmarshal(data, &winners); err != nil {
			t.Fatal(err)
		}
		if len(winners) != 1 || winners[0].Level != 1 {
			t.Errorf("Expected 1 persisted level 1 winner, but got %+v", winners)
		}
		if len(b.events) != 1 || b.tiers[0].Name != "苹果手机" {
			t.Errorf("Expected one celebration, but got %+v", b.events)
		}
	})

	t.Run("Test exhausted tier falls through", func(t *testing.T) {
		if _, _, err := service.Draw(ctx, testTenantID); err != nil {
			t.Fatal(err)
		}
		result, _, err := service.Draw(ctx, testTenantID)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Win() || result.Tier.Level != 2 {
			t.Errorf("Expected level 2 after level 1 sold out, but got %+v", result)
		}

		status, err := service.Status(ctx, testTenantID)
		if err != nil {
			t.Fatal(err)
		}
		if status.Participants != 3 || status.TotalRemaining != 14 || status.TotalCount != 17 {
			t.Errorf("Unexpected status %+v", status)
		}
		if status.Tiers[0].Remaining != 0 || status.Tiers[1].Remaining != 4 {
			t.Errorf("Unexpected tier status %+v", status.Tiers)
		}
	})

	t.Run("Test reset requires confirmation", func(t *testing.T) {
		err := service.Reset(ctx, testTenantID, false)
		if !errors.Is(err, ErrResetNotConfirmed) {
			t.Fatalf("Expected ErrResetNotConfirmed, but got %v", err)
		}
		if err := service.Reset(ctx, testTenantID, true); err != nil {
			t.Fatal(err)
		}
		state, _ := service.LoadState(ctx, testTenantID)
		if len(state.Winners) != 0 {
			t.Errorf("Expected winners to be cleared, but got %d", len(state.Winners))
		}
	})

	t.Run("Test tenants are isolated", func(t *testing.T) {
		state, err := service.LoadState(ctx, "other-tenant")
		if err != nil {
			t.Fatal(err)
		}
		if len(state.Winners) != 0 {
			t.Errorf("Expected a fresh tenant, but got %+v", state.Winners)
		}
	})
}

func TestLotteryService_Misses(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	b := &recordingBroadcaster{}
	service := newTestService(NewFixedRNG(0.5), st, b)

	result, record, err := service.Draw(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Reason != models.ReasonRandomMiss || record != nil {
		t.Errorf("Expected a random miss, but got %+v %+v", result, record)
	}
	if _, err := st.Get(ctx, store.WinnersKey("t1")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("A miss must not write winners, got %v", err)
	}
	if len(b.events) != 0 {
		t.Errorf("A miss must not celebrate")
	}
}

func TestLotteryService_NoPrizesLeft(t *testing.T) {
	ctx := context.Background()
	engine := NewDrawEngine([]models.PrizeTier{{Level: 1, Name: "Only", Count: 1}}, NewFixedRNG(0))
	service := NewLotteryService(engine, store.NewMemoryStore())

	if _, err := service.SaveProbabilities(ctx, "t", models.Probabilities{1: 1}); err != nil {
		t.Fatal(err)
	}
	if res, _, _ := service.Draw(ctx, "t"); !res.Win() {
		t.Fatalf("Expected the only prize to be won, but got %+v", res)
	}
	res, _, err := service.Draw(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != models.ReasonNoPrizesLeft {
		t.Errorf("Expected NO_PRIZES_LEFT, but got %+v", res)
	}
}

func TestLotteryService_SaveProbabilities(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	service := newTestService(nil, st, nil)

	probs := service.ParseEdited(map[int]string{1: "50%", 2: "40%", 3: "30%"})
	warnings, err := service.SaveProbabilities(ctx, "t", probs)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Errorf("Expected a total above 1 warning, but got %v", warnings)
	}

	data, err := st.Get(ctx, store.ProbabilitiesKey("t"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["1"] != 0.5 || raw["3"] != 0.3 {
		t.Errorf("Expected a flat object keyed by level, but got %s", data)
	}

	state, _ := service.LoadState(ctx, "t")
	if state.Inputs[1] != "0.5" || state.Inputs[2] != "40%" {
		t.Errorf("Unexpected edit strings %v", state.Inputs)
	}
}

func TestLotteryService_CorruptRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.Set(ctx, store.WinnersKey("t"), []byte("not json"))
	st.Set(ctx, store.ProbabilitiesKey("t"), []byte("{"))
	service := newTestService(nil, st, nil)

	state, err := service.LoadState(ctx, "t")
	if err != nil {
		t.Fatalf("Corrupt records should degrade, got %v", err)
	}
	if len(state.Winners) != 0 || state.Probabilities[1] != 0.01 {
		t.Errorf("Expected defaults, got %+v", state)
	}
}

func TestLotteryService_DefaultProbabilitiesOption(t *testing.T) {
	engine := NewDrawEngine(models.DefaultPrizeTiers(), nil)
	custom := models.Probabilities{1: 0.2, 2: 0.2, 3: 0.2}
	service := NewLotteryService(engine, store.NewMemoryStore(), WithDefaultProbabilities(custom))
	custom[1] = 0.9

	state, err := service.LoadState(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	if state.Probabilities[1] != 0.2 {
		t.Errorf("Defaults must be copied, got %v", state.Probabilities)
	}
}

func TestLotteryService_CleanUpInactiveSessions(t *testing.T) {
	now := fixedNow
	engine := NewDrawEngine(models.DefaultPrizeTiers(), nil)
	service := NewLotteryService(engine, store.NewMemoryStore(), WithClock(func() time.Time { return now }))

	service.getSession("old")
	now = now.Add(2 * time.Hour)
	service.getSession("fresh")

	if n := service.CleanUpInactiveSessions(time.Hour); n != 1 {
		t.Errorf("Expected 1 evicted session, but got %d", n)
	}
	if _, ok := service.sessions["fresh"]; !ok {
		t.Error("Expected the fresh session to survive")
	}
}

func TestLotteryService_ConcurrentDraws(t *testing.T) {
	ctx := context.Background()
	engine := NewDrawEngine([]models.PrizeTier{{Level: 1, Name: "Limited", Count: 3}}, NewSeededRNG(1))
	service := NewLotteryService(engine, store.NewMemoryStore())

	tenants := []string{"hall-a", "hall-b"}
	for _, tenant := range tenants {
		if _, err := service.SaveProbabilities(ctx, tenant, models.Probabilities{1: 1}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, tenant := range tenants {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := service.Draw(ctx, tenant); err != nil {
					t.Errorf("Draw failed: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	for _, tenant := range tenants {
		state, err := service.LoadState(ctx, tenant)
		if err != nil {
			t.Fatal(err)
		}
		if len(state.Winners) != 3 {
			t.Errorf("tenant %s: expected exactly 3 winners, got %d", tenant, len(state.Winners))
		}
	}
}

type failingStore struct{ store.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestLotteryService_StoreErrors(t *testing.T) {
	service := newTestService(nil, failingStore{store.NewMemoryStore()}, nil)
	if _, _, err := service.Draw(context.Background(), "t"); err == nil {
		t.Error("Expected store errors to surface")
	}
}
