package scoring

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestBaselineStore_Recompute(t *testing.T) {
	db := newTestDB(t)
	ss := NewScoreStore(db)
	bs := NewBaselineStore(db)
	now := time.Now().UTC()

	t.Run("empty population gets neutral average", func(t *testing.T) {
		baseline, err := bs.Recompute(DomainOverall)
		if err != nil {
			t.Fatalf("recompute: %v", err)
		}
		if baseline.Average != NeutralScore {
			t.Errorf("expected neutral average, got %v", baseline.Average)
		}
		if baseline.SampleCount != 0 {
			t.Errorf("expected empty sample, got %d", baseline.SampleCount)
		}
	})

	t.Run("computes mean and spread", func(t *testing.T) {
		for i, value := range []float64{20, 40, 60} {
			user := seedUser(t, db, string(rune('a'+i)))
			if err := ss.Upsert(testScore(user, DomainOverall, value, now)); err != nil {
				t.Fatalf("upsert %d: %v", i, err)
			}
		}

		baseline, err := bs.Recompute(DomainOverall)
		if err != nil {
			t.Fatalf("recompute: %v", err)
		}
		if math.Abs(baseline.Average-40) > 1e-9 {
			t.Errorf("expected average 40, got %v", baseline.Average)
		}
		if baseline.StdDev <= 0 {
			t.Errorf("expected positive spread, got %v", baseline.StdDev)
		}
		if baseline.SampleCount != 3 {
			t.Errorf("expected 3 samples, got %d", baseline.SampleCount)
		}
	})

	t.Run("stored and readable", func(t *testing.T) {
		baseline, err := bs.Get(DomainOverall)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if baseline.SampleCount != 3 {
			t.Errorf("expected persisted baseline, got %+v", baseline)
		}
	})

	t.Run("invalid domain", func(t *testing.T) {
		if _, err := bs.Recompute(Domain("karma")); !errors.Is(err, ErrInvalidDomain) {
			t.Errorf("expected ErrInvalidDomain, got %v", err)
		}
	})
}

func TestBaselineStore_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	bs := NewBaselineStore(db)

	_, err := bs.Get(DomainTrust)
	if !errors.Is(err, ErrBaselineNotFound) {
		t.Errorf("expected ErrBaselineNotFound, got %v", err)
	}
}
