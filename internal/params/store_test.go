package params

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakePersist struct {
	stored  map[string]decimal.Decimal
	readErr error
	saveErr error
	saves   int
}

func newFakePersist() *fakePersist {
	return &fakePersist{stored: make(map[string]decimal.Decimal)}
}

func (f *fakePersist) GetAllBotParams() (map[string]decimal.Decimal, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make(map[string]decimal.Decimal, len(f.stored))
	for k, v := range f.stored {
		out[k] = v
	}
	return out, nil
}

func (f *fakePersist) SaveBotParam(name string, value, defaultValue decimal.Decimal) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.stored[name] = value
	return nil
}

func TestNewStoreSeedsDefaultsWhenPersistenceEmpty(t *testing.T) {
	s, err := NewStore(zap.NewNop(), newFakePersist())
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	for _, def := range allDefinitions() {
		got, ok := s.Get(def.Name)
		if !ok {
			t.Fatalf("expected %s to be recognized", def.Name)
		}
		if !got.Equal(def.Default) {
			t.Fatalf("%s: expected default %s, got %s", def.Name, def.Default, got)
		}
	}
}

func TestNewStoreAdoptsInBoundsStoredValue(t *testing.T) {
	persist := newFakePersist()
	persist.stored["min_rr_ratio"] = decimal.NewFromFloat(2.5)

	s, err := NewStore(zap.NewNop(), persist)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	got, _ := s.Get("min_rr_ratio")
	if !got.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("expected stored value 2.5, got %s", got)
	}
}

func TestNewStoreResetsOutOfBoundsStoredValueToDefault(t *testing.T) {
	persist := newFakePersist()
	persist.stored["min_rr_ratio"] = decimal.NewFromFloat(99)

	s, err := NewStore(zap.NewNop(), persist)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	def, _ := s.Definition("min_rr_ratio")
	got, _ := s.Get("min_rr_ratio")
	if !got.Equal(def.Default) {
		t.Fatalf("expected out-of-bounds stored value reset to default %s, got %s", def.Default, got)
	}
}

func TestNewStoreIgnoresUnrecognizedStoredNames(t *testing.T) {
	persist := newFakePersist()
	persist.stored["not_a_real_param"] = decimal.NewFromFloat(1)

	if _, err := NewStore(zap.NewNop(), persist); err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
}

func TestNewStorePropagatesPersistenceReadError(t *testing.T) {
	persist := newFakePersist()
	persist.readErr = errors.New("disk unavailable")

	if _, err := NewStore(zap.NewNop(), persist); err == nil {
		t.Fatal("expected NewStore to propagate the persistence read error")
	}
}

func TestSetClampsToBounds(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())

	def, _ := s.Definition("min_rr_ratio")

	got, err := s.Set("min_rr_ratio", def.Max.Add(decimal.NewFromFloat(10)))
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !got.Equal(def.Max) {
		t.Fatalf("expected value clamped to max %s, got %s", def.Max, got)
	}

	got, err = s.Set("min_rr_ratio", def.Min.Sub(decimal.NewFromFloat(10)))
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !got.Equal(def.Min) {
		t.Fatalf("expected value clamped to min %s, got %s", def.Min, got)
	}
}

func TestSetRoundsIntTypedParameters(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())

	got, err := s.Set("swing_lookback", decimal.NewFromFloat(6.7))
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(7)) {
		t.Fatalf("expected int-typed parameter rounded to 7, got %s", got)
	}
}

func TestSetRefusesUnrecognizedName(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())

	_, err := s.Set("not_a_real_param", decimal.NewFromFloat(1))
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestSetPersistsTheClampedValue(t *testing.T) {
	persist := newFakePersist()
	s, _ := NewStore(zap.NewNop(), persist)

	def, _ := s.Definition("min_rr_ratio")
	if _, err := s.Set("min_rr_ratio", def.Max.Add(decimal.NewFromFloat(10))); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if persist.saves != 1 {
		t.Fatalf("expected exactly one persisted write, got %d", persist.saves)
	}
	if !persist.stored["min_rr_ratio"].Equal(def.Max) {
		t.Fatalf("expected persisted value to be the clamped max %s, got %s", def.Max, persist.stored["min_rr_ratio"])
	}
}

func TestSetPropagatesPersistenceSaveError(t *testing.T) {
	persist := newFakePersist()
	persist.saveErr = errors.New("disk full")
	s, _ := NewStore(zap.NewNop(), persist)

	if _, err := s.Set("min_rr_ratio", decimal.NewFromFloat(2)); err == nil {
		t.Fatal("expected Set to propagate the persistence save error")
	}
}

func TestGetUnknownNameReturnsFalse(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())

	if _, ok := s.Get("not_a_real_param"); ok {
		t.Fatal("expected Get on an unrecognized name to return ok=false")
	}
}

func TestSnapshotReflectsCurrentValues(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())

	if _, err := s.Set("swing_lookback", decimal.NewFromFloat(6)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	snap := s.Snapshot()
	if snap.Int("swing_lookback") != 6 {
		t.Fatalf("expected snapshot swing_lookback=6, got %d", snap.Int("swing_lookback"))
	}

	def, _ := s.Definition("min_rr_ratio")
	if !snap.Float("min_rr_ratio").Equal(def.Default) {
		t.Fatalf("expected snapshot min_rr_ratio to carry the default %s, got %s", def.Default, snap.Float("min_rr_ratio"))
	}
}

func TestSnapshotUnknownNameReturnsZero(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())
	snap := s.Snapshot()

	if !snap.Float("not_a_real_param").IsZero() {
		t.Fatal("expected snapshot read of an unrecognized name to return zero")
	}
}

func TestDefinitionUnknownNameReturnsFalse(t *testing.T) {
	s, _ := NewStore(zap.NewNop(), newFakePersist())

	if _, ok := s.Definition("not_a_real_param"); ok {
		t.Fatal("expected Definition on an unrecognized name to return ok=false")
	}
}
