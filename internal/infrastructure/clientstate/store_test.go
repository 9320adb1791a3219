package clientstate

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	schema "github.com/MichaelMishaev/signals-sub003/internal/infrastructure/database"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newStores(t *testing.T, backend Backend) (Stores, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	return NewStores(backend, clk, 24*time.Hour, logging.NewDiscardLogger()), clk
}

func TestReadAbsentReturnsDefaultsWithoutPersisting(t *testing.T) {
	backend := NewMemoryBackend()
	stores, _ := newStores(t, backend)

	st := stores.Gate.Read()
	if st.DrillsViewed != 0 || st.HasEmail || len(st.DrillHistory) != 0 {
		t.Fatalf("unexpected defaults: %+v", st)
	}
	if !st.SessionStart.Equal(epoch) {
		t.Fatalf("sessionStart = %v, want %v", st.SessionStart, epoch)
	}
	if backend.Len() != 0 {
		t.Fatalf("defaults were persisted: %d items", backend.Len())
	}
}

func TestCorruptDataDegradesAndRecovers(t *testing.T) {
	backend := NewMemoryBackend()
	if err := backend.SetItem(PopupKey, "{not json"); err != nil {
		t.Fatal(err)
	}
	stores, _ := newStores(t, backend)

	st := stores.Popup.Read()
	if st.ActionCount != 0 {
		t.Fatalf("actionCount = %d, want 0", st.ActionCount)
	}

	stores.Popup.Write(gating.PopupPatch{ActionCount: gating.Ptr(3)})
	if got := stores.Popup.Read().ActionCount; got != 3 {
		t.Fatalf("after write actionCount = %d, want 3", got)
	}

	raw, _, _ := backend.GetItem(PopupKey)
	if !json.Valid([]byte(raw)) {
		t.Fatalf("stored value is not JSON: %q", raw)
	}
}

func TestWriteDeepMergesNestedMaps(t *testing.T) {
	stores, _ := newStores(t, NewMemoryBackend())

	stores.Popup.Write(gating.PopupPatch{
		PopupsShown: &gating.PopupsShownPatch{Idle: gating.Ptr(2)},
		UserState:   &gating.UserStatePatch{EmailSubscribed: gating.Ptr(true)},
	})
	st := stores.Popup.Write(gating.PopupPatch{
		PopupsShown: &gating.PopupsShownPatch{FourthAction: gating.Ptr(true)},
	})

	if st.PopupsShown.Idle != 2 || !st.PopupsShown.FourthAction {
		t.Fatalf("popupsShown siblings lost: %+v", st.PopupsShown)
	}
	if !st.UserState.EmailSubscribed {
		t.Fatal("userState overwritten by unrelated patch")
	}
}

func TestWriteReplacesArrays(t *testing.T) {
	stores, _ := newStores(t, NewMemoryBackend())

	stores.Gate.Write(gating.GatePatch{DrillHistory: []string{"a", "b"}})
	st := stores.Gate.Write(gating.GatePatch{DrillHistory: []string{"c"}})
	if len(st.DrillHistory) != 1 || st.DrillHistory[0] != "c" {
		t.Fatalf("drillHistory = %v, want [c]", st.DrillHistory)
	}
}

func TestWriteAcceptsMapPatch(t *testing.T) {
	stores, _ := newStores(t, NewMemoryBackend())

	st := stores.Popup.Write(map[string]any{"userState": map[string]any{"brokerAccountOpened": true}})
	if !st.UserState.BrokerAccountOpened || st.UserState.EmailSubscribed {
		t.Fatalf("unexpected userState: %+v", st.UserState)
	}
}

func TestPopupExpiryKeepsCrossSessionFlags(t *testing.T) {
	stores, clk := newStores(t, NewMemoryBackend())

	stores.Popup.Write(gating.PopupPatch{
		ActionCount: gating.Ptr(6),
		PopupsShown: &gating.PopupsShownPatch{FourthAction: gating.Ptr(true), Idle: gating.Ptr(3)},
		UserState:   &gating.UserStatePatch{EmailSubscribed: gating.Ptr(true)},
	})

	clk.Set(epoch.Add(25 * time.Hour))
	st := stores.Popup.Read()
	if st.ActionCount != 0 || st.PopupsShown.Idle != 0 {
		t.Fatalf("session counters survived expiry: %+v", st)
	}
	if !st.PopupsShown.FourthAction || !st.UserState.EmailSubscribed {
		t.Fatalf("cross-session flags lost: %+v", st)
	}
	if !st.SessionStart.Equal(epoch.Add(25 * time.Hour)) {
		t.Fatalf("sessionStart not renewed: %v", st.SessionStart)
	}
}

func TestGateExpiryResetsViewsKeepsEmail(t *testing.T) {
	stores, clk := newStores(t, NewMemoryBackend())

	stores.Gate.Write(gating.GatePatch{
		DrillsViewed: gating.Ptr(5),
		DrillHistory: []string{"a", "b", "c", "d", "e"},
		HasEmail:     gating.Ptr(true),
		UserEmail:    gating.Ptr("trader@example.com"),
	})

	clk.Set(epoch.Add(24*time.Hour + time.Second))
	st := stores.Gate.Read()
	if st.DrillsViewed != 0 || len(st.DrillHistory) != 0 {
		t.Fatalf("views survived expiry: %+v", st)
	}
	if !st.HasEmail || st.UserEmail == nil || *st.UserEmail != "trader@example.com" {
		t.Fatalf("email lost on expiry: %+v", st)
	}
}

func TestEmptyEmailPatchClearsAddress(t *testing.T) {
	stores, _ := newStores(t, NewMemoryBackend())

	stores.Gate.Write(gating.GatePatch{HasEmail: gating.Ptr(true), UserEmail: gating.Ptr("a@b.co")})
	st := stores.Gate.Write(gating.GatePatch{HasEmail: gating.Ptr(false), UserEmail: gating.Ptr("")})
	if st.HasEmail || st.UserEmail != nil {
		t.Fatalf("email not cleared: %+v", st)
	}
}

func TestUnavailableBackendNeverFails(t *testing.T) {
	stores, _ := newStores(t, UnavailableBackend{})

	st := stores.Popup.Write(gating.PopupPatch{ActionCount: gating.Ptr(2)})
	if st.ActionCount != 2 {
		t.Fatalf("write should return merged state, got %d", st.ActionCount)
	}
	if got := stores.Popup.Read().ActionCount; got != 0 {
		t.Fatalf("read after dropped write = %d, want 0", got)
	}
	stores.Popup.Reset()
}

func TestResetRemovesNamespaceOnly(t *testing.T) {
	backend := NewMemoryBackend()
	stores, _ := newStores(t, backend)

	stores.Gate.Write(gating.GatePatch{DrillsViewed: gating.Ptr(1)})
	stores.Popup.Write(gating.PopupPatch{ActionCount: gating.Ptr(1)})
	stores.Gate.Reset()

	if got := stores.Gate.Read().DrillsViewed; got != 0 {
		t.Fatalf("gate not reset: %d", got)
	}
	if got := stores.Popup.Read().ActionCount; got != 1 {
		t.Fatalf("popup namespace touched by gate reset: %d", got)
	}
}

func TestScopedBackendsAreIsolated(t *testing.T) {
	shared := NewMemoryBackend()
	a, _ := newStores(t, Scoped(shared, "visitor-a"))
	b, _ := newStores(t, Scoped(shared, "visitor-b"))

	a.Gate.Write(gating.GatePatch{DrillsViewed: gating.Ptr(4)})
	if got := b.Gate.Read().DrillsViewed; got != 0 {
		t.Fatalf("visitor-b sees visitor-a state: %d", got)
	}
	if _, ok, _ := shared.GetItem("visitor-a:" + GateKey); !ok {
		t.Fatal("scoped key not found on shared backend")
	}
}

func TestSQLBackendRoundTrip(t *testing.T) {
	db, err := database.NewConnection(database.DriverSQLite, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := schema.NewTableCreator().CreateSchema(context.Background(), db.DB); err != nil {
		t.Fatalf("schema: %v", err)
	}

	clk := clock.Fake(epoch)
	backend := NewSQLBackend(db, clk, time.Second, logging.NewDiscardLogger())
	store := NewStore(Scoped(backend, "v1"), PopupNamespace(), clk, 24*time.Hour, nil)

	store.Write(gating.PopupPatch{ActionCount: gating.Ptr(2)})
	store.Write(gating.PopupPatch{ActionCount: gating.Ptr(3)})
	if got := store.Read().ActionCount; got != 3 {
		t.Fatalf("actionCount = %d, want 3", got)
	}

	n, err := backend.PurgeOlderThan(context.Background(), epoch.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v; want 1 row", n, err)
	}
	store.Reset()
}
