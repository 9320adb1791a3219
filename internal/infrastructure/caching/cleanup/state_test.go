package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clientstate"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	schema "github.com/MichaelMishaev/signals-sub003/internal/infrastructure/database"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
	"github.com/MichaelMishaev/signals-sub003/pkg/config"
)

func TestDefaultConfigKeepsCrossSessionFlags(t *testing.T) {
	cfg, err := config.Parse()
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	db, err := database.NewConnection(database.DriverSQLite, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := schema.NewTableCreator().CreateSchema(context.Background(), db.DB); err != nil {
		t.Fatalf("schema: %v", err)
	}

	clk := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	backend := clientstate.NewSQLBackend(db, clk, time.Second, logging.NewDiscardLogger())
	store := clientstate.NewStore(clientstate.Scoped(backend, "v1"), clientstate.PopupNamespace(), clk, 24*time.Hour, nil)
	store.Write(gating.PopupPatch{
		PopupsShown: &gating.PopupsShownPatch{FourthAction: gating.Ptr(true)},
		UserState:   &gating.UserStatePatch{EmailSubscribed: gating.Ptr(true)},
	})

	clk.Advance(31 * 24 * time.Hour)
	w := NewWorker(nil, nil, backend, clk, &Config{
		CleanupInterval: cfg.CleanupInterval,
		VisitorIdleTTL:  cfg.VisitorIdleTTL,
		StateRetention:  cfg.StateRetention,
	}, nil)

	res := w.RunOnce(context.Background())
	if res.StaleState != 0 {
		t.Fatalf("default pass purged %d state rows", res.StaleState)
	}
	st := store.Read()
	if !st.PopupsShown.FourthAction || !st.UserState.EmailSubscribed {
		t.Fatalf("cross-session flags lost: %+v", st)
	}
}
