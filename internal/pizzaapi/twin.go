package pizzaapi

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzastore"
	"github.com/wondertwin-ai/pizza-e2e/pkg/admin"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

// NewTwin assembles a pizza twin: the API routes, the admin control plane,
// and the seed file named by cfg, if any. An empty secret signs tokens
// with a random key.
func NewTwin(cfg *twincore.Config, logger *zap.Logger, secret string) (*twincore.Twin, *pizzastore.MemoryStore, error) {
	twin := twincore.New(cfg, logger)
	memStore := pizzastore.New()

	jwtMgr, err := NewJWTManager(secret)
	if err != nil {
		return nil, nil, err
	}

	NewHandler(memStore, twin.Middleware(), jwtMgr).Routes(twin.Router)
	admin.NewHandler(memStore, twin, memStore.Clock).Routes(twin.Router)

	if cfg.SeedFile != "" {
		data, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read seed file: %w", err)
		}
		if err := memStore.LoadState(data); err != nil {
			return nil, nil, fmt.Errorf("load seed file %s: %w", cfg.SeedFile, err)
		}
		twin.Logger.Info("loaded seed data", zap.String("file", cfg.SeedFile))
	}
	return twin, memStore, nil
}

// Factory returns a constructor of fresh in-process twins, one per
// scenario session. Every twin starts from the same seed.
func Factory(seedFile string, logger *zap.Logger) func() (http.Handler, error) {
	return func() (http.Handler, error) {
		twin, _, err := NewTwin(&twincore.Config{Name: "pizza-twin", SeedFile: seedFile}, logger, "")
		if err != nil {
			return nil, err
		}
		return twin, nil
	}
}
