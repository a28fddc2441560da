package di

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/gateway/memory"
	"github.com/goliatone/go-recipe-query/gateway/postgrest"
	"github.com/goliatone/go-recipe-query/gateway/sqlstore"
	"github.com/goliatone/go-recipe-query/internal/config"
	"github.com/goliatone/go-recipe-query/recipe"
	"github.com/goliatone/go-recipe-query/recipequery"
)

func newTestContainer(t testing.TB, cfg config.Config, opts ...Option) *Container {
	t.Helper()

	c, err := New(context.Background(), cfg, append([]Option{WithLogWriter(io.Discard)}, opts...)...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return c
}

func TestNew_MemoryBackend(t *testing.T) {
	c := newTestContainer(t, config.Defaults())

	if c.Logger() == nil || c.Registry() == nil || c.Store() == nil || c.Accessor() == nil || c.Client() == nil {
		t.Fatal("container has nil components")
	}
	if _, ok := c.Gateway().(*memory.Gateway); !ok {
		t.Fatalf("expected memory gateway, got %T", c.Gateway())
	}
	if c.Config().Backend != config.BackendMemory {
		t.Errorf("expected backend %q, got %q", config.BackendMemory, c.Config().Backend)
	}

	res := c.Client().Recipes(recipequery.Anonymous(), recipe.Filter{}).Result(context.Background())
	if res.Error != nil {
		t.Fatalf("list failed: %v", res.Error)
	}
	if len(res.Data) != 24 {
		t.Errorf("expected 24 seeded recipes, got %d", len(res.Data))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend = "ftp"

	c, err := New(context.Background(), cfg, WithLogWriter(io.Discard))
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if c != nil {
		t.Error("expected nil container on error")
	}
}

func TestNew_SQLBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend = config.BackendSQL
	cfg.SQL.Driver = config.DriverSQLite
	cfg.SQL.DSN = "file:di_sql_backend?mode=memory&cache=shared"
	cfg.SQL.Seed = true

	c := newTestContainer(t, cfg)
	if _, ok := c.Gateway().(*sqlstore.Store); !ok {
		t.Fatalf("expected sql store, got %T", c.Gateway())
	}

	ctx := context.Background()
	res := c.Client().Recipes(recipequery.Anonymous(), recipe.Filter{Vegan: recipe.Bool(true)}).Result(ctx)
	if res.Error != nil {
		t.Fatalf("list failed: %v", res.Error)
	}
	if len(res.Data) == 0 {
		t.Fatal("expected seeded vegan recipes")
	}
	for _, s := range res.Data {
		if !s.Vegan {
			t.Errorf("recipe %s is not vegan", s.ID)
		}
	}
}

func TestNew_PostgRESTBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend = config.BackendPostgREST
	cfg.API.URL = "http://127.0.0.1:1"
	cfg.API.Key = "public-key"

	c := newTestContainer(t, cfg)
	if _, ok := c.Gateway().(*postgrest.Client); !ok {
		t.Fatalf("expected postgrest client, got %T", c.Gateway())
	}
}

func TestNew_CustomGatewaySkipsBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend = "ignored"

	gw := memory.New()
	c := newTestContainer(t, cfg, WithGateway(gw))
	if c.Gateway() != Gateway(gw) {
		t.Fatal("expected the injected gateway")
	}
}

func TestNew_SessionFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.SessionFile = filepath.Join(t.TempDir(), "session")

	c := newTestContainer(t, cfg)
	ctx := context.Background()

	_, err := c.Accessor().SignUp(ctx, auth.SignUpInput{Email: "kim@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("SignUp() failed: %v", err)
	}
	if _, err := os.Stat(cfg.SessionFile); err != nil {
		t.Fatalf("expected session file: %v", err)
	}
	if c.Viewer(ctx).IsAnonymous() {
		t.Error("expected a signed-in viewer")
	}
}

func TestRegistry_ExposesCacheMetrics(t *testing.T) {
	c := newTestContainer(t, config.Defaults())

	res := c.Client().Featured(recipequery.Anonymous()).Result(context.Background())
	if res.Error != nil {
		t.Fatalf("featured failed: %v", res.Error)
	}

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "recipes_cache_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected recipes_cache_* metrics to be registered")
	}
}

func TestClose_Twice(t *testing.T) {
	c, err := New(context.Background(), config.Defaults(), WithLogWriter(io.Discard))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}
