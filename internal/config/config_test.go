package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, k := range []string{"PORT", "STORE_DRIVER", "DRAW_DELAY", "REDIS_DB", "TIME_LAYOUT", "SESSION_IDLE"} {
			t.Setenv(k, "")
		}
		cfg, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Port != "8080" || cfg.StoreDriver != StoreFile {
			t.Errorf("unexpected defaults %+v", cfg)
		}
		if cfg.DrawDelay != time.Second || cfg.SessionIdle != time.Hour {
			t.Errorf("unexpected durations %+v", cfg)
		}
		if cfg.TimeLayout != DefaultTimeLayout {
			t.Errorf("unexpected time layout %q", cfg.TimeLayout)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("STORE_DRIVER", "Redis")
		t.Setenv("REDIS_DB", "2")
		t.Setenv("DRAW_DELAY", "250ms")
		cfg, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Port != "9090" || cfg.StoreDriver != StoreRedis || cfg.RedisDB != 2 || cfg.DrawDelay != 250*time.Millisecond {
			t.Errorf("overrides not applied: %+v", cfg)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		cases := map[string]string{
			"STORE_DRIVER": "mongo",
			"REDIS_DB":     "x",
			"DRAW_DELAY":   "soon",
			"SESSION_IDLE": "0s",
		}
		for k, v := range cases {
			t.Run(k, func(t *testing.T) {
				t.Setenv(k, v)
				if _, err := Load(); err == nil {
					t.Errorf("expected %s=%s to fail", k, v)
				}
			})
		}
	})

	t.Run("postgres needs a url", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", StorePostgres)
		t.Setenv("DATABASE_URL", "")
		if _, err := Load(); err == nil {
			t.Error("expected missing DATABASE_URL to fail")
		}
	})
}

func TestLoadPrizeTable(t *testing.T) {
	t.Run("no file uses reference tiers", func(t *testing.T) {
		table, err := LoadPrizeTable("")
		if err != nil {
			t.Fatal(err)
		}
		if len(table.Prizes) != 3 || table.Prizes[0].Count != 2 {
			t.Errorf("unexpected table %+v", table)
		}
		table, err = LoadPrizeTable(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil || len(table.Prizes) != 3 {
			t.Errorf("missing file should fall back, got %+v %v", table, err)
		}
	})

	t.Run("reads yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prizes.yaml")
		data := `
prizes:
  - level: 1
    name: Laptop
    icon: "💻"
    count: 1
  - level: 2
    name: Mug
    count: 20
    unit: pcs
probabilities:
  1: "1/200"
  2: "15%"
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		table, err := LoadPrizeTable(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(table.Prizes) != 2 || table.Prizes[1].Name != "Mug" || table.Prizes[1].Unit != "pcs" {
			t.Errorf("unexpected prizes %+v", table.Prizes)
		}
		if table.Probabilities[1] != "1/200" || table.Probabilities[2] != "15%" {
			t.Errorf("unexpected probabilities %+v", table.Probabilities)
		}
	})

	t.Run("rejects bad tables", func(t *testing.T) {
		bad := []string{
			"prizes:\n  - level: 0\n    name: A\n    count: 1\n",
			"prizes:\n  - level: 1\n    name: A\n    count: 1\n  - level: 1\n    name: B\n    count: 1\n",
			"prizes:\n  - level: 1\n    name: A\n    count: -1\n",
			"prizes:\n  - level: 1\n    name: A\n    count: 1\nprobabilities:\n  5: \"1%\"\n",
			"prizes: [",
		}
		for i, data := range bad {
			path := filepath.Join(t.TempDir(), "prizes.yaml")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadPrizeTable(path); err == nil {
				t.Errorf("case %d: expected validation error", i)
			}
		}
	})
}
