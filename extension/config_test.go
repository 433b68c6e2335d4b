package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{RefreshRetries: 7})
	want := DefaultConfig()
	want.RefreshRetries = 7

	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		yaml         Config
		programmatic Config
		check        func(t *testing.T, c Config)
	}{
		{
			name:         "yaml wins for durations",
			yaml:         Config{StoreTimeout: time.Second},
			programmatic: Config{StoreTimeout: time.Minute},
			check: func(t *testing.T, c Config) {
				if c.StoreTimeout != time.Second {
					t.Errorf("StoreTimeout: got %v", c.StoreTimeout)
				}
			},
		},
		{
			name:         "programmatic fills gaps",
			yaml:         Config{},
			programmatic: Config{BasePath: "/ledger", RefreshQueueSize: 8},
			check: func(t *testing.T, c Config) {
				if c.BasePath != "/ledger" || c.RefreshQueueSize != 8 {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name:         "programmatic flags force on",
			yaml:         Config{},
			programmatic: Config{DisableRoutes: true, DisableMigrate: true, AsyncRefresh: true},
			check: func(t *testing.T, c Config) {
				if !c.DisableRoutes || !c.DisableMigrate || !c.AsyncRefresh {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name:         "defaults applied last",
			yaml:         Config{},
			programmatic: Config{},
			check: func(t *testing.T, c Config) {
				if c != DefaultConfig() {
					t.Errorf("got %+v, want defaults", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mergeConfigurations(tt.yaml, tt.programmatic))
		})
	}
}

func TestBuildLedgerOptsAppendsPassThrough(t *testing.T) {
	e := New(WithStoreTimeout(time.Second), WithLedgerOption(nil))
	e.config = mergeWithDefaults(e.config)

	opts := e.buildLedgerOpts()
	if len(opts) != 7 {
		t.Fatalf("expected 6 config options plus 1 pass-through, got %d", len(opts))
	}
	if opts[len(opts)-1] != nil {
		t.Error("pass-through option should come last")
	}
}
