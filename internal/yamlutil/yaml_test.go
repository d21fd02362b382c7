package yamlutil_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/alnah/go-cardmaker/internal/yamlutil"
)

type testConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"poolSize"`
	WarmUp   bool   `yaml:"warmUp"`
}

func TestUnmarshalStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		dest    any
		wantErr error
		check   func(t *testing.T, v any)
	}{
		{
			name: "valid YAML with known fields only",
			data: []byte("addr: 127.0.0.1:3000\npoolSize: 4\nwarmUp: true"),
			dest: &testConfig{},
			check: func(t *testing.T, v any) {
				cfg := v.(*testConfig)
				if cfg.Addr != "127.0.0.1:3000" {
					t.Errorf("Addr = %q", cfg.Addr)
				}
				if cfg.PoolSize != 4 {
					t.Errorf("PoolSize = %d, want 4", cfg.PoolSize)
				}
				if !cfg.WarmUp {
					t.Error("WarmUp = false, want true")
				}
			},
		},
		{
			name:    "unknown field causes error",
			data:    []byte("addr: x\npool_sise: 4"),
			dest:    &testConfig{},
			wantErr: errors.New("yamlutil:"), // partial match
		},
		{
			name:    "invalid YAML syntax",
			data:    []byte("addr: [unclosed"),
			dest:    &testConfig{},
			wantErr: errors.New("yamlutil:"),
		},
		{
			name:    "nil data",
			data:    nil,
			dest:    &testConfig{},
			wantErr: yamlutil.ErrNilData,
		},
		{
			name:    "empty data",
			data:    []byte{},
			dest:    &testConfig{},
			wantErr: yamlutil.ErrNilData,
		},
		{
			name:    "nil destination",
			data:    []byte("addr: x"),
			dest:    nil,
			wantErr: yamlutil.ErrNilDestination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := yamlutil.UnmarshalStrict(tt.data, tt.dest)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if errors.Is(err, tt.wantErr) {
					return
				}
				if !strings.Contains(err.Error(), tt.wantErr.Error()) {
					t.Fatalf("error = %q, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, tt.dest)
			}
		})
	}
}

// Note: this test modifies the global MaxInputSize variable, so it cannot
// run in parallel with other tests to avoid data races.
func TestInputSizeLimit(t *testing.T) {
	originalMax := yamlutil.MaxInputSize
	t.Cleanup(func() { yamlutil.MaxInputSize = originalMax })

	t.Run("input at limit succeeds", func(t *testing.T) {
		yamlutil.MaxInputSize = 100
		data := []byte("addr: x" + strings.Repeat("\n", 93))
		var cfg testConfig
		if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("input exceeding limit fails", func(t *testing.T) {
		yamlutil.MaxInputSize = 100
		data := make([]byte, 101)
		copy(data, []byte("addr: x"))
		var cfg testConfig
		if err := yamlutil.UnmarshalStrict(data, &cfg); !errors.Is(err, yamlutil.ErrInputTooLarge) {
			t.Errorf("errors.Is(err, ErrInputTooLarge) = false, got: %v", err)
		}
	})

	t.Run("error message includes sizes", func(t *testing.T) {
		yamlutil.MaxInputSize = 50
		data := make([]byte, 100)
		var cfg testConfig
		err := yamlutil.UnmarshalStrict(data, &cfg)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "100 bytes") || !strings.Contains(err.Error(), "max 50") {
			t.Errorf("error should report both sizes, got: %s", err)
		}
	})
}
