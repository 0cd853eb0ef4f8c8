package config

import (
	"testing"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		code    errors.ErrorCode
	}{
		{
			name: "valid",
			cfg: Config{
				Servers:     []string{"http://localhost:8080/"},
				Collections: []CollectionConfig{{Name: "gfs"}, {Name: "nam.v2"}},
			},
		},
		{
			name: "duplicate collection",
			cfg: Config{
				Servers:     []string{"http://localhost:8080/"},
				Collections: []CollectionConfig{{Name: "gfs"}, {Name: "gfs"}},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "unknown update type",
			cfg: Config{
				Servers:     []string{"http://localhost:8080/"},
				Collections: []CollectionConfig{{Name: "gfs", UpdateType: "sometimes"}},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "unknown trigger flag",
			cfg: Config{
				TriggerFlag: "maybe",
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "no servers with triggers enabled",
			cfg: Config{
				Collections: []CollectionConfig{{Name: "gfs"}},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "no servers with triggers disabled globally",
			cfg: Config{
				SendTriggers: boolPtr(false),
				Collections:  []CollectionConfig{{Name: "gfs"}},
			},
		},
		{
			name: "no servers with triggers disabled per collection",
			cfg: Config{
				Collections: []CollectionConfig{{Name: "gfs", Trigger: boolPtr(false)}},
			},
		},
		{
			name: "server without host",
			cfg: Config{
				Servers: []string{"http:///thredds"},
			},
			wantErr: true,
			code:    errors.ErrCodeTargetInvalid,
		},
		{
			name: "server with unsupported scheme",
			cfg: Config{
				Servers: []string{"ftp://localhost/"},
			},
			wantErr: true,
			code:    errors.ErrCodeTargetInvalid,
		},
		{
			name: "negative token timeout",
			cfg: Config{
				TokenTimeout: Duration(-1),
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "negative settle",
			cfg: Config{
				SendTriggers: boolPtr(false),
				Collections:  []CollectionConfig{{Name: "gfs", Settle: Duration(-1)}},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "bad collection name",
			cfg: Config{
				SendTriggers: boolPtr(false),
				Collections:  []CollectionConfig{{Name: "a/b"}},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "bad include pattern",
			cfg: Config{
				SendTriggers: boolPtr(false),
				Collections:  []CollectionConfig{{Name: "gfs", Include: []string{"[a-"}}},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "redis without address",
			cfg: Config{
				Redis: &RedisConfig{},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
		{
			name: "negative rate",
			cfg: Config{
				Fanout: FanoutConfig{RequestsPerSecond: -1},
			},
			wantErr: true,
			code:    errors.ErrCodeConfigValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestSchemaRejectsUnknownNestedKeys(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
send_triggers: false
collections:
  - name: gfs
    watchh: [/data]
`), FormatYAML)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
	assert.Contains(t, err.Error(), "watchh")
}

func TestSchemaRejectsWrongTypes(t *testing.T) {
	cases := map[string]string{
		"workers as string":  "workers: many\n",
		"bad duration":       "token_timeout: forever\n",
		"bad update type":    "send_triggers: false\ncollections:\n  - name: gfs\n    update_type: sometimes\n",
		"collection no name": "send_triggers: false\ncollections:\n  - update_type: test\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(doc), FormatYAML)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigValidation, errors.GetCode(err))
		})
	}
}
