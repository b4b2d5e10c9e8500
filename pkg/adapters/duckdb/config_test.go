package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	useSSL := false

	tests := []struct {
		name    string
		input   map[string]any
		want    *Params
		wantErr string
	}{
		{name: "nil", input: nil, want: &Params{}},
		{
			name: "extensions and weakly typed settings",
			input: map[string]any{
				"extensions": []any{"httpfs", "json"},
				"settings":   map[string]any{"threads": 4, "memory_limit": "1GB"},
			},
			want: &Params{
				Extensions: []string{"httpfs", "json"},
				Settings:   map[string]string{"threads": "4", "memory_limit": "1GB"},
			},
		},
		{
			name: "secret for a local object store",
			input: map[string]any{
				"secrets": []any{map[string]any{
					"type":      "s3",
					"provider":  "config",
					"key_id":    "minio",
					"secret":    "minio123",
					"endpoint":  "localhost:9000",
					"url_style": "path",
					"use_ssl":   false,
					"scope":     "s3://seeds",
				}},
			},
			want: &Params{Secrets: []SecretConfig{{
				Type: "s3", Provider: "config", KeyID: "minio", Secret: "minio123",
				Endpoint: "localhost:9000", URLStyle: "path", UseSSL: &useSSL, Scope: "s3://seeds",
			}}},
		},
		{
			name:    "secret without type",
			input:   map[string]any{"secrets": []any{map[string]any{"provider": "config"}}},
			wantErr: "secret 0 has no type",
		},
		{
			name:    "extension name with SQL in it",
			input:   map[string]any{"extensions": []any{"httpfs; DROP TABLE x"}},
			wantErr: "bad extension name",
		},
		{
			name:    "wrong shape",
			input:   map[string]any{"settings": "threads=4"},
			wantErr: "invalid duckdb params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_Statements(t *testing.T) {
	p := &Params{
		Extensions: []string{"httpfs"},
		Settings:   map[string]string{"threads": "2", "memory_limit": "1GB"},
		Secrets:    []SecretConfig{{Type: "s3"}},
	}
	assert.Equal(t, []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"SET memory_limit = '1GB'",
		"SET threads = '2'",
		"CREATE SECRET (\n    TYPE s3\n)",
	}, p.statements())
}

func TestBuildCreateSecretSQL(t *testing.T) {
	useSSL := true

	tests := []struct {
		name   string
		secret SecretConfig
		want   string
	}{
		{
			name:   "credential chain",
			secret: SecretConfig{Type: "s3", Provider: "credential_chain", Region: "eu-west-1"},
			want:   "CREATE SECRET (\n    TYPE s3,\n    PROVIDER credential_chain,\n    REGION 'eu-west-1'\n)",
		},
		{
			name:   "quotes are escaped",
			secret: SecretConfig{Type: "s3", Secret: "it's"},
			want:   "CREATE SECRET (\n    TYPE s3,\n    SECRET 'it''s'\n)",
		},
		{
			name:   "ssl and list scope",
			secret: SecretConfig{Type: "gcs", UseSSL: &useSSL, Scope: []any{"gs://a", "gs://b"}},
			want:   "CREATE SECRET (\n    TYPE gcs,\n    USE_SSL true,\n    SCOPE ('gs://a', 'gs://b')\n)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildCreateSecretSQL(tt.secret))
		})
	}
}
