// cmd/tools/registry-updater/main_test.go

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"ctp-notifications/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelp(t *testing.T) {
	var buf bytes.Buffer
	help(&buf)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\nUsage: registry-updater"))
	assert.True(t, strings.HasSuffix(out, "for more information about a command.\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestSetField(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		field   string
		value   string
		wantErr string
	}{
		{name: "title", id: "offer_status_dealer", field: "title", value: "Offer Update"},
		{name: "channels", id: "offer_status_dealer", field: "channels", value: "push"},
		{name: "unknown field", id: "offer_status_dealer", field: "colour", value: "red", wantErr: "unknown field: colour"},
		{name: "unknown definition", id: "no_such_definition", field: "title", value: "x", wantErr: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registry.json")

			err := setField(path, tt.id, tt.field, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			reg, err := registry.LoadRegistry(path)
			require.NoError(t, err)
			require.Len(t, reg.Definitions, 1)
			assert.Equal(t, tt.id, reg.Definitions[0].ID)
			assert.NotEmpty(t, reg.LastUpdated)
		})
	}
}
