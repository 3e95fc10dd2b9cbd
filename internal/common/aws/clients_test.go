// internal/common/aws/clients_test.go

package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctp-notifications/internal/common/config"
)

func TestLoad(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	clients, err := Load(context.Background(), config.AWSConfig{Region: "af-south-1"})
	require.NoError(t, err)
	assert.Equal(t, "af-south-1", clients.Region())
	assert.NotNil(t, clients.SES())
	assert.NotNil(t, clients.SNS())
}

func TestLoad_RequiresRegion(t *testing.T) {
	_, err := Load(context.Background(), config.AWSConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region is required")
}
