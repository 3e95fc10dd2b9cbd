// internal/common/aws/clients.go
package aws

import (
	"context"
	"fmt"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"ctp-notifications/internal/common/config"
)

// Clients shares one resolved SDK config between the SES and SNS transports.
type Clients struct {
	cfg sdk.Config
}

// Load resolves credentials from the environment, or from the named shared profile.
func Load(ctx context.Context, cfg config.AWSConfig) (*Clients, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("providers.aws.region is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	resolved, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Clients{cfg: resolved}, nil
}

func (c *Clients) Region() string { return c.cfg.Region }

func (c *Clients) SES() *ses.Client { return ses.NewFromConfig(c.cfg) }

func (c *Clients) SNS() *sns.Client { return sns.NewFromConfig(c.cfg) }
