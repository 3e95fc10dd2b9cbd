// internal/delivery/sns.go

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsclients "ctp-notifications/internal/common/aws"
	"ctp-notifications/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the mobile push surface used by SNSProvider.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
}

// SNSProvider delivers push through SNS platform endpoints. Device tokens are registered
// against the platform application on send; topics map to configured topic ARNs.
type SNSProvider struct {
	client         SNSService
	platformAppArn string
	topicArns      map[string]string
}

func NewSNSProvider(client SNSService, platformAppArn string, topicArns map[string]string) *SNSProvider {
	return &SNSProvider{client: client, platformAppArn: platformAppArn, topicArns: topicArns}
}

func NewSNSProviderFromConfig(ctx context.Context, cfg config.AWSConfig, platformAppArn string, topicArns map[string]string) (*SNSProvider, error) {
	clients, err := awsclients.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSNSProvider(clients.SNS(), platformAppArn, topicArns), nil
}

func (p *SNSProvider) Name() string { return ProviderSNS }

func (p *SNSProvider) Send(ctx context.Context, msg *PushMessage) error {
	payload, err := snsPayload(msg)
	if err != nil {
		return Permanent(err)
	}

	if msg.Topic != "" {
		arn, ok := p.topicArns[msg.Topic]
		if !ok {
			return Permanent(fmt.Errorf("sns: no topic arn configured for %q", msg.Topic))
		}
		return p.publish(ctx, &sns.PublishInput{
			TopicArn:         aws.String(arn),
			Message:          aws.String(payload),
			MessageStructure: aws.String("json"),
		})
	}

	tokens := msg.Tokens
	if msg.Token != "" {
		tokens = []string{msg.Token}
	}

	var firstErr error
	sent := 0
	for _, token := range tokens {
		if err := p.sendToToken(ctx, token, payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	if sent == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

func (p *SNSProvider) sendToToken(ctx context.Context, token, payload string) error {
	endpoint, err := p.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.platformAppArn),
		Token:                  aws.String(token),
	})
	if err != nil {
		return classifySNSError(err)
	}
	return p.publish(ctx, &sns.PublishInput{
		TargetArn:        endpoint.EndpointArn,
		Message:          aws.String(payload),
		MessageStructure: aws.String("json"),
	})
}

func (p *SNSProvider) publish(ctx context.Context, input *sns.PublishInput) error {
	if _, err := p.client.Publish(ctx, input); err != nil {
		return classifySNSError(err)
	}
	return nil
}

// snsPayload builds the per-platform JSON message SNS expects with MessageStructure=json.
func snsPayload(msg *PushMessage) (string, error) {
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         msg.Data,
	})
	if err != nil {
		return "", fmt.Errorf("sns: encode gcm payload: %w", err)
	}
	out, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", fmt.Errorf("sns: encode message: %w", err)
	}
	return string(out), nil
}

func classifySNSError(err error) error {
	var disabled *types.EndpointDisabledException
	var invalid *types.InvalidParameterException
	var notFound *types.NotFoundException
	if errors.As(err, &disabled) || errors.As(err, &invalid) || errors.As(err, &notFound) {
		return Permanent(fmt.Errorf("sns: %w", err))
	}
	return fmt.Errorf("sns: %w", err)
}
