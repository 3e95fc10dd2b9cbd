// internal/delivery/ses.go

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsclients "ctp-notifications/internal/common/aws"
	"ctp-notifications/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the email surface used by SESProvider.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendTemplatedEmail(ctx context.Context, params *ses.SendTemplatedEmailInput, optFns ...func(*ses.Options)) (*ses.SendTemplatedEmailOutput, error)
}

// SESProvider sends plain emails with SendEmail and template units with SendTemplatedEmail,
// using the unit's template id as the SES template name.
type SESProvider struct {
	client           SESService
	from             Sender
	configurationSet string
}

func NewSESProvider(client SESService, from Sender, configurationSet string) *SESProvider {
	return &SESProvider{client: client, from: from, configurationSet: configurationSet}
}

func NewSESProviderFromConfig(ctx context.Context, cfg config.AWSConfig, from Sender, configurationSet string) (*SESProvider, error) {
	clients, err := awsclients.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSESProvider(clients.SES(), from, configurationSet), nil
}

func (p *SESProvider) Name() string { return ProviderSES }

func (p *SESProvider) Send(ctx context.Context, msg *EmailMessage) error {
	destination := &types.Destination{ToAddresses: []string{msg.To}}
	source := aws.String(p.source())
	var configSet *string
	if p.configurationSet != "" {
		configSet = aws.String(p.configurationSet)
	}

	if msg.IsTemplate() {
		data, err := json.Marshal(msg.TemplateData)
		if err != nil {
			return Permanent(fmt.Errorf("ses: encode template data: %w", err))
		}
		_, err = p.client.SendTemplatedEmail(ctx, &ses.SendTemplatedEmailInput{
			Destination:          destination,
			Source:               source,
			Template:             aws.String(msg.TemplateID),
			TemplateData:         aws.String(string(data)),
			ConfigurationSetName: configSet,
		})
		return classifySESError(err)
	}

	_, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: destination,
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
			},
		},
		Source:               source,
		ConfigurationSetName: configSet,
	})
	return classifySESError(err)
}

func (p *SESProvider) source() string {
	if p.from.Name == "" {
		return p.from.Email
	}
	return fmt.Sprintf("%s <%s>", p.from.Name, p.from.Email)
}

func classifySESError(err error) error {
	if err == nil {
		return nil
	}
	var rejected *types.MessageRejected
	var noTemplate *types.TemplateDoesNotExistException
	var unverified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &rejected) || errors.As(err, &noTemplate) || errors.As(err, &unverified) {
		return Permanent(fmt.Errorf("ses: %w", err))
	}
	return fmt.Errorf("ses: %w", err)
}
