// internal/delivery/provider.go

package delivery

import (
	"context"
	"fmt"

	"ctp-notifications/internal/common/config"
)

const (
	ProviderFCM      = "fcm"
	ProviderSNS      = "sns"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
)

// PushProvider sends one push unit to a token, a topic or a token batch.
type PushProvider interface {
	Name() string
	Send(ctx context.Context, msg *PushMessage) error
}

// EmailProvider sends one email unit.
type EmailProvider interface {
	Name() string
	Send(ctx context.Context, msg *EmailMessage) error
}

// Sender identifies the From address of outgoing mail.
type Sender struct {
	Email string
	Name  string
}

// NewProviders builds the push and email providers selected by configuration.
func NewProviders(ctx context.Context, cfg config.ProvidersConfig) (PushProvider, EmailProvider, error) {
	var push PushProvider
	switch cfg.Push.Provider {
	case ProviderFCM:
		client, err := NewFCMClient(ctx, cfg.Push.FCM.CredentialsFile, cfg.Push.FCM.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		push = NewFCMProvider(client)
	case ProviderSNS:
		p, err := NewSNSProviderFromConfig(ctx, cfg.AWS, cfg.Push.SNS.PlatformApplicationArn, cfg.Push.SNS.TopicArns)
		if err != nil {
			return nil, nil, err
		}
		push = p
	default:
		return nil, nil, fmt.Errorf("unknown push provider %q", cfg.Push.Provider)
	}

	from := Sender{Email: cfg.Email.FromEmail, Name: cfg.Email.FromName}
	var email EmailProvider
	switch cfg.Email.Provider {
	case ProviderSendGrid:
		email = NewSendGridProvider(NewSendGridClient(cfg.Email.SendGrid.APIKey), from)
	case ProviderSES:
		p, err := NewSESProviderFromConfig(ctx, cfg.AWS, from, cfg.Email.SES.ConfigurationSet)
		if err != nil {
			return nil, nil, err
		}
		email = p
	default:
		return nil, nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}

	return push, email, nil
}
