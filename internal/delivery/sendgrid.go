// internal/delivery/sendgrid.go

package delivery

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridClient is the subset of *sendgrid.Client used for email delivery.
type SendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

func NewSendGridClient(apiKey string) *sendgrid.Client {
	return sendgrid.NewSendClient(apiKey)
}

type SendGridProvider struct {
	client SendGridClient
	from   Sender
}

func NewSendGridProvider(client SendGridClient, from Sender) *SendGridProvider {
	return &SendGridProvider{client: client, from: from}
}

func (p *SendGridProvider) Name() string { return ProviderSendGrid }

func (p *SendGridProvider) Send(ctx context.Context, msg *EmailMessage) error {
	resp, err := p.client.SendWithContext(ctx, buildSendGridMail(p.from, msg))
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	return sendGridStatus(resp)
}

func buildSendGridMail(from Sender, msg *EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(from.Name, from.Email))

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))

	if msg.IsTemplate() {
		m.SetTemplateID(msg.TemplateID)
		for k, v := range msg.TemplateData {
			p.SetDynamicTemplateData(k, v)
		}
	} else {
		m.Subject = msg.Subject
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	m.AddPersonalizations(p)
	return m
}

// sendGridStatus treats throttling and server errors as retryable and every other
// 4xx as a rejected request.
func sendGridStatus(resp *rest.Response) error {
	if resp == nil || resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return Permanent(err)
}
