// internal/delivery/fcm.go

package delivery

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMClient is the subset of *messaging.Client used for push delivery.
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// NewFCMClient creates a messaging client from a service account file. An empty file falls
// back to application default credentials.
func NewFCMClient(ctx context.Context, credentialsFile, projectID string) (*messaging.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var fbCfg *firebase.Config
	if projectID != "" {
		fbCfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return client, nil
}

type FCMProvider struct {
	client FCMClient
}

func NewFCMProvider(client FCMClient) *FCMProvider {
	return &FCMProvider{client: client}
}

func (p *FCMProvider) Name() string { return ProviderFCM }

func (p *FCMProvider) Send(ctx context.Context, msg *PushMessage) error {
	notification := &messaging.Notification{Title: msg.Title, Body: msg.Body}

	if len(msg.Tokens) > 0 {
		resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       msg.Tokens,
			Notification: notification,
			Data:         msg.Data,
		})
		if err != nil {
			return classifyFCMError(err)
		}
		return multicastResult(resp)
	}

	_, err := p.client.Send(ctx, &messaging.Message{
		Token:        msg.Token,
		Topic:        msg.Topic,
		Notification: notification,
		Data:         msg.Data,
	})
	if err != nil {
		return classifyFCMError(err)
	}
	return nil
}

// multicastResult accepts a batch when any token succeeded; retrying a partial batch would
// deliver twice to the tokens that already received it.
func multicastResult(resp *messaging.BatchResponse) error {
	if resp == nil || resp.FailureCount == 0 || resp.SuccessCount > 0 {
		return nil
	}

	var firstErr error
	allPermanent := true
	for _, r := range resp.Responses {
		if r == nil || r.Success {
			continue
		}
		classified := classifyFCMError(r.Error)
		if firstErr == nil {
			firstErr = classified
		}
		if !errors.Is(classified, ErrPermanent) {
			allPermanent = false
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("multicast failed for all %d tokens", resp.FailureCount)
	}
	if allPermanent {
		return Permanent(fmt.Errorf("multicast failed for all %d tokens: %w", resp.FailureCount, firstErr))
	}
	return fmt.Errorf("multicast failed for all %d tokens: %w", resp.FailureCount, firstErr)
}

func classifyFCMError(err error) error {
	if err == nil {
		return nil
	}
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) || errorutils.IsInvalidArgument(err) {
		return Permanent(fmt.Errorf("fcm: %w", err))
	}
	return fmt.Errorf("fcm: %w", err)
}
