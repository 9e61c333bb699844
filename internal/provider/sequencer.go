package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

type uploadAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SequencerProvider talks to the sending-platform API over HTTP.
type SequencerProvider struct {
	client  *resty.Client
	baseURL string
}

func NewSequencerProvider(baseURL string) (*SequencerProvider, error) {
	return NewSequencerProviderWithClient(baseURL, newRestyClient())
}

func NewSequencerProviderWithClient(baseURL string, client *resty.Client) (*SequencerProvider, error) {
	normalized, err := validateClientArgs(baseURL, client)
	if err != nil {
		return nil, err
	}

	return &SequencerProvider{
		client:  client,
		baseURL: normalized,
	}, nil
}

func (p *SequencerProvider) ValidateCredentials(ctx context.Context, accountID string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("sequencer provider is not initialized")
	}
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("sequencer account id is required")
	}

	response, err := p.client.R().
		SetContext(ctx).
		Get(p.baseURL + "/accounts/" + accountID)

	return checkResponse(response, err)
}

func (p *SequencerProvider) UploadAccount(ctx context.Context, accountID, email, password string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("sequencer provider is not initialized")
	}
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("sequencer account id is required")
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(uploadAccountRequest{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}).
		Post(p.baseURL + "/accounts/" + accountID + "/email-accounts")

	return checkResponse(response, err)
}
