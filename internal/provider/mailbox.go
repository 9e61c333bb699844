package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

type verifyLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type addDomainRequest struct {
	Domain string `json:"domain"`
}

type createMailboxRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type enableSMTPRequest struct {
	Email string `json:"email"`
}

// MailboxPlatformProvider talks to the mailbox platform admin API over HTTP.
type MailboxPlatformProvider struct {
	client  *resty.Client
	baseURL string
}

func NewMailboxPlatformProvider(baseURL string) (*MailboxPlatformProvider, error) {
	return NewMailboxPlatformProviderWithClient(baseURL, newRestyClient())
}

func NewMailboxPlatformProviderWithClient(baseURL string, client *resty.Client) (*MailboxPlatformProvider, error) {
	normalized, err := validateClientArgs(baseURL, client)
	if err != nil {
		return nil, err
	}

	return &MailboxPlatformProvider{
		client:  client,
		baseURL: normalized,
	}, nil
}

func (p *MailboxPlatformProvider) request(ctx context.Context) *resty.Request {
	return p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
}

func (p *MailboxPlatformProvider) VerifyLogin(ctx context.Context, login, password string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("mailbox provider is not initialized")
	}
	if strings.TrimSpace(login) == "" {
		return fmt.Errorf("login is required")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	response, err := p.request(ctx).
		SetBody(verifyLoginRequest{Login: login, Password: password}).
		Post(p.baseURL + "/login/verify")

	return checkResponse(response, err)
}

func (p *MailboxPlatformProvider) AddDomain(ctx context.Context, tenantID, domainName string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("mailbox provider is not initialized")
	}
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(domainName) == "" {
		return fmt.Errorf("domain name is required")
	}

	response, err := p.request(ctx).
		SetBody(addDomainRequest{Domain: strings.ToLower(strings.TrimSpace(domainName))}).
		Post(p.baseURL + "/tenants/" + tenantID + "/domains")

	return checkResponse(response, err)
}

func (p *MailboxPlatformProvider) CreateMailbox(ctx context.Context, tenantID, email, password string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("mailbox provider is not initialized")
	}
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	response, err := p.request(ctx).
		SetBody(createMailboxRequest{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}).
		Post(p.baseURL + "/tenants/" + tenantID + "/mailboxes")

	return checkResponse(response, err)
}

func (p *MailboxPlatformProvider) EnableSMTPAuth(ctx context.Context, tenantID, email string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("mailbox provider is not initialized")
	}
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}

	response, err := p.request(ctx).
		SetBody(enableSMTPRequest{Email: strings.ToLower(strings.TrimSpace(email))}).
		Post(p.baseURL + "/tenants/" + tenantID + "/smtp-auth")

	return checkResponse(response, err)
}

func (p *MailboxPlatformProvider) RemoveDomain(ctx context.Context, domainName string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("mailbox provider is not initialized")
	}
	if strings.TrimSpace(domainName) == "" {
		return fmt.Errorf("domain name is required")
	}

	response, err := p.request(ctx).
		SetQueryParam("domain", strings.ToLower(strings.TrimSpace(domainName))).
		Delete(p.baseURL + "/domains")

	return checkResponse(response, err)
}
