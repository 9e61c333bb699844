package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

type createZoneRequest struct {
	Name string `json:"name"`
}

type createZoneResponse struct {
	ID          string   `json:"id"`
	Nameservers []string `json:"nameservers"`
}

type zoneResponse struct {
	ID          string   `json:"id"`
	Nameservers []string `json:"nameservers"`
}

type propagationResponse struct {
	Propagated  bool     `json:"propagated"`
	Nameservers []string `json:"nameservers"`
}

type createRecordsRequest struct {
	ZoneID string `json:"zoneId"`
	Domain string `json:"domain"`
	// Record kinds provisioned for cold-email sending domains.
	Kinds []string `json:"kinds"`
}

var sendingRecordKinds = []string{"MX", "SPF", "DKIM", "DMARC"}

// DNSHostProvider talks to the DNS hosting API over HTTP.
type DNSHostProvider struct {
	client  *resty.Client
	baseURL string
	token   string
}

func NewDNSHostProvider(baseURL, token string) (*DNSHostProvider, error) {
	return NewDNSHostProviderWithClient(baseURL, token, newRestyClient())
}

func NewDNSHostProviderWithClient(baseURL, token string, client *resty.Client) (*DNSHostProvider, error) {
	normalized, err := validateClientArgs(baseURL, client)
	if err != nil {
		return nil, err
	}

	return &DNSHostProvider{
		client:  client,
		baseURL: normalized,
		token:   strings.TrimSpace(token),
	}, nil
}

func (p *DNSHostProvider) request(ctx context.Context) *resty.Request {
	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if p.token != "" {
		req.SetHeader("Authorization", "Bearer "+p.token)
	}

	return req
}

func (p *DNSHostProvider) CreateZone(ctx context.Context, domainName string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("dns provider is not initialized")
	}
	if strings.TrimSpace(domainName) == "" {
		return "", fmt.Errorf("domain name is required")
	}

	var result createZoneResponse

	response, err := p.request(ctx).
		SetBody(createZoneRequest{Name: strings.ToLower(strings.TrimSpace(domainName))}).
		SetResult(&result).
		Post(p.baseURL + "/zones")
	if err := checkResponse(response, err); err != nil {
		return "", err
	}

	if strings.TrimSpace(result.ID) == "" {
		return "", &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    "zone created without an id",
		}
	}

	return result.ID, nil
}

func (p *DNSHostProvider) Nameservers(ctx context.Context, zoneID string) ([2]string, error) {
	var pair [2]string

	if p == nil || p.client == nil {
		return pair, fmt.Errorf("dns provider is not initialized")
	}
	if strings.TrimSpace(zoneID) == "" {
		return pair, fmt.Errorf("zone id is required")
	}

	var result zoneResponse

	response, err := p.request(ctx).
		SetResult(&result).
		Get(p.baseURL + "/zones/" + zoneID)
	if err := checkResponse(response, err); err != nil {
		return pair, err
	}

	if len(result.Nameservers) < 2 {
		return pair, &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    fmt.Sprintf("zone %s has %d nameservers, need 2", zoneID, len(result.Nameservers)),
		}
	}

	pair[0] = strings.ToLower(strings.TrimSpace(result.Nameservers[0]))
	pair[1] = strings.ToLower(strings.TrimSpace(result.Nameservers[1]))

	return pair, nil
}

func (p *DNSHostProvider) CheckPropagation(ctx context.Context, domainName string, nameservers [2]string) (bool, error) {
	if p == nil || p.client == nil {
		return false, fmt.Errorf("dns provider is not initialized")
	}
	if strings.TrimSpace(domainName) == "" {
		return false, fmt.Errorf("domain name is required")
	}

	var result propagationResponse

	response, err := p.request(ctx).
		SetQueryParam("domain", strings.ToLower(strings.TrimSpace(domainName))).
		SetResult(&result).
		Get(p.baseURL + "/propagation")
	if err := checkResponse(response, err); err != nil {
		return false, err
	}

	if !result.Propagated {
		return false, nil
	}

	observed := make(map[string]struct{}, len(result.Nameservers))
	for _, ns := range result.Nameservers {
		observed[strings.ToLower(strings.TrimSpace(ns))] = struct{}{}
	}
	for _, want := range nameservers {
		if want == "" {
			continue
		}
		if _, ok := observed[want]; !ok {
			return false, nil
		}
	}

	return true, nil
}

func (p *DNSHostProvider) CreateRecords(ctx context.Context, zoneID, domainName string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("dns provider is not initialized")
	}
	if strings.TrimSpace(zoneID) == "" {
		return fmt.Errorf("zone id is required")
	}
	if strings.TrimSpace(domainName) == "" {
		return fmt.Errorf("domain name is required")
	}

	response, err := p.request(ctx).
		SetBody(createRecordsRequest{
			ZoneID: zoneID,
			Domain: strings.ToLower(strings.TrimSpace(domainName)),
			Kinds:  sendingRecordKinds,
		}).
		Post(p.baseURL + "/zones/" + zoneID + "/records")

	return checkResponse(response, err)
}

func (p *DNSHostProvider) DeleteZone(ctx context.Context, domainName string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("dns provider is not initialized")
	}
	if strings.TrimSpace(domainName) == "" {
		return fmt.Errorf("domain name is required")
	}

	response, err := p.request(ctx).
		SetQueryParam("domain", strings.ToLower(strings.TrimSpace(domainName))).
		Delete(p.baseURL + "/zones")

	return checkResponse(response, err)
}
