package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultClientTimeout = 15 * time.Second

func newRestyClient() *resty.Client {
	client := resty.New()
	client.SetTimeout(defaultClientTimeout)
	client.SetRetryCount(0)

	return client
}

func validateClientArgs(baseURL string, client *resty.Client) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return "", fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if client == nil {
		return "", fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultClientTimeout)
	}
	client.SetRetryCount(0)

	return strings.TrimRight(trimmed, "/"), nil
}

func requestError(err error) *ProviderError {
	return &ProviderError{
		Message:   "provider request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

func statusError(response *resty.Response) *ProviderError {
	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())

	message := fmt.Sprintf("provider returned status %d", statusCode)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &ProviderError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func checkResponse(response *resty.Response, err error) error {
	if err != nil {
		return requestError(err)
	}
	if response == nil {
		return &ProviderError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}
	if response.IsSuccess() {
		return nil
	}

	return statusError(response)
}
