package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"loanportal/internal/servicetoken"
	"loanportal/pkg/domain"
)

// PortalAudience is the service-token audience the portal accepts.
const PortalAudience = "portal"

// ApplicationClaimer links or creates the portal application of a new user.
type ApplicationClaimer interface {
	ClaimApplication(ctx context.Context, user domain.User, tempUserID string) error
}

// HTTPPortalClient calls the portal's internal claim endpoint with a signed
// service token.
type HTTPPortalClient struct {
	baseURL    string
	signer     *servicetoken.Signer
	httpClient *http.Client
}

func NewPortalClient(baseURL string, signer *servicetoken.Signer, httpClient *http.Client) (*HTTPPortalClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("portal URL is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("internal signer is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPortalClient{baseURL: baseURL, signer: signer, httpClient: httpClient}, nil
}

func (c *HTTPPortalClient) ClaimApplication(ctx context.Context, user domain.User, tempUserID string) error {
	payload, err := json.Marshal(map[string]string{
		"userId":     user.ID,
		"email":      user.Email,
		"tempUserId": strings.TrimSpace(tempUserID),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/applications/claim", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	token, err := c.signer.Sign(PortalAudience)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("portal claim error: %s", msg)
	}
	return nil
}
