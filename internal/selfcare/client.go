// Package selfcare wraps the external onboarding service API used to
// claim memberships.
package selfcare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Roles accepted by the onboarding service.
const (
	RoleManager  = "MANAGER"
	RoleDelegate = "DELEGATE"
)

// User is one person attached to a claim.
type User struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	TaxCode string `json:"taxCode"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// ImportContract describes the contract file backing the claim.
type ImportContract struct {
	ContractType string `json:"contractType"`
	FileName     string `json:"fileName"`
	FilePath     string `json:"filePath"`
}

// Claim is the onboarding submission for one organization.
type Claim struct {
	ExternalInstitutionID string         `json:"-"`
	ImportContract        ImportContract `json:"importContract"`
	Users                 []User         `json:"users"`
}

// Response carries the raw outcome of a submission; only status 201 means
// the claim was accepted.
type Response struct {
	Status int
	Body   []byte
}

// Accepted reports whether the service acknowledged the claim.
func (r Response) Accepted() bool { return r.Status == http.StatusCreated }

// Client submits membership claims.
type Client interface {
	Submit(ctx context.Context, claim Claim) (Response, error)
}

// HTTPClient talks to the onboarding service over its REST API, passing
// the subscription key on every request.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		log:     log.Named("selfcare.client"),
	}
}

func (c *HTTPClient) Submit(ctx context.Context, claim Claim) (Response, error) {
	payload, err := json.Marshal(claim)
	if err != nil {
		return Response{}, fmt.Errorf("encode claim: %w", err)
	}

	endpoint := fmt.Sprintf("%s/onboarding/%s",
		c.baseURL, url.PathEscape(claim.ExternalInstitutionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build claim request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("submit claim: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read claim response: %w", err)
	}

	c.log.Info("claim submitted",
		zap.String("institution", claim.ExternalInstitutionID),
		zap.Int("status", resp.StatusCode),
	)
	return Response{Status: resp.StatusCode, Body: body}, nil
}
