package openpath

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/asmbly/membersync/internal/config"
)

// StatusError reports an unexpected HTTP status from the OpenPath
// API. Want carries the status the contract requires.
type StatusError struct {
	Op     string
	URL    string
	Status int
	Want   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openpath: %s %s returned status %d; expected %d",
		e.Op, e.URL, e.Status, e.Want)
}

// Client talks to the OpenPath org-scoped REST API.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	config     config.OpenPathConfig
}

func NewClient(logger *slog.Logger, cfg config.OpenPathConfig) *Client {
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     cfg,
	}
}

// User is an OpenPath user record. CreatedAt distinguishes genuinely
// new users from resurrected soft-deleted ones.
type User struct {
	ID         int64    `json:"id"`
	CreatedAt  opTime   `json:"createdAt"`
	ExternalID string   `json:"externalId"`
	Identity   Identity `json:"identity"`
}

type Identity struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Credential struct {
	ID int64 `json:"id"`
}

// opTime parses the API's fixed-format UTC timestamps.
type opTime struct {
	time.Time
}

const opTimeLayout = "2006-01-02T15:04:05.000Z"

func (t *opTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(opTimeLayout, raw)
	if err != nil {
		return fmt.Errorf("parsing openpath timestamp %q: %w", raw, err)
	}
	t.Time = parsed.UTC()
	return nil
}

func (t opTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(opTimeLayout))
}

// UserProfile is the request shape for creating and patching users.
type UserProfile struct {
	Identity   Identity `json:"identity"`
	ExternalID string   `json:"externalId"`
	// RemoteUnlock stays off for automatically provisioned users.
	HasRemoteUnlock bool `json:"hasRemoteUnlock"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

func (c *Client) orgURL(format string, args ...any) string {
	return fmt.Sprintf("%s/orgs/%d%s", c.config.BaseURL, c.config.OrgID, fmt.Sprintf(format, args...))
}

// GetGroups returns the groups currently attached to a user.
func (c *Client) GetGroups(ctx context.Context, userID int64) ([]Group, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("openpath: invalid user id %d", userID)
	}
	var envelope dataEnvelope[[]Group]
	url := c.orgURL("/users/%d/groups", userID)
	if err := c.do(ctx, http.MethodGet, url, nil, http.StatusOK, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

type replaceGroupsRequest struct {
	GroupIDs []int64 `json:"groupIds"`
}

// ReplaceGroups swaps the user's whole group assignment for the given
// set. The API has no incremental add/remove; the contract is a 204.
func (c *Client) ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	if userID <= 0 {
		return fmt.Errorf("openpath: invalid user id %d", userID)
	}
	if groupIDs == nil {
		groupIDs = []int64{}
	}
	url := c.orgURL("/users/%d/groupIds", userID)
	return c.do(ctx, http.MethodPut, url, replaceGroupsRequest{GroupIDs: groupIDs}, http.StatusNoContent, nil)
}

// CreateUser creates a user, expecting a 201. OpenPath archives
// deleted users and silently hands back the archived record when the
// email matches, so callers must inspect CreatedAt.
func (c *Client) CreateUser(ctx context.Context, profile UserProfile) (User, error) {
	var envelope dataEnvelope[User]
	url := c.orgURL("/users")
	if err := c.do(ctx, http.MethodPost, url, profile, http.StatusCreated, &envelope); err != nil {
		return User{}, err
	}
	return envelope.Data, nil
}

// PatchUser overwrites identity fields on an existing user. Used to
// refresh resurrected records, which keep their stale identity.
func (c *Client) PatchUser(ctx context.Context, userID int64, profile UserProfile) error {
	if userID <= 0 {
		return fmt.Errorf("openpath: invalid user id %d", userID)
	}
	url := c.orgURL("/users/%d", userID)
	return c.do(ctx, http.MethodPatch, url, profile, http.StatusOK, nil)
}

// ListCredentials returns all credentials attached to a user.
func (c *Client) ListCredentials(ctx context.Context, userID int64) ([]Credential, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("openpath: invalid user id %d", userID)
	}
	var envelope dataEnvelope[[]Credential]
	url := c.orgURL("/users/%d/credentials?offset=0&sort=id&order=asc", userID)
	if err := c.do(ctx, http.MethodGet, url, nil, http.StatusOK, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) DeleteCredential(ctx context.Context, userID, credentialID int64) error {
	if userID <= 0 || credentialID <= 0 {
		return fmt.Errorf("openpath: invalid user %d / credential %d", userID, credentialID)
	}
	url := c.orgURL("/users/%d/credentials/%d", userID, credentialID)
	return c.do(ctx, http.MethodDelete, url, nil, http.StatusNoContent, nil)
}

type createCredentialRequest struct {
	Mobile           mobileCredential `json:"mobile"`
	CredentialTypeID int              `json:"credentialTypeId"`
}

type mobileCredential struct {
	Name string `json:"name"`
}

// CreateMobileCredential creates (but does not activate) a mobile
// credential for the user.
func (c *Client) CreateMobileCredential(ctx context.Context, userID int64) (Credential, error) {
	if userID <= 0 {
		return Credential{}, fmt.Errorf("openpath: invalid user id %d", userID)
	}
	body := createCredentialRequest{
		Mobile:           mobileCredential{Name: "Automatic Mobile Credential"},
		CredentialTypeID: 1,
	}
	var envelope dataEnvelope[Credential]
	url := c.orgURL("/users/%d/credentials", userID)
	if err := c.do(ctx, http.MethodPost, url, body, http.StatusCreated, &envelope); err != nil {
		return Credential{}, err
	}
	return envelope.Data, nil
}

// ActivateMobileCredential kicks off mobile setup for a credential
// created by CreateMobileCredential.
func (c *Client) ActivateMobileCredential(ctx context.Context, userID, credentialID int64) error {
	if userID <= 0 || credentialID <= 0 {
		return fmt.Errorf("openpath: invalid user %d / credential %d", userID, credentialID)
	}
	url := c.orgURL("/users/%d/credentials/%d/setupMobile", userID, credentialID)
	return c.do(ctx, http.MethodPost, url, nil, http.StatusNoContent, nil)
}

// ListUsers returns all users in the org. The endpoint caps out at
// 1000 users per page; the org is far below that.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var envelope dataEnvelope[[]User]
	url := c.orgURL("/users?offset=0&sort=identity.lastName&order=asc")
	if err := c.do(ctx, http.MethodGet, url, nil, http.StatusOK, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, url string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, url, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, url, err)
	}
	req.SetBasicAuth(c.config.APIUser, c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return &StatusError{Op: method, URL: url, Status: resp.StatusCode, Want: wantStatus}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, url, err)
		}
	}
	return nil
}
