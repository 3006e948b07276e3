package neon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/asmbly/membersync/internal/config"
)

var ErrMemberNotFound = errors.New("member not found")

// StatusError reports an unexpected HTTP status from the Neon API.
type StatusError struct {
	Op     string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("neon: %s %s returned status %d", e.Op, e.URL, e.Status)
}

// Client is a Neon CRM v2 API client covering the account operations
// the sync engine needs.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	config     config.NeonConfig
}

func NewClient(logger *slog.Logger, cfg config.NeonConfig) *Client {
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     cfg,
	}
}

// Wire types for the account payload. Checkbox custom fields report
// their state through option values.
type accountEnvelope struct {
	IndividualAccount *account `json:"individualAccount"`
	CompanyAccount    *account `json:"companyAccount"`
}

type account struct {
	AccountID           string        `json:"accountId"`
	PrimaryContact      contact       `json:"primaryContact"`
	AccountCustomFields []customField `json:"accountCustomFields"`
}

type contact struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	PreferredName string `json:"preferredName"`
	Email1        string `json:"email1"`
}

type customField struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Value        string        `json:"value"`
	OptionValues []optionValue `json:"optionValues"`
}

type optionValue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetMemberByID fetches an account and maps it onto a Member. Returns
// ErrMemberNotFound when the account does not exist.
func (c *Client) GetMemberByID(ctx context.Context, accountID int) (Member, error) {
	var envelope accountEnvelope

	url := fmt.Sprintf("%s/accounts/%d", c.config.BaseURL, accountID)
	if err := c.do(ctx, http.MethodGet, url, nil, &envelope); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
			return Member{}, fmt.Errorf("account %d: %w", accountID, ErrMemberNotFound)
		}
		return Member{}, err
	}

	acct := envelope.IndividualAccount
	if acct == nil {
		acct = envelope.CompanyAccount
	}
	if acct == nil {
		return Member{}, fmt.Errorf("account %d: %w", accountID, ErrMemberNotFound)
	}

	return c.toMember(accountID, acct), nil
}

func (c *Client) toMember(accountID int, acct *account) Member {
	m := Member{
		AccountID:     accountID,
		FirstName:     acct.PrimaryContact.FirstName,
		LastName:      acct.PrimaryContact.LastName,
		PreferredName: acct.PrimaryContact.PreferredName,
		Email:         acct.PrimaryContact.Email1,
	}

	for _, field := range acct.AccountCustomFields {
		switch field.Name {
		case fieldOpenPathID:
			id, err := strconv.ParseInt(field.Value, 10, 64)
			if err != nil || id <= 0 {
				if field.Value != "" {
					c.logger.Warn("Malformed OpenPathID custom field",
						"account_id", accountID, "value", field.Value)
				}
				continue
			}
			m.OpenPathID = id
		case fieldExpiration:
			t, err := time.Parse("2006-01-02", field.Value)
			if err != nil {
				c.logger.Warn("Malformed membership expiration date",
					"account_id", accountID, "value", field.Value)
				continue
			}
			m.MembershipExpiration = t
		case fieldStaff:
			m.Staff = checked(field)
		case fieldLeader:
			m.Leader = checked(field)
		case fieldSuperSteward:
			m.SuperSteward = checked(field)
		case fieldSteward:
			m.Steward = checked(field)
		case fieldInstructor:
			m.Instructor = checked(field)
		case fieldCoWorking:
			m.CoWorking = checked(field)
		case fieldFacility:
			m.FacilityAccess = checked(field)
		case fieldShaperOrigin:
			m.ShaperOrigin = checked(field)
		case fieldDomino:
			m.Domino = checked(field)
		}
	}

	return m
}

func checked(field customField) bool {
	if len(field.OptionValues) > 0 {
		return true
	}
	return field.Value == "Yes" || field.Value == "true" || field.Value == "1"
}

type updateAccountRequest struct {
	IndividualAccount updateAccountBody `json:"individualAccount"`
}

type updateAccountBody struct {
	AccountCustomFields []updateCustomField `json:"accountCustomFields"`
}

type updateCustomField struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// UpdateOpenPathID writes the OpenPath user ID back onto the Neon
// account so the link survives the next reconciliation pass.
func (c *Client) UpdateOpenPathID(ctx context.Context, accountID int, openPathID int64) error {
	body := updateAccountRequest{
		IndividualAccount: updateAccountBody{
			AccountCustomFields: []updateCustomField{
				{ID: c.config.OpenPathFieldID, Value: strconv.FormatInt(openPathID, 10)},
			},
		},
	}

	url := fmt.Sprintf("%s/accounts/%d", c.config.BaseURL, accountID)
	if err := c.do(ctx, http.MethodPatch, url, body, nil); err != nil {
		return fmt.Errorf("updating OpenPathID for account %d: %w", accountID, err)
	}

	c.logger.Info("Stored OpenPath ID on Neon account",
		"account_id", accountID, "openpath_id", openPathID)
	return nil
}

// do issues a request with basic auth and decodes the response into
// out when provided. Non-2xx statuses become StatusError.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
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
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("NEON-API-VERSION", "2.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: method, URL: url, Status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, url, err)
		}
	}
	return nil
}
