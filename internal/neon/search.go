package neon

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Account search wire types. The search endpoint takes structured
// field/operator/value triples and pages through results.
type searchRequest struct {
	SearchFields []searchField `json:"searchFields"`
	OutputFields []string      `json:"outputFields"`
	Pagination   pagination    `json:"pagination"`
}

type searchField struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type pagination struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

type searchResponse struct {
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		TotalPages  int `json:"totalPages"`
	} `json:"pagination"`
	SearchResults []map[string]string `json:"searchResults"`
}

// SearchMemberIDs returns the account IDs of every member whose
// current membership status is Active, plus staff accounts whose
// access does not depend on a membership term. Used by the batch
// runner to enumerate accounts worth reconciling.
func (c *Client) SearchMemberIDs(ctx context.Context, pageSize int) ([]int, error) {
	seen := make(map[int]struct{})
	var ids []int

	for _, criteria := range []searchField{
		{Field: "Account Current Membership Status", Operator: "EQUAL", Value: "Active"},
		{Field: fieldStaff, Operator: "EQUAL", Value: "Yes"},
		{Field: fieldOpenPathID, Operator: "NOT_BLANK"},
	} {
		pageIDs, err := c.searchAccounts(ctx, criteria, pageSize)
		if err != nil {
			return nil, err
		}
		for _, id := range pageIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (c *Client) searchAccounts(ctx context.Context, criteria searchField, pageSize int) ([]int, error) {
	var ids []int
	url := c.config.BaseURL + "/accounts/search"

	for page := 0; ; page++ {
		body := searchRequest{
			SearchFields: []searchField{criteria},
			OutputFields: []string{"Account ID"},
			Pagination:   pagination{CurrentPage: page, PageSize: pageSize},
		}

		var resp searchResponse
		if err := c.do(ctx, http.MethodPost, url, body, &resp); err != nil {
			return nil, fmt.Errorf("searching accounts (%s): %w", criteria.Field, err)
		}

		for _, row := range resp.SearchResults {
			raw, ok := row["Account ID"]
			if !ok {
				c.logger.Warn("Search result missing Account ID", "row", row)
				continue
			}
			id, err := strconv.Atoi(raw)
			if err != nil {
				c.logger.Warn("Malformed Account ID in search result", "value", raw)
				continue
			}
			ids = append(ids, id)
		}

		if page >= resp.Pagination.TotalPages-1 {
			break
		}
	}

	return ids, nil
}
