package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ListAccounts reads Account records in pages of pageSize using keyset
// pagination on Id, optionally restricted by an extra SOQL WHERE clause.
func ListAccounts(ctx context.Context, c Client, filter string, limit, pageSize int) ([]Account, error) {
	if pageSize <= 0 {
		pageSize = 200
	}

	var all []Account
	lastID := ""
	for {
		var conds []string
		if filter != "" {
			conds = append(conds, "("+filter+")")
		}
		if lastID != "" {
			conds = append(conds, fmt.Sprintf("Id > '%s'", lastID))
		}
		soql := "SELECT Id, Name, Website, Industry FROM Account"
		if len(conds) > 0 {
			soql += " WHERE " + strings.Join(conds, " AND ")
		}
		soql += fmt.Sprintf(" ORDER BY Id LIMIT %d", pageSize)

		var page []Account
		if err := c.Query(ctx, soql, &page); err != nil {
			return nil, eris.Wrap(err, "sf: list accounts")
		}
		all = append(all, page...)

		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if len(page) < pageSize {
			return all, nil
		}
		lastID = page[len(page)-1].ID
	}
}

// WriteResearch writes the serialized research payload to a single field on
// the Account record.
func WriteResearch(ctx context.Context, c Client, accountID, field, payload string) error {
	if accountID == "" {
		return eris.New("sf: account id is required")
	}
	if field == "" {
		return eris.New("sf: write field is required")
	}
	return c.UpdateOne(ctx, "Account", accountID, map[string]any{field: payload})
}
