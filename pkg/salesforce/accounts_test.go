package salesforce

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	queries []string
	pages   [][]Account
	updates []map[string]any
	queryErr  error
	updateErr error
}

func (f *fakeClient) Query(ctx context.Context, soql string, out any) error {
	f.queries = append(f.queries, soql)
	if f.queryErr != nil {
		return f.queryErr
	}
	accounts := out.(*[]Account)
	if len(f.pages) == 0 {
		*accounts = nil
		return nil
	}
	*accounts = f.pages[0]
	f.pages = f.pages[1:]
	return nil
}

func (f *fakeClient) UpdateOne(ctx context.Context, sObjectName, id string, fields map[string]any) error {
	fields["Id"] = id
	f.updates = append(f.updates, fields)
	return f.updateErr
}

func TestListAccounts_SinglePage(t *testing.T) {
	fc := &fakeClient{pages: [][]Account{
		{{ID: "001A", Name: "Acme"}, {ID: "001B", Name: "Beta"}},
	}}
	accounts, err := ListAccounts(context.Background(), fc, "", 0, 200)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.Len(t, fc.queries, 1)
	assert.Contains(t, fc.queries[0], "ORDER BY Id LIMIT 200")
}

func TestListAccounts_Paged(t *testing.T) {
	fc := &fakeClient{pages: [][]Account{
		{{ID: "001A"}, {ID: "001B"}},
		{{ID: "001C"}},
	}}
	accounts, err := ListAccounts(context.Background(), fc, "", 0, 2)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
	require.Len(t, fc.queries, 2)
	assert.Contains(t, fc.queries[1], "Id > '001B'")
}

func TestListAccounts_FilterAndLimit(t *testing.T) {
	fc := &fakeClient{pages: [][]Account{
		{{ID: "001A"}, {ID: "001B"}, {ID: "001C"}},
	}}
	accounts, err := ListAccounts(context.Background(), fc, "Industry = 'Manufacturing'", 2, 200)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.True(t, strings.Contains(fc.queries[0], "WHERE (Industry = 'Manufacturing')"))
}

func TestListAccounts_QueryError(t *testing.T) {
	fc := &fakeClient{queryErr: eris.New("boom")}
	_, err := ListAccounts(context.Background(), fc, "", 0, 10)
	assert.Error(t, err)
}

func TestWriteResearch(t *testing.T) {
	fc := &fakeClient{}
	err := WriteResearch(context.Background(), fc, "001A", "Research_Notes__c", `{"x":1}`)
	require.NoError(t, err)
	require.Len(t, fc.updates, 1)
	assert.Equal(t, `{"x":1}`, fc.updates[0]["Research_Notes__c"])
	assert.Equal(t, "001A", fc.updates[0]["Id"])
}

func TestWriteResearch_Validation(t *testing.T) {
	fc := &fakeClient{}
	assert.Error(t, WriteResearch(context.Background(), fc, "", "F__c", "x"))
	assert.Error(t, WriteResearch(context.Background(), fc, "001A", "", "x"))
	assert.Empty(t, fc.updates)
}
