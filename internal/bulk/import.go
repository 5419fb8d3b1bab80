package bulk

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
)

// NewSession assembles a bulk session from imported subjects. Sessions with
// subjects start ready; empty ones stay draft until subjects are added.
func NewSession(name string, selection model.SelectionConfig, subjects []model.Subject) *model.BulkSession {
	status := model.SessionStatusDraft
	if len(subjects) > 0 {
		status = model.SessionStatusReady
	}
	return &model.BulkSession{
		ID:        uuid.New().String(),
		Name:      name,
		Selection: selection,
		Status:    status,
		Subjects:  subjects,
		Total:     len(subjects),
		Results:   make(map[string]model.CompanyResult),
		CreatedAt: time.Now().UTC(),
	}
}

// subjectColumns maps recognized header names to Subject fields.
var subjectColumns = map[string]int{
	"name": 0, "company": 0, "company name": 0,
	"domain": 1, "website": 1, "url": 1,
	"industry": 2, "sector": 2,
	"crm id": 3, "crm_id": 3, "account id": 3,
}

// FromCSV reads subjects from a CSV file with a header row.
func FromCSV(path string) ([]model.Subject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "bulk: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "bulk: read csv header")
	}
	cols := mapColumns(header)
	if _, ok := cols["name"]; !ok {
		return nil, eris.New("bulk: csv has no name column")
	}

	var subjects []model.Subject
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "bulk: read csv row")
		}
		if s, ok := subjectFromRow(record, cols); ok {
			subjects = append(subjects, s)
		}
	}
	return subjects, nil
}

// FromXLSX reads subjects from the first sheet of an XLSX file with a
// header row.
func FromXLSX(path string) ([]model.Subject, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "bulk: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("bulk: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("bulk: xlsx sheet is empty")
	}

	cols := mapColumns(rowToStrings(sheet.Rows[0]))
	if _, ok := cols["name"]; !ok {
		return nil, eris.New("bulk: xlsx has no name column")
	}

	var subjects []model.Subject
	for _, row := range sheet.Rows[1:] {
		if s, ok := subjectFromRow(rowToStrings(row), cols); ok {
			subjects = append(subjects, s)
		}
	}
	return subjects, nil
}

// FromCRM pages accounts out of the CRM and maps them to subjects.
func FromCRM(ctx context.Context, client salesforce.Client, filter string, limit int) ([]model.Subject, error) {
	accounts, err := salesforce.ListAccounts(ctx, client, filter, limit, 200)
	if err != nil {
		return nil, err
	}

	subjects := make([]model.Subject, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Name == "" {
			continue
		}
		subjects = append(subjects, model.Subject{
			ID:       uuid.New().String(),
			Name:     normalizeName(acc.Name),
			Domain:   stripScheme(acc.Website),
			Industry: acc.Industry,
			CRMID:    acc.ID,
		})
	}
	return subjects, nil
}

func mapColumns(header []string) map[string]int {
	fields := []string{"name", "domain", "industry", "crm_id"}
	cols := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if fieldIdx, ok := subjectColumns[key]; ok {
			field := fields[fieldIdx]
			if _, seen := cols[field]; !seen {
				cols[field] = i
			}
		}
	}
	return cols
}

func subjectFromRow(record []string, cols map[string]int) (model.Subject, bool) {
	get := func(field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	name := normalizeName(get("name"))
	if name == "" {
		return model.Subject{}, false
	}
	return model.Subject{
		ID:       uuid.New().String(),
		Name:     name,
		Domain:   stripScheme(get("domain")),
		Industry: strings.ToLower(get("industry")),
		CRMID:    get("crm_id"),
	}, true
}

var titleCaser = cases.Title(language.English)

// normalizeName collapses whitespace and title-cases shouting CRM-export
// names, leaving mixed-case names untouched.
func normalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name != "" && name == strings.ToUpper(name) && name != strings.ToLower(name) {
		return titleCaser.String(strings.ToLower(name))
	}
	return name
}

func stripScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "www.")
	return strings.TrimSuffix(raw, "/")
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
