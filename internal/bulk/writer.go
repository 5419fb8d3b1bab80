package bulk

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/research"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
)

// CRMWriter writes research notes to a single field on the subject's CRM
// account record.
type CRMWriter struct {
	client salesforce.Client
	field  string
}

// NewCRMWriter creates a CRMWriter targeting the given account field.
func NewCRMWriter(client salesforce.Client, field string) *CRMWriter {
	return &CRMWriter{client: client, field: field}
}

// WriteResult implements ResultWriter. Subjects without a CRM record are
// skipped silently.
func (w *CRMWriter) WriteResult(ctx context.Context, subject model.Subject, outcome *research.Outcome) error {
	if subject.CRMID == "" {
		return nil
	}
	return salesforce.WriteResearch(ctx, w.client, subject.CRMID, w.field, research.FormatNotes(outcome))
}
