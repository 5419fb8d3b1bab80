package bulk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/research"
)

type recordingCRM struct {
	fakeCRM
	updates []map[string]any
}

func (r *recordingCRM) UpdateOne(ctx context.Context, sObjectName, id string, fields map[string]any) error {
	r.updates = append(r.updates, fields)
	return nil
}

func TestCRMWriter_WritesNotesField(t *testing.T) {
	crm := &recordingCRM{}
	w := NewCRMWriter(crm, "Research_Notes__c")

	outcome := &research.Outcome{Subject: model.Subject{Name: "Acme"}}
	err := w.WriteResult(context.Background(), model.Subject{Name: "Acme", CRMID: "001A"}, outcome)
	require.NoError(t, err)

	require.Len(t, crm.updates, 1)
	payload, ok := crm.updates[0]["Research_Notes__c"].(string)
	require.True(t, ok)
	assert.Contains(t, payload, "Research summary for Acme")
}

func TestCRMWriter_SkipsSubjectsWithoutCRMID(t *testing.T) {
	crm := &recordingCRM{}
	w := NewCRMWriter(crm, "Research_Notes__c")

	err := w.WriteResult(context.Background(), model.Subject{Name: "Acme"}, &research.Outcome{})
	require.NoError(t, err)
	assert.Empty(t, crm.updates)
}
