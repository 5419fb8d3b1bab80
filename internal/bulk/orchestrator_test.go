package bulk

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/research"
	"github.com/sells-group/prospect-cli/internal/store"
)

// memStore is an in-memory store.Store recording checkpoint activity.
type memStore struct {
	mu          sync.Mutex
	sessions    map[string]*model.BulkSession
	checkpoints []checkpointSnapshot
	failNext    error
}

type checkpointSnapshot struct {
	Status       model.SessionStatus
	CurrentIndex int
	Processed    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*model.BulkSession)}
}

func (m *memStore) CreateSession(ctx context.Context, s *model.BulkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*model.BulkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("session not found: " + id)
	}
	return s, nil
}

func (m *memStore) ListSessions(ctx context.Context, f store.SessionFilter) ([]model.BulkSession, error) {
	return nil, nil
}

func (m *memStore) Checkpoint(ctx context.Context, s *model.BulkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.sessions[s.ID] = s
	m.checkpoints = append(m.checkpoints, checkpointSnapshot{
		Status:       s.Status,
		CurrentIndex: s.CurrentIndex,
		Processed:    s.Processed,
	})
	return nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error { return nil }
func (m *memStore) Migrate(ctx context.Context) error                  { return nil }
func (m *memStore) Close() error                                       { return nil }

// stubRunner returns canned outcomes and records the order of subjects run.
type stubRunner struct {
	mu     sync.Mutex
	ran    []string
	failOn map[string]error
	cost   float64
}

func (r *stubRunner) Run(ctx context.Context, subject model.Subject) (*research.Outcome, error) {
	r.mu.Lock()
	r.ran = append(r.ran, subject.ID)
	r.mu.Unlock()
	if err, ok := r.failOn[subject.ID]; ok {
		return nil, err
	}
	return &research.Outcome{
		Subject: subject,
		CostUSD: r.cost,
		Confidence: model.ConfidenceBreakdown{
			Overall: 0.8,
			Display: 4.2,
		},
	}, nil
}

type stubWriter struct {
	mu    sync.Mutex
	wrote []string
	err   error
}

func (w *stubWriter) WriteResult(ctx context.Context, subject model.Subject, outcome *research.Outcome) error {
	w.mu.Lock()
	w.wrote = append(w.wrote, subject.ID)
	w.mu.Unlock()
	return w.err
}

func sessionWithSubjects(n int) *model.BulkSession {
	var subjects []model.Subject
	names := []string{"Acme", "Globex", "Initech", "Umbrella", "Stark", "Wayne", "Hooli"}
	for i := 0; i < n; i++ {
		subjects = append(subjects, model.Subject{
			ID:   names[i%len(names)] + "-id",
			Name: names[i%len(names)],
		})
	}
	return NewSession("test batch", model.SelectionConfig{Source: "csv"}, subjects)
}

func TestStart_ProcessesAllSubjects(t *testing.T) {
	st := newMemStore()
	runner := &stubRunner{cost: 0.05}
	sess := sessionWithSubjects(3)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	o := New(runner, st, Options{})
	require.NoError(t, o.Start(context.Background(), sess, NewPauseToken()))

	assert.Equal(t, model.SessionStatusResearchComplete, sess.Status)
	assert.Equal(t, 3, sess.Processed)
	assert.Equal(t, 3, sess.CurrentIndex)
	assert.Equal(t, 3, sess.SuccessCount())
	assert.InDelta(t, 0.15, sess.TotalCostUSD, 1e-9)
	require.NotNil(t, sess.CompletedAt)

	// Start + completion checkpoints at minimum.
	last := st.checkpoints[len(st.checkpoints)-1]
	assert.Equal(t, model.SessionStatusResearchComplete, last.Status)
}

func TestStart_FailureIsolation(t *testing.T) {
	st := newMemStore()
	runner := &stubRunner{
		failOn: map[string]error{"Globex-id": errors.New("research call threw")},
	}
	sess := sessionWithSubjects(3)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	o := New(runner, st, Options{})
	require.NoError(t, o.Start(context.Background(), sess, NewPauseToken()))

	// Subject 2 failed; 1 and 3 succeeded; the batch still completed.
	assert.Equal(t, model.SessionStatusResearchComplete, sess.Status)
	assert.Equal(t, 2, sess.SuccessCount())
	assert.Equal(t, 1, sess.FailureCount())
	assert.Equal(t, 3, sess.Total)

	assert.True(t, sess.Results["Acme-id"].Success)
	assert.False(t, sess.Results["Globex-id"].Success)
	assert.Contains(t, sess.Results["Globex-id"].Error, "research call threw")
	assert.True(t, sess.Results["Initech-id"].Success)

	require.Len(t, sess.Errors, 1)
	assert.Equal(t, model.SeverityError, sess.Errors[0].Severity)
	assert.Equal(t, "Globex-id", sess.Errors[0].SubjectID)
}

func TestStart_CRMWriteFailureIsSoft(t *testing.T) {
	st := newMemStore()
	writer := &stubWriter{err: errors.New("field validation failed")}
	sess := sessionWithSubjects(1)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	o := New(&stubRunner{}, st, Options{Writer: writer})
	require.NoError(t, o.Start(context.Background(), sess, NewPauseToken()))

	assert.True(t, sess.Results["Acme-id"].Success, "CRM failure must not fail the item")
	require.Len(t, sess.Errors, 1)
	assert.Equal(t, model.SeverityWarning, sess.Errors[0].Severity)
	assert.Contains(t, sess.Errors[0].Message, "CRM write-back failed")
}

func TestPauseThenResume_ExactRemaining(t *testing.T) {
	st := newMemStore()
	runner := &stubRunner{}
	token := NewPauseToken()
	sess := sessionWithSubjects(5)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	// Request pause right after the second subject completes.
	o := New(runner, st, Options{
		OnProgress: func(ev ProgressEvent) {
			if ev.Processed == 2 {
				token.Pause()
			}
		},
	})

	require.NoError(t, o.Start(context.Background(), sess, token))
	assert.Equal(t, model.SessionStatusPaused, sess.Status)
	assert.Equal(t, 2, sess.CurrentIndex)
	assert.Equal(t, 2, sess.Processed)
	assert.False(t, token.Requested(), "pause flag cleared on pause")

	require.NoError(t, o.Resume(context.Background(), sess, token))
	assert.Equal(t, model.SessionStatusResearchComplete, sess.Status)
	assert.Equal(t, 5, sess.Processed)

	// Exactly the remaining subjects ran after resume: no repeats, no skips.
	assert.Equal(t, []string{"Acme-id", "Globex-id", "Initech-id", "Umbrella-id", "Stark-id"}, runner.ran)
}

func TestStart_RequiresReady(t *testing.T) {
	sess := sessionWithSubjects(1)
	sess.Status = model.SessionStatusResearching

	o := New(&stubRunner{}, newMemStore(), Options{})
	err := o.Start(context.Background(), sess, NewPauseToken())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestResume_RequiresPaused(t *testing.T) {
	sess := sessionWithSubjects(1)

	o := New(&stubRunner{}, newMemStore(), Options{})
	err := o.Resume(context.Background(), sess, NewPauseToken())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only paused sessions can resume")
}

func TestCancel_IsTerminal(t *testing.T) {
	st := newMemStore()
	sess := sessionWithSubjects(2)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	o := New(&stubRunner{}, st, Options{})
	require.NoError(t, o.Cancel(context.Background(), sess))
	assert.Equal(t, model.SessionStatusCancelled, sess.Status)

	// Cancelled sessions can be neither resumed nor cancelled again.
	require.Error(t, o.Resume(context.Background(), sess, NewPauseToken()))
	require.Error(t, o.Cancel(context.Background(), sess))
}

func TestCheckpointCadence(t *testing.T) {
	st := newMemStore()
	sess := sessionWithSubjects(7)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	o := New(&stubRunner{}, st, Options{CheckpointEvery: 5})
	require.NoError(t, o.Start(context.Background(), sess, NewPauseToken()))

	// One at loop start, one after item 5, one at completion.
	require.Len(t, st.checkpoints, 3)
	assert.Equal(t, 5, st.checkpoints[1].Processed)
	assert.Equal(t, model.SessionStatusResearchComplete, st.checkpoints[2].Status)
}

func TestProgressEvents(t *testing.T) {
	st := newMemStore()
	sess := sessionWithSubjects(2)
	require.NoError(t, st.CreateSession(context.Background(), sess))

	var events []ProgressEvent
	o := New(&stubRunner{cost: 0.10}, st, Options{
		OnProgress: func(ev ProgressEvent) { events = append(events, ev) },
	})
	require.NoError(t, o.Start(context.Background(), sess, NewPauseToken()))

	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Processed)
	assert.InDelta(t, 50.0, events[0].Percent, 1e-9)
	assert.Equal(t, 2, events[1].Processed)
	assert.InDelta(t, 100.0, events[1].Percent, 1e-9)
	assert.Zero(t, events[1].EstimatedRemaining)
	assert.InDelta(t, 0.20, events[1].TotalCostUSD, 1e-9)
}
