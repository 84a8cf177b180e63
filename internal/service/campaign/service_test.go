package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/sending"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu        sync.Mutex
	tasks     map[string]domain.Task
	created   int
	deleted   int
	deleteErr error
	createErr error
	seq       int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: map[string]domain.Task{}}
}

func (f *fakeScheduler) CreateTask(_ context.Context, t domain.Task) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	f.created++
	t.ID = fmt.Sprintf("task-%d", f.seq)
	f.tasks[t.ID] = t
	return t.ID, nil
}

func (f *fakeScheduler) GetTask(_ context.Context, id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (f *fakeScheduler) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	f.deleted++
	delete(f.tasks, id)
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (f *fakeAudit) Record(_ context.Context, ev domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAudit) ofType(t domain.AuditEventType) []domain.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.SendJob
	err  error
}

func (f *fakeQueue) Publish(_ context.Context, job queue.SendJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type harness struct {
	svc   *campaign.Service
	store *memory.Store
	sched *fakeScheduler
	audit *fakeAudit
	queue *fakeQueue
	supp  *suppression.Service
	fail  map[string]bool
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		sched: newFakeScheduler(),
		audit: &fakeAudit{},
		queue: &fakeQueue{},
		fail:  map[string]bool{},
		clock: now,
	}
	h.supp = suppression.NewService(h.store.Suppressions())
	h.store.PutUser(domain.User{ID: "alice", DomainID: "acme"})
	h.store.PutUser(domain.User{ID: "bob", DomainID: "acme"})
	h.store.PutUser(domain.User{ID: "mallory", DomainID: "globex"})
	for _, id := range []string{"r1", "r2", "r3"} {
		h.store.PutRecipient(domain.Recipient{ID: id, DomainID: "acme", FirstName: id, Phone: "+1555" + id})
	}
	h.store.PutList(domain.RecipientList{Ref: "list-1", DomainID: "acme"}, "r1", "r2", "r3")
	h.store.PutList(domain.RecipientList{Ref: "list-empty", DomainID: "acme"})
	h.store.PutList(domain.RecipientList{Ref: "list-globex", DomainID: "globex"}, "r1")
	deleted := now.Add(-time.Hour)
	h.store.PutList(domain.RecipientList{Ref: "list-deleted", DomainID: "acme", DeletedAt: &deleted}, "r1")

	transport := channel.TransportFunc(func(_ context.Context, r *domain.Recipient, _ *channel.Content) error {
		if h.fail[r.ID] {
			return errors.New("carrier rejected")
		}
		return nil
	})
	reg := channel.NewRegistry(channel.New(domain.ChannelSMS, channel.NewRenderer(nil), transport))

	h.svc = campaign.NewService(campaign.Deps{
		Campaigns:    h.store,
		Blasts:       h.store,
		Sends:        h.store,
		Users:        h.store,
		Lists:        h.store,
		Scheduler:    h.sched,
		Audit:        h.audit,
		Queue:        h.queue,
		Resolver:     sending.NewResolver(h.store, h.store, time.Second),
		Dispatcher:   sending.NewDispatcher(reg, h.store, h.store, sending.WithClock(func() time.Time { return now })),
		Suppressions: h.supp,
		CallbackURL:  "https://engine.example/internal/scheduler/callback",
		Now:          func() time.Time { return h.clock },
	})
	return h
}

func (h *harness) create(t *testing.T, content string, lists ...string) *domain.Campaign {
	t.Helper()
	c, err := h.svc.Create(context.Background(), "alice", campaign.CreateInput{
		Channel:  domain.ChannelSMS,
		Title:    "Spring hiring",
		Content:  content,
		ListRefs: lists,
	})
	require.NoError(t, err)
	return c
}

// run executes the most recent queued job and waits for the barrier.
func (h *harness) run(t *testing.T) (*domain.Blast, []domain.DispatchResult) {
	t.Helper()
	require.NotEmpty(t, h.queue.jobs)
	job := h.queue.jobs[len(h.queue.jobs)-1]
	b, err := h.svc.ExecuteSend(context.Background(), job)
	require.NoError(t, err)
	results, err := b.Wait(context.Background())
	require.NoError(t, err)
	blast, err := h.store.GetBlast(context.Background(), job.BlastID)
	require.NoError(t, err)
	return blast, results
}

func ptr[T any](v T) *T { return &v }

func TestCreate_ValidatesLists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]string{
		"list-missing": "does not exist",
		"list-globex":  "not owned",
		"list-deleted": "deleted",
	}
	for ref, msg := range cases {
		_, err := h.svc.Create(ctx, "alice", campaign.CreateInput{Channel: domain.ChannelSMS, Title: "t", ListRefs: []string{"list-1", ref}})
		require.Error(t, err, ref)
		assert.True(t, apperr.Is(err, apperr.KindInvalidUsage), ref)
		assert.Contains(t, err.Error(), ref)
		assert.Contains(t, err.Error(), msg)
	}
	assert.Equal(t, 0, h.store.CampaignCount())
}

func TestCreate_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, "alice", campaign.CreateInput{Channel: "fax", Title: "t"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))

	_, err = h.svc.Create(ctx, "alice", campaign.CreateInput{Channel: domain.ChannelSMS})
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))

	_, err = h.svc.Create(ctx, "alice", campaign.CreateInput{Channel: domain.ChannelSMS, Title: "t", Content: strings.Repeat("x", 1601)})
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))

	_, err = h.svc.Create(ctx, "nobody", campaign.CreateInput{Channel: domain.ChannelSMS, Title: "t"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCreate_AuditFailureDoesNotFail(t *testing.T) {
	h := newHarness(t)
	h.audit.err = errors.New("audit down")
	c := h.create(t, "hello", "list-1")
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, h.store.CampaignCount())
}

func TestCreate_DedupesLists(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, "hello", "list-1", "list-1", "list-empty")
	assert.Equal(t, []string{"list-1", "list-empty"}, c.ListRefs)
	assert.Len(t, h.audit.ofType(domain.AuditCreated), 1)
}

func TestUpdate_NullMeansUnchanged(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, "original body", "list-1")

	updated, err := h.svc.Update(context.Background(), c.ID, "bob", domain.CampaignPatch{
		Title:   ptr("New title"),
		Content: ptr("   "),
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "original body", updated.Content)
	assert.Equal(t, []string{"list-1"}, updated.ListRefs)

	stored, err := h.svc.Get(context.Background(), c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "New title", stored.Title)
	assert.Equal(t, "original body", stored.Content)
}

func TestUpdate_RevalidatesLists(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, "body", "list-1")
	_, err := h.svc.Update(context.Background(), c.ID, "alice", domain.CampaignPatch{ListRefs: []string{"list-deleted"}})
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))
}

func TestOtherDomainIsForbiddenNotNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "body", "list-1")
	start := now.Add(time.Hour)

	_, err := h.svc.Update(ctx, c.ID, "mallory", domain.CampaignPatch{Title: ptr("x")})
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "update")
	err = h.svc.Delete(ctx, c.ID, "mallory")
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "delete")
	_, err = h.svc.Schedule(ctx, c.ID, "mallory", domain.ScheduleSpec{StartAt: &start})
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "schedule")
	_, err = h.svc.Send(ctx, c.ID, "mallory")
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "send")
	_, err = h.svc.ListBlasts(ctx, c.ID, "mallory")
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "list blasts")

	assert.Empty(t, h.queue.jobs)
	assert.Equal(t, 0, h.sched.created)
	assert.Equal(t, 1, h.store.CampaignCount())

	_, err = h.svc.Get(ctx, "missing", "alice")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSend_ValidatesBeforeEnqueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	empty := h.create(t, "", "list-1")
	_, err := h.svc.Send(ctx, empty.ID, "alice")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))

	noLists := h.create(t, "hello")
	_, err = h.svc.Send(ctx, noLists.ID, "alice")
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))

	assert.Empty(t, h.queue.jobs)
}

func TestSend_QueueFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.queue.err = errors.New("broker down")
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(context.Background(), c.ID, "alice")
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}

func TestScenarioA_PartialDispatch(t *testing.T) {
	h := newHarness(t)
	h.fail["r3"] = true
	c := h.create(t, "Hi {{ recipient.first_name }}", "list-1")

	job, err := h.svc.Send(context.Background(), c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, c.ID, job.CampaignID)

	blast, results := h.run(t)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(2), blast.Sends)
	assert.LessOrEqual(t, blast.Sends, int64(len(results)))

	sends, err := h.svc.ListSends(context.Background(), blast.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, sends, 2)

	sent := h.audit.ofType(domain.AuditSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "2", sent[0].Params["count"])
	assert.Equal(t, blast.ID, sent[0].SourceID)
	assert.Equal(t, "alice", sent[0].ActorID)

	got, err := h.svc.Get(context.Background(), c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSent, got.State())
}

func TestSend_EachSendCreatesNewBlast(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, "hello", "list-1")

	_, err := h.svc.Send(context.Background(), c.ID, "alice")
	require.NoError(t, err)
	first, _ := h.run(t)
	_, err = h.svc.Send(context.Background(), c.ID, "alice")
	require.NoError(t, err)
	second, _ := h.run(t)

	assert.NotEqual(t, first.ID, second.ID)
	blasts, err := h.svc.ListBlasts(context.Background(), c.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, blasts, 2)
	assert.Equal(t, int64(3), first.Sends)
	assert.Equal(t, int64(3), second.Sends)
}

func TestExecuteSend_RedeliveryDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(context.Background(), c.ID, "alice")
	require.NoError(t, err)

	h.run(t)
	blast, results := h.run(t)
	assert.Equal(t, 3, domain.CountSucceeded(results))
	assert.Equal(t, int64(3), blast.Sends)

	sends, err := h.store.ListSends(context.Background(), blast.ID)
	require.NoError(t, err)
	assert.Len(t, sends, 3)
	assert.Len(t, h.audit.ofType(domain.AuditSent), 1)
}

func TestExecuteSend_ResumesAfterCrashBeforeCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(ctx, c.ID, "alice")
	require.NoError(t, err)

	// A first attempt stored two sends and died before its completion ran.
	job := h.queue.jobs[len(h.queue.jobs)-1]
	_, err = h.store.CreateBlast(ctx, &domain.Blast{ID: job.BlastID, CampaignID: c.ID})
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2"} {
		_, err := h.store.RecordSend(ctx, &domain.Send{ID: "s-" + id, BlastID: job.BlastID, RecipientID: id, SentAt: now}, nil)
		require.NoError(t, err)
	}

	blast, results := h.run(t)
	assert.Equal(t, job.BlastID, blast.ID)
	assert.Equal(t, 3, domain.CountSucceeded(results))
	assert.Equal(t, int64(3), blast.Sends)

	sent := h.audit.ofType(domain.AuditSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "3", sent[0].Params["count"])

	h.run(t)
	got, err := h.store.GetBlast(ctx, job.BlastID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Sends)
	assert.Len(t, h.audit.ofType(domain.AuditSent), 1)
}

func TestExecuteSend_NoRecipientsCreatesNoBlast(t *testing.T) {
	h := newHarness(t)
	c := h.create(t, "hello", "list-empty")
	_, err := h.svc.Send(context.Background(), c.ID, "alice")
	require.NoError(t, err)

	job := h.queue.jobs[0]
	_, err = h.svc.ExecuteSend(context.Background(), job)
	assert.ErrorIs(t, err, sending.ErrNoRecipients)
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))

	_, err = h.store.GetBlast(context.Background(), job.BlastID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteSend_SkipsSuppressedRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.supp.Suppress(ctx, domain.Suppression{RecipientID: "r2", Channel: domain.ChannelSMS, Reason: domain.ReasonOptOut}))
	require.NoError(t, h.supp.Suppress(ctx, domain.Suppression{RecipientID: "r3", Channel: domain.ChannelEmail}))

	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(ctx, c.ID, "alice")
	require.NoError(t, err)

	blast, results := h.run(t)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), blast.Sends)
	for _, r := range results {
		assert.NotEqual(t, "r2", r.RecipientID)
	}
}

func TestExecuteSend_AllSuppressedIsNoRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, h.supp.Suppress(ctx, domain.Suppression{RecipientID: id, Channel: domain.ChannelSMS}))
	}
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(ctx, c.ID, "alice")
	require.NoError(t, err)

	job := h.queue.jobs[0]
	_, err = h.svc.ExecuteSend(ctx, job)
	assert.ErrorIs(t, err, sending.ErrNoRecipients)
	_, err = h.store.GetBlast(ctx, job.BlastID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordOptOut_SuppressesOnCampaignChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	_, err := h.store.CreateBlast(ctx, &domain.Blast{ID: "b1", CampaignID: c.ID})
	require.NoError(t, err)

	require.NoError(t, h.svc.RecordOptOut(ctx, "b1", "r1"))
	require.NoError(t, h.svc.RecordOptOut(ctx, "b1", "r1"))

	ok, err := h.supp.IsSuppressed(ctx, "r1", domain.ChannelSMS)
	require.NoError(t, err)
	assert.True(t, ok)

	entries, total, err := h.supp.List(ctx, suppression.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, domain.SourceEngagement, entries[0].Source)
	assert.Equal(t, c.ID, entries[0].CampaignID)
	assert.Equal(t, "b1", entries[0].BlastID)

	assert.True(t, apperr.Is(h.svc.RecordOptOut(ctx, "nope", "r1"), apperr.KindNotFound))
	assert.True(t, apperr.Is(h.svc.RecordOptOut(ctx, "b1", ""), apperr.KindInvalidUsage))
}

func TestCompleteSend_AllFailedEmitsNoAudit(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		h.fail[id] = true
	}
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(context.Background(), c.ID, "alice")
	require.NoError(t, err)

	blast, _ := h.run(t)
	assert.Zero(t, blast.Sends)
	assert.Empty(t, h.audit.ofType(domain.AuditSent))
}

func TestCompleteSend_Direct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	_, err := h.store.CreateBlast(ctx, &domain.Blast{ID: "b1", CampaignID: c.ID})
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2"} {
		_, err := h.store.RecordSend(ctx, &domain.Send{ID: "s-" + id, BlastID: "b1", RecipientID: id, SentAt: now}, nil)
		require.NoError(t, err)
	}

	err = h.svc.CompleteSend(ctx, "b1", []domain.DispatchResult{
		{RecipientID: "r1", OK: true, Created: true},
		{RecipientID: "r2", OK: true, Created: true},
		{RecipientID: "r3", Error: "boom"},
	})
	require.NoError(t, err)
	b, err := h.store.GetBlast(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Sends)

	err = h.svc.CompleteSend(ctx, "missing", nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestScenarioB_ScheduleTaskShapes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(2 * time.Hour)

	taskID, err := h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)
	task := h.sched.tasks[taskID]
	assert.Equal(t, domain.TaskOneTime, task.Type)
	require.NotNil(t, task.RunAt)
	assert.True(t, task.RunAt.Equal(start))
	assert.Equal(t, c.ID, task.CallbackPayload["campaign_id"])
	assert.Equal(t, "https://engine.example/internal/scheduler/callback", task.CallbackURL)

	other := h.create(t, "hello", "list-1")
	_, err = h.svc.Schedule(ctx, other.ID, "alice", domain.ScheduleSpec{StartAt: &start, Frequency: ptr(domain.FrequencyDaily)})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "end_datetime", ae.Field)

	end := start.Add(72 * time.Hour)
	taskID, err = h.svc.Schedule(ctx, other.ID, "alice", domain.ScheduleSpec{StartAt: &start, EndAt: &end, Frequency: ptr(domain.FrequencyDaily)})
	require.NoError(t, err)
	task = h.sched.tasks[taskID]
	assert.Equal(t, domain.TaskPeriodic, task.Type)
	assert.Equal(t, int64(86400), task.FrequencySeconds)
	assert.True(t, task.EndAt.Equal(end))
}

func TestSchedule_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	past := now.Add(-time.Minute)
	start := now.Add(time.Hour)
	endBeforeStart := now.Add(30 * time.Minute)

	cases := []struct {
		name  string
		spec  domain.ScheduleSpec
		field string
	}{
		{"missing start", domain.ScheduleSpec{}, "start_datetime"},
		{"past start", domain.ScheduleSpec{StartAt: &past}, "start_datetime"},
		{"now is not future", domain.ScheduleSpec{StartAt: ptr(now)}, "start_datetime"},
		{"unknown frequency", domain.ScheduleSpec{StartAt: &start, EndAt: ptr(start.Add(time.Hour)), Frequency: ptr(domain.FrequencyID(9))}, "frequency_id"},
		{"past end", domain.ScheduleSpec{StartAt: &start, EndAt: &past, Frequency: ptr(domain.FrequencyHourly)}, "end_datetime"},
		{"end before start", domain.ScheduleSpec{StartAt: &start, EndAt: &endBeforeStart, Frequency: ptr(domain.FrequencyHourly)}, "end_datetime"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Schedule(ctx, c.ID, "alice", tc.spec)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, apperr.KindInvalidUsage, ae.Kind)
			assert.Equal(t, tc.field, ae.Field)
		})
	}
	assert.Equal(t, 0, h.sched.created)
}

func TestSchedule_RequiresSendableCampaign(t *testing.T) {
	h := newHarness(t)
	start := now.Add(time.Hour)
	c := h.create(t, "", "list-1")
	_, err := h.svc.Schedule(context.Background(), c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	assert.True(t, apperr.Is(err, apperr.KindInvalidUsage))
	assert.Equal(t, 0, h.sched.created)
}

func TestSchedule_MethodStateMismatchIsForbidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)

	_, err := h.svc.Reschedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)
	_, err = h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, 1, h.sched.created)
}

func TestReschedule_UnchangedIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)
	end := start.Add(48 * time.Hour)
	spec := domain.ScheduleSpec{StartAt: &start, EndAt: &end, Frequency: ptr(domain.FrequencyHourly)}

	first, err := h.svc.Schedule(ctx, c.ID, "alice", spec)
	require.NoError(t, err)

	sameStart := start.In(time.FixedZone("EST", -5*3600))
	again, err := h.svc.Reschedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &sameStart, EndAt: &end, Frequency: ptr(domain.FrequencyHourly)})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, h.sched.created)
	assert.Equal(t, 0, h.sched.deleted)
}

func TestReschedule_UnchangedAfterStartIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)
	end := start.Add(48 * time.Hour)
	spec := domain.ScheduleSpec{StartAt: &start, EndAt: &end, Frequency: ptr(domain.FrequencyHourly)}

	first, err := h.svc.Schedule(ctx, c.ID, "alice", spec)
	require.NoError(t, err)

	h.clock = now.Add(3 * time.Hour)
	again, err := h.svc.Reschedule(ctx, c.ID, "alice", spec)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, h.sched.created)
	assert.Equal(t, 0, h.sched.deleted)

	// A changed schedule must still start in the future.
	later := end.Add(time.Hour)
	_, err = h.svc.Reschedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start, EndAt: &later, Frequency: ptr(domain.FrequencyHourly)})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "start_datetime", ae.Field)
	assert.Equal(t, 0, h.sched.deleted)
	_, stillThere := h.sched.tasks[first]
	assert.True(t, stillThere)
}

func TestReschedule_ChangedReplacesTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)

	first, err := h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)

	end := start.Add(24 * time.Hour)
	second, err := h.svc.Reschedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start, EndAt: &end, Frequency: ptr(domain.FrequencyHourly)})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, h.sched.deleted)
	_, stillThere := h.sched.tasks[first]
	assert.False(t, stillThere)

	got, err := h.svc.Get(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, second, *got.TaskID)
}

func TestReschedule_MissingRemoteTaskSchedulesFresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)

	first, err := h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)
	delete(h.sched.tasks, first)

	second, err := h.svc.Reschedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 0, h.sched.deleted)
}

func TestUnschedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")

	require.NoError(t, h.svc.Unschedule(ctx, c.ID, "alice"))
	assert.Empty(t, h.audit.ofType(domain.AuditUnscheduled))

	start := now.Add(time.Hour)
	_, err := h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)
	require.NoError(t, h.svc.Unschedule(ctx, c.ID, "alice"))

	got, err := h.svc.Get(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, got.TaskID)
	assert.Empty(t, h.sched.tasks)
	assert.Len(t, h.audit.ofType(domain.AuditUnscheduled), 1)
	assert.Equal(t, domain.StateDraft, got.State())
}

func TestScenarioC_DeleteFailsWhenTaskRemovalFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(ctx, c.ID, "alice")
	require.NoError(t, err)
	blast, _ := h.run(t)

	start := now.Add(time.Hour)
	_, err = h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)

	h.sched.deleteErr = errors.New("scheduler unavailable")
	err = h.svc.Delete(ctx, c.ID, "alice")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))

	assert.Equal(t, 1, h.store.CampaignCount())
	_, err = h.store.GetBlast(ctx, blast.ID)
	assert.NoError(t, err)
	sends, err := h.store.ListSends(ctx, blast.ID)
	require.NoError(t, err)
	assert.Len(t, sends, 3)
	assert.Empty(t, h.audit.ofType(domain.AuditDeleted))
}

func TestDelete_Cascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	_, err := h.svc.Send(ctx, c.ID, "alice")
	require.NoError(t, err)
	blast, _ := h.run(t)
	start := now.Add(time.Hour)
	_, err = h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, c.ID, "bob"))
	assert.Equal(t, 0, h.store.CampaignCount())
	assert.Empty(t, h.sched.tasks)
	_, err = h.store.GetBlast(ctx, blast.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, h.audit.ofType(domain.AuditDeleted), 1)
}

func TestSendFromSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)
	taskID, err := h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start})
	require.NoError(t, err)

	_, err = h.svc.SendFromSchedule(ctx, c.ID, "stale-task")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	job, err := h.svc.SendFromSchedule(ctx, c.ID, taskID)
	require.NoError(t, err)
	assert.Equal(t, "alice", job.ActorID)
	assert.Len(t, h.queue.jobs, 1)

	got, err := h.svc.Get(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.False(t, got.IsScheduled(), "one-time task is detached after firing")
}

func TestSendFromSchedule_RecurringStaysAttached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	start := now.Add(time.Hour)
	end := start.Add(24 * time.Hour)
	taskID, err := h.svc.Schedule(ctx, c.ID, "alice", domain.ScheduleSpec{StartAt: &start, EndAt: &end, Frequency: ptr(domain.FrequencyHourly)})
	require.NoError(t, err)

	_, err = h.svc.SendFromSchedule(ctx, c.ID, taskID)
	require.NoError(t, err)
	_, err = h.svc.SendFromSchedule(ctx, c.ID, taskID)
	require.NoError(t, err)
	assert.Len(t, h.queue.jobs, 2)

	got, err := h.svc.Get(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsScheduled())
}

func TestRecordReplyAndOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "hello", "list-1")
	_, err := h.store.CreateBlast(ctx, &domain.Blast{ID: "b1", CampaignID: c.ID})
	require.NoError(t, err)

	require.NoError(t, h.svc.RecordReply(ctx, "b1"))
	require.NoError(t, h.svc.RecordOpen(ctx, "b1"))
	require.NoError(t, h.svc.RecordOpen(ctx, "b1"))
	b, err := h.store.GetBlast(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Replies)
	assert.Equal(t, int64(2), b.Opens)

	assert.True(t, apperr.Is(h.svc.RecordOpen(ctx, "nope"), apperr.KindNotFound))
}

func TestList_ScopedToDomain(t *testing.T) {
	h := newHarness(t)
	h.create(t, "a", "list-1")
	h.create(t, "b", "list-1")

	mine, err := h.svc.List(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := h.svc.List(context.Background(), "mallory")
	require.NoError(t, err)
	assert.Empty(t, theirs)
}
