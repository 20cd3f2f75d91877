package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndemidova/callline/internal/calltask"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	s, err := New(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return s, mr
}

func TestStore_TaskRoundTrip(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	task := &calltask.Task{
		ID:          "t1",
		OwnerID:     "owner-1",
		Title:       "Reschedule dentist appt",
		Instruction: "Call my dentist and reschedule",
		Status:      calltask.TaskReadyToCall,
		Priority:    "normal",
		PhoneNumber: "+15551234567",
		Plan:        calltask.Plan{Goal: "Reschedule dentist appt"},
	}
	require.NoError(t, s.CreateTask(ctx, task))
	assert.False(t, task.CreatedAt.IsZero())

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Reschedule dentist appt", got.Title)
	assert.Equal(t, calltask.TaskReadyToCall, got.Status)
	assert.Equal(t, "Reschedule dentist appt", got.Plan.Goal)

	got.Status = calltask.TaskInProgress
	require.NoError(t, s.UpdateTask(ctx, got))

	updated, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, calltask.TaskInProgress, updated.Status)
}

func TestStore_GetTask_Missing(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()

	got, err := s.GetTask(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListTasks_OwnerScoped(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, &calltask.Task{ID: "a", OwnerID: "o1", Status: calltask.TaskReadyToCall}))
	require.NoError(t, s.CreateTask(ctx, &calltask.Task{ID: "b", OwnerID: "o1", Status: calltask.TaskFailed}))
	require.NoError(t, s.CreateTask(ctx, &calltask.Task{ID: "c", OwnerID: "o2", Status: calltask.TaskReadyToCall}))

	tasks, err := s.ListTasks(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = s.ListTasks(ctx, "o3")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStore_SessionByProviderKey(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	sess := &calltask.Session{
		ID:          "s1",
		TaskID:      "t1",
		ProviderKey: "prov-abc",
		Status:      calltask.SessionInitiated,
	}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.False(t, sess.StartedAt.IsZero())

	got, err := s.GetSessionByProviderKey(ctx, "prov-abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "t1", got.TaskID)

	missing, err := s.GetSessionByProviderKey(ctx, "prov-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_CountFailedSessions(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &calltask.Session{ID: "s1", TaskID: "t1", ProviderKey: "k1", Status: calltask.SessionFailed}))
	require.NoError(t, s.CreateSession(ctx, &calltask.Session{ID: "s2", TaskID: "t1", ProviderKey: "k2", Status: calltask.SessionCompleted}))
	require.NoError(t, s.CreateSession(ctx, &calltask.Session{ID: "s3", TaskID: "t1", ProviderKey: "k3", Status: calltask.SessionFailed}))
	require.NoError(t, s.CreateSession(ctx, &calltask.Session{ID: "s4", TaskID: "t2", ProviderKey: "k4", Status: calltask.SessionFailed}))

	count, err := s.CountFailedSessions(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_ListOpenSessions(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &calltask.Session{ID: "s1", TaskID: "t1", ProviderKey: "k1", Status: calltask.SessionRinging}))
	require.NoError(t, s.CreateSession(ctx, &calltask.Session{ID: "s2", TaskID: "t1", ProviderKey: "k2", Status: calltask.SessionCompleted}))

	open, err := s.ListOpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "s1", open[0].ID)
}

func TestStore_Settings_DefaultWhenAbsent(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	settings, err := s.GetSettings(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings, settings)

	require.NoError(t, s.PutSettings(ctx, "owner-1", calltask.Settings{AutoRetryFailedCalls: false, MaxRetryAttempts: 5}))

	settings, err = s.GetSettings(ctx, "owner-1")
	require.NoError(t, err)
	assert.False(t, settings.AutoRetryFailedCalls)
	assert.Equal(t, 5, settings.MaxRetryAttempts)
}

func TestStore_ProfileAndContacts(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	// Absent profile degrades to an empty record, not an error.
	profile, err := s.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", profile.OwnerID)
	assert.Empty(t, profile.Name)

	require.NoError(t, s.PutProfile(ctx, calltask.Profile{OwnerID: "owner-1", Name: "Nina", Timezone: "UTC"}))

	profile, err = s.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Nina", profile.Name)

	contacts := []calltask.Contact{
		{Name: "Dr. Smith", Phone: "+15551234567"},
		{Name: "Garage", Phone: "+15550001111"},
		{Name: "Bank", Phone: "+15550002222"},
	}
	require.NoError(t, s.PutContacts(ctx, "owner-1", contacts))

	got, err := s.GetContacts(ctx, "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Dr. Smith", got[0].Name)

	all, err := s.GetContacts(ctx, "owner-1", 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_NotificationQueue(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	n := &calltask.Notification{
		ID:      "n1",
		OwnerID: "owner-1",
		Type:    "clarification_needed",
		Payload: map[string]any{"task_id": "t1"},
	}
	require.NoError(t, s.PushNotification(ctx, n))

	popped, err := s.PopNotification(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, "n1", popped.ID)
	assert.Equal(t, "t1", popped.Payload["task_id"])

	// Queue drained, record still listed.
	stored, err := s.ListNotifications(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestStore_PopNotification_Empty(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()

	n, err := s.PopNotification(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestStore_WithLock_Serializes(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	var inside, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithLock(ctx, "task:t1", func() error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, max, "lease must not admit two holders")
}
