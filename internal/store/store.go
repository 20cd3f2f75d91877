package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ndemidova/callline/internal/calltask"
)

const (
	taskPrefix         = "callline:task:"
	ownerTasksPrefix   = "callline:ownertasks:"
	sessionPrefix      = "callline:session:"
	sessionKeyPrefix   = "callline:sessionkey:"
	taskSessionsPrefix = "callline:tasksessions:"
	settingsPrefix     = "callline:settings:"
	profilePrefix      = "callline:profile:"
	contactsPrefix     = "callline:contacts:"
	notificationKey    = "callline:notification:"
	notificationQueue  = "callline:notifications:pending"
	lockPrefix         = "callline:lock:"
)

const (
	lockTTL       = 10 * time.Second
	lockRetryWait = 20 * time.Millisecond
)

// DefaultSettings applies when a user has never saved assistant settings.
var DefaultSettings = calltask.Settings{
	AutoRetryFailedCalls: true,
	MaxRetryAttempts:     2,
}

type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) CreateTask(ctx context.Context, t *calltask.Task) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, taskPrefix+t.ID, data, 0)
	pipe.SAdd(ctx, ownerTasksPrefix+t.OwnerID, t.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*calltask.Task, error) {
	data, err := s.client.Get(ctx, taskPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t calltask.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *calltask.Task) error {
	t.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	if err := s.client.Set(ctx, taskPrefix+t.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	return nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]*calltask.Task, error) {
	ids, err := s.client.SMembers(ctx, ownerTasksPrefix+ownerID).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	if len(ids) == 0 {
		return []*calltask.Task{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, taskPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}

	tasks := make([]*calltask.Task, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var t calltask.Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		tasks = append(tasks, &t)
	}

	return tasks, nil
}

// CreateSession persists a session and registers its provider correlation key
// so inbound provider events can find it.
func (s *Store) CreateSession(ctx context.Context, sess *calltask.Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionPrefix+sess.ID, data, 0)
	pipe.Set(ctx, sessionKeyPrefix+sess.ProviderKey, sess.ID, 0)
	pipe.SAdd(ctx, taskSessionsPrefix+sess.TaskID, sess.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*calltask.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess calltask.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &sess, nil
}

func (s *Store) GetSessionByProviderKey(ctx context.Context, key string) (*calltask.Session, error) {
	id, err := s.client.Get(ctx, sessionKeyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve provider key: %w", err)
	}

	return s.GetSession(ctx, id)
}

func (s *Store) UpdateSession(ctx context.Context, sess *calltask.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionPrefix+sess.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	return nil
}

func (s *Store) ListTaskSessions(ctx context.Context, taskID string) ([]*calltask.Session, error) {
	ids, err := s.client.SMembers(ctx, taskSessionsPrefix+taskID).Result()
	if err != nil {
		return nil, fmt.Errorf("list task sessions: %w", err)
	}

	sessions := make([]*calltask.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}

	return sessions, nil
}

// CountFailedSessions recomputes the number of failed sessions for a task from
// persisted history. The retry policy depends on this being a recount, not a
// cached counter.
func (s *Store) CountFailedSessions(ctx context.Context, taskID string) (int, error) {
	sessions, err := s.ListTaskSessions(ctx, taskID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, sess := range sessions {
		if sess.Status == calltask.SessionFailed {
			count++
		}
	}

	return count, nil
}

// ListOpenSessions returns all sessions that have not reached a terminal
// status. Used by the stale-session sweeper.
func (s *Store) ListOpenSessions(ctx context.Context) ([]*calltask.Session, error) {
	keys, err := s.client.Keys(ctx, sessionPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	open := make([]*calltask.Session, 0)
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var sess calltask.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if !sess.Status.IsTerminal() {
			open = append(open, &sess)
		}
	}

	return open, nil
}

func (s *Store) GetSettings(ctx context.Context, ownerID string) (calltask.Settings, error) {
	data, err := s.client.Get(ctx, settingsPrefix+ownerID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return DefaultSettings, nil
		}
		return calltask.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	var settings calltask.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return calltask.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}

	return settings, nil
}

func (s *Store) PutSettings(ctx context.Context, ownerID string, settings calltask.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := s.client.Set(ctx, settingsPrefix+ownerID, data, 0).Err(); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}

	return nil
}

func (s *Store) GetProfile(ctx context.Context, ownerID string) (calltask.Profile, error) {
	data, err := s.client.Get(ctx, profilePrefix+ownerID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return calltask.Profile{OwnerID: ownerID}, nil
		}
		return calltask.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	var profile calltask.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return calltask.Profile{}, fmt.Errorf("unmarshal profile: %w", err)
	}

	return profile, nil
}

func (s *Store) PutProfile(ctx context.Context, profile calltask.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if err := s.client.Set(ctx, profilePrefix+profile.OwnerID, data, 0).Err(); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}

	return nil
}

// GetContacts returns at most limit of the owner's most recent contacts.
func (s *Store) GetContacts(ctx context.Context, ownerID string, limit int) ([]calltask.Contact, error) {
	data, err := s.client.Get(ctx, contactsPrefix+ownerID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []calltask.Contact{}, nil
		}
		return nil, fmt.Errorf("get contacts: %w", err)
	}

	var contacts []calltask.Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("unmarshal contacts: %w", err)
	}

	if limit > 0 && len(contacts) > limit {
		contacts = contacts[:limit]
	}

	return contacts, nil
}

func (s *Store) PutContacts(ctx context.Context, ownerID string, contacts []calltask.Contact) error {
	data, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("marshal contacts: %w", err)
	}

	if err := s.client.Set(ctx, contactsPrefix+ownerID, data, 0).Err(); err != nil {
		return fmt.Errorf("put contacts: %w", err)
	}

	return nil
}

// PushNotification persists a notification and queues it for dispatch.
func (s *Store) PushNotification(ctx context.Context, n *calltask.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, notificationKey+n.ID, data, 0)
	pipe.RPush(ctx, notificationQueue, n.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}

	return nil
}

// PopNotification blocks up to timeout for the next queued notification.
// Returns nil with no error when the queue stays empty.
func (s *Store) PopNotification(ctx context.Context, timeout time.Duration) (*calltask.Notification, error) {
	result, err := s.client.BLPop(ctx, timeout, notificationQueue).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("pop notification: %w", err)
	}

	data, err := s.client.Get(ctx, notificationKey+result[1]).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}

	var n calltask.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}

	return &n, nil
}

// ListNotifications returns every stored notification for an owner. Intended
// for tests and the dashboard read path.
func (s *Store) ListNotifications(ctx context.Context, ownerID string) ([]*calltask.Notification, error) {
	keys, err := s.client.Keys(ctx, notificationKey+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]*calltask.Notification, 0)
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var n calltask.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		if n.OwnerID == ownerID {
			out = append(out, &n)
		}
	}

	return out, nil
}

// WithLock runs fn while holding a short-lived lease on key. Concurrent
// read-modify-write sequences on the same task or correlation key serialize
// through this so two deliveries cannot both observe the same session history.
func (s *Store) WithLock(ctx context.Context, key string, fn func() error) error {
	lockKey := lockPrefix + key

	for {
		ok, err := s.client.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-time.After(lockRetryWait):
		}
	}

	defer s.client.Del(context.WithoutCancel(ctx), lockKey)

	return fn()
}
