package ingest

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/retention"
	"github.com/pders01/confhist/internal/testutil"
)

var alice = models.User{Name: "Alice", ID: "alice"}

func newTracker(t *testing.T, opts Options) (*Tracker, *history.Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	logger := zaptest.NewLogger(t)
	store, err := history.New(testutil.TempRoot(t), history.WithClock(clock.Now), history.WithLogger(logger))
	require.NoError(t, err)
	manager := retention.NewManager(store, logger).WithClock(clock.Now)
	tracker, err := NewTracker(store, manager, opts, logger)
	require.NoError(t, err)
	return tracker, store, clock
}

func readAll(t *testing.T, store *history.Store, rev models.Revision) string {
	t.Helper()
	rc, err := store.Open(rev)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestNotifyChangeRecords(t *testing.T) {
	tracker, store, _ := newTracker(t, Options{})
	ctx := context.Background()

	rev, err := tracker.NotifyChange(ctx, models.Job("site-A"), models.OpCreated, alice, []byte("<config/>"))
	require.NoError(t, err)
	assert.Equal(t, models.OpCreated, rev.Operation)
	assert.Equal(t, alice, rev.User)

	revs, err := store.ListRevisions(ctx, models.Job("site-A"))
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, rev.Identifier, revs[0].Identifier)
}

func TestNotifyChangeUserSubstitution(t *testing.T) {
	tests := []struct {
		name string
		in   models.User
		want models.User
	}{
		{"empty becomes system", models.User{}, models.SystemUser},
		{"blank becomes system", models.User{Name: " ", ID: "\t"}, models.SystemUser},
		{"missing name", models.User{ID: "bob"}, models.User{Name: "bob", ID: "bob"}},
		{"missing id", models.User{Name: "Bob"}, models.User{Name: "Bob", ID: "Bob"}},
		{"complete", alice, alice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _, _ := newTracker(t, Options{})
			rev, err := tracker.NotifyChange(context.Background(), models.Job("x"), models.OpCreated, tt.in, []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rev.User)
		})
	}
}

func TestNotifyChangeExcludedUser(t *testing.T) {
	tracker, store, _ := newTracker(t, Options{ExcludedUsers: []string{"Deploy-Bot", " "}})

	_, err := tracker.NotifyChange(context.Background(), models.Job("x"), models.OpCreated,
		models.User{Name: "Deploy", ID: "deploy-bot"}, []byte("a"))
	require.ErrorIs(t, err, ErrSkipped)

	revs, err := store.ListRevisions(context.Background(), models.Job("x"))
	require.NoError(t, err)
	assert.Empty(t, revs)
}

func TestNotifyChangeExcludePattern(t *testing.T) {
	opts := Options{ExcludePattern: regexp.MustCompile(`queue\.xml|nodeMonitors\.xml`)}
	tracker, _, _ := newTracker(t, opts)
	ctx := context.Background()

	_, err := tracker.NotifyChange(ctx, models.SystemConfig("queue.xml"), models.OpChanged, alice, []byte("a"))
	assert.ErrorIs(t, err, ErrSkipped)

	// jobs are never matched against the file pattern
	_, err = tracker.NotifyChange(ctx, models.Job("queue.xml"), models.OpCreated, alice, []byte("a"))
	assert.NoError(t, err)

	_, err = tracker.NotifyChange(ctx, models.SystemConfig("config.xml"), models.OpCreated, alice, []byte("a"))
	assert.NoError(t, err)
}

func TestNotifyChangeSkipDuplicates(t *testing.T) {
	tracker, store, clock := newTracker(t, Options{SkipDuplicates: true})
	ctx := context.Background()
	e := models.Job("site-A")

	_, err := tracker.NotifyChange(ctx, e, models.OpCreated, alice, []byte("<config/>"))
	require.NoError(t, err)
	clock.Advance(time.Second)

	_, err = tracker.NotifyChange(ctx, e, models.OpChanged, alice, []byte("<config/>"))
	require.ErrorIs(t, err, ErrSkipped)

	_, err = tracker.NotifyChange(ctx, e, models.OpChanged, alice, []byte("<config><x/></config>"))
	require.NoError(t, err)

	revs, err := store.ListRevisions(ctx, e)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestNotifyChangeDuplicatesRecordedWhenAllowed(t *testing.T) {
	tracker, store, clock := newTracker(t, Options{})
	ctx := context.Background()
	e := models.Job("site-A")

	_, err := tracker.NotifyChange(ctx, e, models.OpCreated, alice, []byte("same"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = tracker.NotifyChange(ctx, e, models.OpChanged, alice, []byte("same"))
	require.NoError(t, err)

	revs, err := store.ListRevisions(ctx, e)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestNotifyDeleteCarriesLatestContent(t *testing.T) {
	tracker, store, clock := newTracker(t, Options{})
	ctx := context.Background()
	e := models.Job("site-A")

	_, err := tracker.NotifyChange(ctx, e, models.OpCreated, alice, []byte("<config><x/></config>"))
	require.NoError(t, err)
	clock.Advance(time.Second)

	rev, err := tracker.NotifyChange(ctx, e, models.OpDeleted, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OpDeleted, rev.Operation)
	assert.Equal(t, "<config><x/></config>", readAll(t, store, rev))

	// deleting something never recorded is dropped
	_, err = tracker.NotifyChange(ctx, models.Job("unknown"), models.OpDeleted, alice, nil)
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestNotifyChangeAfterDeleteRequiresCreate(t *testing.T) {
	tracker, _, clock := newTracker(t, Options{SkipDuplicates: true})
	ctx := context.Background()
	e := models.Job("site-A")

	_, err := tracker.NotifyChange(ctx, e, models.OpCreated, alice, []byte("a"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = tracker.NotifyChange(ctx, e, models.OpDeleted, alice, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)

	_, err = tracker.NotifyChange(ctx, e, models.OpChanged, alice, []byte("a"))
	assert.ErrorIs(t, err, history.ErrInvalidTransition)

	_, err = tracker.NotifyChange(ctx, e, models.OpCreated, alice, []byte("a"))
	assert.NoError(t, err)
}

func TestNotifyChangeAutoPrune(t *testing.T) {
	opts := Options{AutoPrune: true, Policy: retention.Policy{MaxRevisions: 2}}
	tracker, store, clock := newTracker(t, opts)
	ctx := context.Background()
	e := models.SystemConfig("config.xml")

	var last models.Revision
	for i, content := range []string{"a", "b", "c", "d"} {
		op := models.OpChanged
		if i == 0 {
			op = models.OpCreated
		}
		rev, err := tracker.NotifyChange(ctx, e, op, alice, []byte(content))
		require.NoError(t, err)
		last = rev
		clock.Advance(time.Minute)
	}

	revs, err := store.ListRevisions(ctx, e)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, last.Identifier, revs[1].Identifier)
}

func TestNewTrackerRejectsInvalidPolicy(t *testing.T) {
	store, err := history.New(testutil.TempRoot(t))
	require.NoError(t, err)
	_, err = NewTracker(store, nil, Options{Policy: retention.Policy{MaxAge: -time.Hour}}, nil)
	assert.ErrorIs(t, err, retention.ErrInvalidPolicy)
}

func TestNotifyRename(t *testing.T) {
	tracker, store, clock := newTracker(t, Options{})
	ctx := context.Background()

	_, err := tracker.NotifyChange(ctx, models.Job("site-A"), models.OpCreated, alice, []byte("<config/>"))
	require.NoError(t, err)
	clock.Advance(time.Second)

	rev, err := tracker.NotifyRename(ctx, models.Job("site-A"), models.Job("site-B"), models.User{}, []byte("<config/>"))
	require.NoError(t, err)
	assert.Equal(t, models.OpRenamed, rev.Operation)
	assert.Equal(t, "site-B", rev.EntityName)
	assert.Equal(t, models.SystemUser, rev.User)

	revs, err := store.ListRevisions(ctx, models.Job("site-B"))
	require.NoError(t, err)
	assert.Len(t, revs, 2)

	old, err := store.ListRevisions(ctx, models.Job("site-A"))
	require.NoError(t, err)
	assert.Empty(t, old)
}
