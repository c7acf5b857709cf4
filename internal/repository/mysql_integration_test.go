//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/iliyamo/easel-entry/internal/database"
	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/repository"
	"github.com/iliyamo/easel-entry/internal/service"
)

// Run with: go test -tags integration ./internal/repository/...
func openMySQL(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("easel"),
		mysql.WithUsername("easel"),
		mysql.WithPassword("easel"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	require.NoError(t, err)
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func TestMySQL_ConcurrentEntries(t *testing.T) {
	db := openMySQL(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	participants := repository.NewParticipantRepo(db)
	slots := repository.NewSlotRepo(db)
	comps := service.NewCompetitions(8, "spring")
	require.NoError(t, comps.Seed(ctx, slots))

	alloc := service.NewAllocator(slots, logger)
	entries := service.NewEntryService(participants, alloc, repository.NewWebhookEventRepo(db), nil, comps, logger)

	users := make([]string, 10)
	for i := range users {
		users[i] = fmt.Sprintf("user-%02d", i)
		require.NoError(t, participants.MarkPending(ctx, model.Participant{CompetitionID: "spring", UserID: users[i]}, "ch_"+users[i]))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		got     []int
		refused int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			res, err := entries.Confirm(ctx, "spring", u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, service.ErrCapacityExceeded)
				refused++
				return
			}
			got = append(got, *res.Participant.SlotNumber)
		}(u)
	}
	wg.Wait()

	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, got)
	assert.Equal(t, 2, refused)

	free, err := slots.Free(ctx, "spring")
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestMySQL_MarkPendingKeepsEntered(t *testing.T) {
	db := openMySQL(t)
	ctx := context.Background()
	participants := repository.NewParticipantRepo(db)
	p := model.Participant{CompetitionID: "spring", UserID: "a", DisplayName: "Ada"}

	require.NoError(t, participants.MarkPending(ctx, p, "ch_1"))
	require.NoError(t, participants.MarkEntered(ctx, "spring", "a", 1))

	assert.ErrorIs(t, participants.MarkPending(ctx, p, "ch_2"), repository.ErrConflict)
	got, err := participants.Get(ctx, "spring", "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEntered, got.Status)
	assert.Equal(t, 1, *got.SlotNumber)
}

func TestMySQL_QueuePositionAndAuditHeaders(t *testing.T) {
	db := openMySQL(t)
	ctx := context.Background()
	participants := repository.NewParticipantRepo(db)
	for _, u := range []string{"a", "b", "c"} {
		_, err := participants.Join(ctx, model.Participant{CompetitionID: "spring", UserID: u})
		require.NoError(t, err)
	}
	require.NoError(t, participants.MarkEntered(ctx, "spring", "a", 1))

	pos, err := participants.Position(ctx, "spring", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	events := repository.NewWebhookEventRepo(db)
	_, err = events.Record(ctx, model.WebhookEvent{
		EventID: "evt_1", Type: "payment.succeeded", DeliveryID: "msg_1",
		Timestamp: "1772359200", Signature: "v1,abc", Body: []byte(`{}`), ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
	var ts, sig string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT webhook_timestamp, signature FROM webhook_events WHERE event_id = ?`, "evt_1").Scan(&ts, &sig))
	assert.Equal(t, "1772359200", ts)
	assert.Equal(t, "v1,abc", sig)
}
