package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/easel-entry/internal/model"
	"github.com/iliyamo/easel-entry/internal/repository"
)

func TestSlots_ClaimIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewSlots()
	require.NoError(t, s.Ensure(ctx, "spring", 3))

	ok, err := s.Claim(ctx, "spring", 2, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "spring", 2, "b")
	require.NoError(t, err)
	assert.False(t, ok, "occupied slot cannot be claimed")

	_, err = s.Claim(ctx, "spring", 1, "a")
	assert.ErrorIs(t, err, repository.ErrSlotHeld)

	ok, err = s.Claim(ctx, "spring", 9, "c")
	require.NoError(t, err)
	assert.False(t, ok, "unknown slot")

	free, err := s.Free(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, free)

	n, err := s.HeldBy(ctx, "spring", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSlots_ReleaseOnlyByHolder(t *testing.T) {
	ctx := context.Background()
	s := NewSlots()
	require.NoError(t, s.Ensure(ctx, "spring", 2))
	_, err := s.Claim(ctx, "spring", 1, "a")
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, "spring", 1, "b"))
	_, err = s.HeldBy(ctx, "spring", "a")
	assert.NoError(t, err)

	require.NoError(t, s.Release(ctx, "spring", 1, "a"))
	_, err = s.HeldBy(ctx, "spring", "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestParticipants_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewParticipants()
	p := model.Participant{CompetitionID: "spring", UserID: "a", DisplayName: "Ada"}

	joined, err := s.Join(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, joined.Status)

	require.NoError(t, s.MarkPending(ctx, p, "ch_1"))
	require.NoError(t, s.MarkEntered(ctx, "spring", "a", 1))

	got, err := s.Get(ctx, "spring", "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEntered, got.Status)
	assert.True(t, got.Paid)
	assert.Equal(t, 1, *got.SlotNumber)

	assert.ErrorIs(t, s.MarkPending(ctx, p, "ch_2"), repository.ErrConflict)
	assert.ErrorIs(t, s.MarkEntered(ctx, "spring", "a", 2), repository.ErrConflict)
	assert.ErrorIs(t, s.MarkEntered(ctx, "spring", "ghost", 2), repository.ErrNotFound)

	// slot numbers are unique per competition
	require.NoError(t, s.MarkPending(ctx, model.Participant{CompetitionID: "spring", UserID: "b"}, "ch_b"))
	assert.ErrorIs(t, s.MarkEntered(ctx, "spring", "b", 1), repository.ErrConflict)

	// returned values are copies
	*got.SlotNumber = 5
	again, err := s.Get(ctx, "spring", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, *again.SlotNumber)

	require.NoError(t, s.Delete(ctx, "spring", "a"))
	assert.ErrorIs(t, s.Delete(ctx, "spring", "a"), repository.ErrNotFound)
}

func TestParticipants_ResetStalePending(t *testing.T) {
	ctx := context.Background()
	s := NewParticipants()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.MarkPending(ctx, model.Participant{CompetitionID: "spring", UserID: "old"}, "ch_old"))
	now = now.Add(time.Hour)
	require.NoError(t, s.MarkPending(ctx, model.Participant{CompetitionID: "spring", UserID: "new"}, "ch_new"))

	n, err := s.ResetStalePending(ctx, now.Add(-30*time.Minute))

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	old, _ := s.Get(ctx, "spring", "old")
	assert.Equal(t, model.StatusWaiting, old.Status)
	assert.Empty(t, old.CheckoutID)
	fresh, _ := s.Get(ctx, "spring", "new")
	assert.Equal(t, model.StatusPending, fresh.Status)
}

func TestEvents_RecordAndMark(t *testing.T) {
	ctx := context.Background()
	s := NewEvents()

	processed, err := s.Record(ctx, model.WebhookEvent{EventID: "evt_1"})
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, s.MarkProcessed(ctx, "evt_1"))
	processed, err = s.Record(ctx, model.WebhookEvent{EventID: "evt_1"})
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, s.Len())
}

func TestParticipants_Position(t *testing.T) {
	ctx := context.Background()
	s := NewParticipants()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Join(ctx, model.Participant{CompetitionID: "spring", UserID: id})
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkPending(ctx, model.Participant{CompetitionID: "spring", UserID: "d"}, "ch_d"))
	_, err := s.Join(ctx, model.Participant{CompetitionID: "autumn", UserID: "z"})
	require.NoError(t, err)

	pos, err := s.Position(ctx, "spring", "c")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	require.NoError(t, s.MarkEntered(ctx, "spring", "a", 1))
	require.NoError(t, s.Delete(ctx, "spring", "b"))

	pos, err = s.Position(ctx, "spring", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "entered and departed participants no longer count")
	pos, err = s.Position(ctx, "spring", "d")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	pos, err = s.Position(ctx, "spring", "a")
	require.NoError(t, err)
	assert.Zero(t, pos)

	_, err = s.Position(ctx, "spring", "b")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEvents_KeepsSignatureHeaders(t *testing.T) {
	ctx := context.Background()
	s := NewEvents()
	_, err := s.Record(ctx, model.WebhookEvent{EventID: "evt_1", DeliveryID: "msg_1", Timestamp: "1772359200", Signature: "v1,abc"})
	require.NoError(t, err)

	// a replay does not overwrite the first delivery's headers
	_, err = s.Record(ctx, model.WebhookEvent{EventID: "evt_1", DeliveryID: "msg_2", Timestamp: "1772359300", Signature: "v1,def"})
	require.NoError(t, err)

	ev, ok := s.Get("evt_1")
	require.True(t, ok)
	assert.Equal(t, "msg_1", ev.DeliveryID)
	assert.Equal(t, "1772359200", ev.Timestamp)
	assert.Equal(t, "v1,abc", ev.Signature)
}
