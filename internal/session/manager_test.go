package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ctchen222/TicTacToe-Classic/internal/events"
	"ctchen222/TicTacToe-Classic/internal/game"
	"ctchen222/TicTacToe-Classic/internal/session"
	"ctchen222/TicTacToe-Classic/internal/session/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newManager(t *testing.T, recorder session.Recorder) (*session.Manager, <-chan events.Event) {
	t.Helper()
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	return session.NewManager(session.NewMemoryStore(time.Hour), bus, recorder), sub
}

func nextEvent(t *testing.T, sub <-chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return events.Event{}
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newManager(t, nil)
	ctx := context.Background()

	created, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, game.NewGame().Snapshot(), created.State)

	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.State, got.State)
}

func TestManager_GetUnknownSession(t *testing.T) {
	m, _ := newManager(t, nil)

	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = m.ApplyMove(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = m.Reset(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	assert.ErrorIs(t, m.Delete(context.Background(), "missing"), session.ErrSessionNotFound)
}

func TestManager_ApplyMove_WinIsRecordedAndPublished(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	m, sub := newManager(t, recorder)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)

	recorder.EXPECT().
		Record(gomock.Any(), s.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, state game.State) error {
			assert.Equal(t, game.StatusWon, state.Status)
			assert.Equal(t, game.PlayerX, state.Winner)
			return nil
		}).
		Times(1)

	var last *session.Session
	for _, idx := range []int{0, 3, 1, 4, 2} {
		last, err = m.ApplyMove(ctx, s.ID, idx)
		require.NoError(t, err)

		event := nextEvent(t, sub)
		require.Equal(t, events.TypeStateChanged, event.Type)
		var payload events.StateChangedPayload
		require.NoError(t, event.Decode(&payload))
		assert.Equal(t, s.ID, payload.SessionID)
		assert.Equal(t, last.State, payload.State)
	}

	assert.Equal(t, game.StatusWon, last.State.Status)
	assert.Equal(t, game.PlayerX, last.State.Winner)
}

func TestManager_ApplyMove_Rejected(t *testing.T) {
	m, sub := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	after, err := m.ApplyMove(ctx, s.ID, 0)
	require.NoError(t, err)
	nextEvent(t, sub)

	again, err := m.ApplyMove(ctx, s.ID, 0)
	assert.ErrorIs(t, err, game.ErrCellOccupied)
	require.NotNil(t, again)
	assert.Equal(t, after.State, again.State)
	assert.Equal(t, game.PlayerO, again.State.Turn)

	outside, err := m.ApplyMove(ctx, s.ID, 9)
	assert.ErrorIs(t, err, game.ErrInvalidIndex)
	require.NotNil(t, outside)
	assert.Equal(t, after.State, outside.State)

	select {
	case e := <-sub:
		t.Fatalf("rejected move published %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}

	stored, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, after.State, stored.State)
}

func TestManager_ApplyMove_DrawIsRecorded(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	m, _ := newManager(t, recorder)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)

	recorder.EXPECT().Record(gomock.Any(), s.ID, gomock.Any()).Return(errors.New("disk full")).Times(1)

	var last *session.Session
	for _, idx := range []int{0, 1, 2, 4, 3, 5, 7, 6, 8} {
		last, err = m.ApplyMove(ctx, s.ID, idx)
		require.NoError(t, err)
	}
	// A failing recorder does not fail the move.
	assert.Equal(t, game.StatusDraw, last.State.Status)
}

func TestManager_Reset(t *testing.T) {
	m, sub := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	for _, idx := range []int{0, 3, 1, 4, 2} {
		_, err = m.ApplyMove(ctx, s.ID, idx)
		require.NoError(t, err)
		nextEvent(t, sub)
	}

	for range 3 {
		reset, err := m.Reset(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, game.NewGame().Snapshot(), reset.State)
		assert.Equal(t, events.TypeStateChanged, nextEvent(t, sub).Type)
	}

	played, err := m.ApplyMove(ctx, s.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerX, played.State.Board[8])
}

func TestManager_Delete(t *testing.T) {
	m, sub := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, s.ID))
	assert.Equal(t, events.TypeSessionDeleted, nextEvent(t, sub).Type)

	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestManager_ConcurrentMovesOnOneCell(t *testing.T) {
	m, _ := newManager(t, nil)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)

	const players = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		occupied int
	)
	for range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ApplyMove(ctx, s.ID, 4)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, game.ErrCellOccupied):
				occupied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, players-1, occupied)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerO, got.State.Turn)
}

func TestManager_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	m := session.NewManager(store, events.NewLocalBus(), nil)
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(storeErr)
	_, err := m.Create(ctx)
	assert.ErrorIs(t, err, storeErr)

	store.EXPECT().Update(gomock.Any(), "s1", gomock.Any()).Return(nil, storeErr)
	s, err := m.ApplyMove(ctx, "s1", 0)
	assert.ErrorIs(t, err, storeErr)
	assert.Nil(t, s)

	store.EXPECT().Get(gomock.Any(), "s1").Return(&session.Session{ID: "s1"}, nil)
	store.EXPECT().Delete(gomock.Any(), "s1").Return(storeErr)
	assert.ErrorIs(t, m.Delete(ctx, "s1"), storeErr)
}
