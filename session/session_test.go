package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-app/domain"
	"chat-app/domain/event"
	"chat-app/encryption"
	apperrors "chat-app/errors"
	"chat-app/mocks"
	"chat-app/store"
	"chat-app/transport"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testRoom = "chat_room"

// testEnv wires a real badger store behind the in-process bus, the same shape
// the binaries assemble.
type testEnv struct {
	bus   *transport.Bus
	store *store.PublishingStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	repository, err := store.NewMessageRepository(db, log)
	req.NoError(err)
	t.Cleanup(func() { _ = repository.Close() })

	bus := transport.NewBus(log)
	return testEnv{bus: bus, store: store.NewPublishingStore(repository, bus, log)}
}

func (e testEnv) startSession(t *testing.T, username string) *Session {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	s := New(username, testRoom, e.store, e.bus, 50*time.Millisecond, log)
	req.NoError(s.Join(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		s.Leave()
		cancel()
		<-done
	})
	return s
}

func bodies(messages []domain.Message) []string {
	return lo.Map(messages, func(m domain.Message, _ int) string { return m.Body })
}

func TestSession_PublicAndPrivateVisibility(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.startSession(t, "alice")
	bob := env.startSession(t, "bob")

	req.NoError(alice.Send("", "hi"))
	req.NoError(alice.Send("bob", "secret"))

	require.Eventually(t, func() bool {
		return len(bob.Messages()) == 2
	}, time.Second, 10*time.Millisecond)
	req.Equal([]string{"hi", "secret"}, bodies(bob.Messages()))

	// Carol joins the same room afterwards: the bulk fetch must filter the
	// private message exactly like the live path did for bob.
	carol := env.startSession(t, "carol")
	req.Equal([]string{"hi"}, bodies(carol.Messages()))

	require.Eventually(t, func() bool {
		return len(alice.Messages()) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestSession_SendRefusedBeforeSynced(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	s := New("alice", testRoom, env.store, env.bus, time.Second, log)
	req.ErrorIs(s.Send("", "too early"), apperrors.ErrNotSynced)
	req.ErrorIs(s.Send("", "   "), apperrors.ErrEmptyMessage)
}

func TestSession_DuplicateInsertEventIsNoOp(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	bob := env.startSession(t, "bob")

	sealed, err := encryption.Encrypt("hello", encryption.DeriveKey("alice", ""))
	req.NoError(err)
	message := domain.Message{ID: 42, Sender: "alice", Room: testRoom, Body: sealed, At: time.Now().UTC()}

	req.NoError(env.bus.PublishInsert(message))
	req.NoError(env.bus.PublishInsert(message))

	require.Eventually(t, func() bool {
		return len(bob.Messages()) == 1
	}, time.Second, 10*time.Millisecond)

	// Still one message after the duplicate had time to arrive.
	time.Sleep(50 * time.Millisecond)
	messages := bob.Messages()
	req.Len(messages, 1)
	req.Equal("hello", messages[0].Body)
}

func TestSession_BuffersInsertsDuringBulkFetch(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := transport.NewBus(log)
	storeMock := mocks.NewMockMessageStore(ctrl)

	at := time.Now().UTC()
	history := []domain.Message{
		{ID: 1, Sender: "alice", Room: testRoom, Body: "one", At: at},
		{ID: 2, Sender: "alice", Room: testRoom, Body: "two", At: at.Add(time.Second)},
		{ID: 3, Sender: "alice", Room: testRoom, Body: "three", At: at.Add(2 * time.Second)},
	}
	live := domain.Message{ID: 4, Sender: "bob", Room: testRoom, Body: "four", At: at.Add(3 * time.Second)}

	// The insert event for id 4 races ahead of the bulk fetch: it is
	// published while the fetch is still in flight, after the subscription
	// opened. The session must buffer it and merge it afterwards.
	storeMock.EXPECT().
		SelectAll(testRoom).
		DoAndReturn(func(string) ([]domain.Message, error) {
			req.NoError(bus.PublishInsert(live))
			return history, nil
		})

	s := New("carol", testRoom, storeMock, bus, time.Second, log)
	req.NoError(s.Join(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 4
	}, time.Second, 10*time.Millisecond)

	ids := lo.Map(s.Messages(), func(m domain.Message, _ int) int64 { return m.ID })
	req.Equal([]int64{1, 2, 3, 4}, ids)
	s.Leave()
}

func TestSession_OutOfOrderInsertsAreReordered(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	bob := env.startSession(t, "bob")
	at := time.Now().UTC()

	later := domain.Message{ID: 2, Sender: "alice", Room: testRoom, Body: "later", At: at.Add(time.Second)}
	earlier := domain.Message{ID: 1, Sender: "alice", Room: testRoom, Body: "earlier", At: at}

	// Transport delivery order differs from timestamp order.
	req.NoError(env.bus.PublishInsert(later))
	req.NoError(env.bus.PublishInsert(earlier))

	require.Eventually(t, func() bool {
		return len(bob.Messages()) == 2
	}, time.Second, 10*time.Millisecond)

	messages := bob.Messages()
	req.Equal(int64(1), messages[0].ID)
	req.Equal(int64(2), messages[1].ID)
}

func TestSession_TypingRoundTrip(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.startSession(t, "alice")
	bob := env.startSession(t, "bob")

	alice.Typing()

	require.Eventually(t, func() bool {
		return lo.Contains(bob.Roster().Typing, "alice")
	}, time.Second, 10*time.Millisecond)

	// Self-exclusion: alice never sees herself.
	req.NotContains(alice.Roster().Typing, "alice")
	req.NotContains(alice.Roster().Online, "alice")

	// Quiet interval elapses with no further input: typing clears.
	require.Eventually(t, func() bool {
		return !lo.Contains(bob.Roster().Typing, "alice")
	}, time.Second, 10*time.Millisecond)
	req.Contains(bob.Roster().Online, "alice")
}

func TestSession_LeaveRemovesPresence(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.startSession(t, "alice")
	bob := env.startSession(t, "bob")

	require.Eventually(t, func() bool {
		return lo.Contains(bob.Roster().Online, "alice")
	}, time.Second, 10*time.Millisecond)

	alice.Leave()
	req.Equal(Disconnected, alice.Phase())
	req.ErrorIs(alice.Send("", "after leave"), apperrors.ErrNotSynced)

	require.Eventually(t, func() bool {
		return !lo.Contains(bob.Roster().Online, "alice")
	}, time.Second, 10*time.Millisecond)
}

func TestSession_ClearEmptiesRoom(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.startSession(t, "alice")
	req.NoError(alice.Send("", "disposable"))
	require.Eventually(t, func() bool {
		return len(alice.Messages()) == 1
	}, time.Second, 10*time.Millisecond)

	req.NoError(alice.Clear())
	req.Empty(alice.Messages())

	// A session joining after the clear sees an empty history.
	carol := env.startSession(t, "carol")
	req.Empty(carol.Messages())
}

func TestSession_LeaveDropsBufferedEvents(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMockMessageStore(ctrl)
	transportMock := mocks.NewMockTransport(ctrl)
	subMock := mocks.NewMockSubscription(ctrl)

	events := make(chan event.SessionEvent, 4)
	subMock.EXPECT().Events().Return((<-chan event.SessionEvent)(events)).AnyTimes()
	subMock.EXPECT().Track(gomock.Any()).Return(nil)
	subMock.EXPECT().Untrack().Return(nil)
	subMock.EXPECT().Close().Return(nil)
	transportMock.EXPECT().Subscribe(gomock.Any(), testRoom, "bob").Return(subMock, nil)
	storeMock.EXPECT().SelectAll(testRoom).Return(nil, nil)

	s := New("bob", testRoom, storeMock, transportMock, time.Second, log)
	req.NoError(s.Join(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(context.Background())
	}()

	s.Leave()

	// An insert still buffered on the subscription when the session left must
	// be dropped by the loop, never appended to the dead sequence.
	events <- event.Insert{Message: domain.Message{
		ID: 1, Sender: "alice", Room: testRoom, Body: "late", At: time.Now().UTC(),
	}}
	close(events)
	<-done

	req.Empty(s.Messages())
	req.Equal(Disconnected, s.Phase())
}

func TestSession_LeaveDuringJoinAbortsSync(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := transport.NewBus(log)
	storeMock := mocks.NewMockMessageStore(ctrl)

	var s *Session
	storeMock.EXPECT().
		SelectAll(testRoom).
		DoAndReturn(func(string) ([]domain.Message, error) {
			// The participant disconnects while the bulk fetch is in flight.
			s.Leave()
			return nil, nil
		})

	s = New("alice", testRoom, storeMock, bus, time.Second, log)
	req.ErrorIs(s.Join(context.Background()), apperrors.ErrSessionClosed)
	req.Equal(Disconnected, s.Phase())
	req.ErrorIs(s.Send("", "after abort"), apperrors.ErrNotSynced)
}

func TestSession_UnreadablePayloadRendersSentinel(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	bob := env.startSession(t, "bob")

	// A payload that is not valid ciphertext must render as the sentinel,
	// never crash the session.
	req.NoError(env.bus.PublishInsert(domain.Message{
		ID: 7, Sender: "alice", Room: testRoom, Body: "plain garbage", At: time.Now().UTC(),
	}))

	require.Eventually(t, func() bool {
		return len(bob.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal(encryption.Unreadable, bob.Messages()[0].Body)
}
