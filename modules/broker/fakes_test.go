package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/directory"
)

// fakeSocket is an in-memory Socket.
type fakeSocket struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	closed   bool

	reads     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		reads: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-s.reads:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, data, nil
	case <-s.done:
		return 0, nil, io.EOF
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *fakeSocket) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *fakeSocket) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.written))
	for _, w := range s.written {
		out = append(out, string(w))
	}
	return out
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// waitFrames polls until the socket has received n frames.
func (s *fakeSocket) waitFrames(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := s.frames(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %v", n, s.frames())
	return nil
}

// mockDirectory implements Directory for testing.
type mockDirectory struct {
	lookupUserFunc     func(ctx context.Context, req directory.LookupUserRequest) (directory.LookupUserResponse, error)
	lookupRoomFunc     func(ctx context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error)
	persistMessageFunc func(ctx context.Context, req directory.PersistMessageRequest) (directory.PersistMessageResponse, error)
	queryMessagesFunc  func(ctx context.Context, req directory.QueryMessagesRequest) (directory.QueryMessagesResponse, error)
}

func (m *mockDirectory) LookupUser(ctx context.Context, req directory.LookupUserRequest) (directory.LookupUserResponse, error) {
	if m.lookupUserFunc != nil {
		return m.lookupUserFunc(ctx, req)
	}
	return directory.LookupUserResponse{}, errors.New("not implemented")
}

func (m *mockDirectory) LookupRoom(ctx context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error) {
	if m.lookupRoomFunc != nil {
		return m.lookupRoomFunc(ctx, req)
	}
	return directory.LookupRoomResponse{}, errors.New("not implemented")
}

func (m *mockDirectory) PersistMessage(ctx context.Context, req directory.PersistMessageRequest) (directory.PersistMessageResponse, error) {
	if m.persistMessageFunc != nil {
		return m.persistMessageFunc(ctx, req)
	}
	return directory.PersistMessageResponse{}, errors.New("not implemented")
}

func (m *mockDirectory) QueryMessages(ctx context.Context, req directory.QueryMessagesRequest) (directory.QueryMessagesResponse, error) {
	if m.queryMessagesFunc != nil {
		return m.queryMessagesFunc(ctx, req)
	}
	return directory.QueryMessagesResponse{}, errors.New("not implemented")
}

// memoryCache is an in-memory PageCache.
type memoryCache struct {
	mu          sync.Mutex
	pages       map[string][]domain.HistoryEntry
	generations map[string]int64
	gets        int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		pages:       make(map[string][]domain.HistoryEntry),
		generations: make(map[string]int64),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]domain.HistoryEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	page, ok := c.pages[key]
	return page, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, page []domain.HistoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[key] = page
	return nil
}

func (c *memoryCache) Generation(_ context.Context, roomID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[roomID], nil
}

func (c *memoryCache) InvalidateRoom(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[roomID]++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// queued drains the frames waiting in a connection's send queue. The
// writer of connections created by joinConn is not started.
func queued(c *Conn) []string {
	var out []string
	for {
		select {
		case data := <-c.send:
			out = append(out, string(data))
		default:
			return out
		}
	}
}

// stuckSocket is a Socket whose writes block until it is closed.
type stuckSocket struct {
	*fakeSocket
	writing chan struct{}
	once    sync.Once
}

func newStuckSocket() *stuckSocket {
	return &stuckSocket{fakeSocket: newFakeSocket(), writing: make(chan struct{})}
}

func (s *stuckSocket) WriteMessage(int, []byte) error {
	s.once.Do(func() { close(s.writing) })
	<-s.done
	return errors.New("use of closed connection")
}

// deadlineSocket fails every write once a write deadline has been set.
type deadlineSocket struct {
	*fakeSocket
	deadlines atomic.Int32
}

func (s *deadlineSocket) SetWriteDeadline(time.Time) error {
	s.deadlines.Add(1)
	return nil
}

func (s *deadlineSocket) WriteMessage(int, []byte) error {
	return os.ErrDeadlineExceeded
}

// joinConn creates a connection on ep and admits it into key.
func joinConn(t *testing.T, r *Registry, ep Endpoint, key GroupKey, id domain.Identity) (*Conn, *fakeSocket) {
	t.Helper()
	socket := newFakeSocket()
	c := NewConn(socket, ep, id)
	if err := r.Join(key, c); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	return c, socket
}
