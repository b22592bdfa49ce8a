// Package dispatchertest provides in-memory dispatcher servers for tests.
package dispatchertest

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/a783925458/phantom-acceptor/internal/dispatcher"
)

const bufSize = 1 << 20

// Server is a dispatcher that records every frame it receives and can push
// frames back to connected acceptors.
type Server struct {
	lis *bufconn.Listener
	srv *grpc.Server

	mu       sync.Mutex
	received [][]byte
	streams  []grpc.ServerStream
	sendMu   sync.Mutex
}

// NewServer starts a server on an in-memory listener. It is stopped when
// the test finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		lis: bufconn.Listen(bufSize),
		srv: grpc.NewServer(),
	}
	s.srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: dispatcher.ServiceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    dispatcher.StreamName,
			Handler:       s.route,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, s)
	go s.srv.Serve(s.lis)
	t.Cleanup(s.Stop)
	return s
}

// Stop closes every stream and the listener.
func (s *Server) Stop() {
	s.srv.Stop()
}

// Dial connects to the in-memory listener.
func (s *Server) Dial(ctx context.Context) (net.Conn, error) {
	return s.lis.DialContext(ctx)
}

// Received returns copies of all frames received so far.
func (s *Server) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// Streams returns the number of open Route streams.
func (s *Server) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Push sends frame to every connected acceptor.
func (s *Server) Push(frame []byte) error {
	s.mu.Lock()
	streams := append([]grpc.ServerStream(nil), s.streams...)
	s.mu.Unlock()
	if len(streams) == 0 {
		return fmt.Errorf("no connected streams")
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, st := range streams {
		if err := st.SendMsg(&frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) route(_ any, stream grpc.ServerStream) error {
	s.mu.Lock()
	s.streams = append(s.streams, stream)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		for i, st := range s.streams {
			if st == stream {
				s.streams = append(s.streams[:i], s.streams[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		var frame []byte
		if err := stream.RecvMsg(&frame); err != nil {
			return nil
		}
		s.mu.Lock()
		s.received = append(s.received, frame)
		s.mu.Unlock()
	}
}

// Network routes passthrough targets to named in-memory servers, so one
// dial option serves several dispatchers.
type Network struct {
	mu      sync.Mutex
	servers map[string]*Server
}

// Add starts a server reachable at Target(name).
func (n *Network) Add(t testing.TB, name string) *Server {
	t.Helper()
	s := NewServer(t)
	n.mu.Lock()
	if n.servers == nil {
		n.servers = make(map[string]*Server)
	}
	n.servers[name] = s
	n.mu.Unlock()
	return s
}

// Target is the client address of the named server.
func Target(name string) string {
	return "passthrough:///" + name
}

// DialOption returns a dialer resolving names registered with Add.
func (n *Network) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		name := strings.TrimPrefix(addr, "passthrough:///")
		n.mu.Lock()
		s := n.servers[name]
		n.mu.Unlock()
		if s == nil {
			return nil, fmt.Errorf("unknown dispatcher %q", name)
		}
		return s.Dial(ctx)
	})
}
