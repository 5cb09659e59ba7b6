package chat

import (
	"context"
	"io"
	"log/slog"
	"math"
	"neptunium/application"
	"neptunium/application/client"
	"neptunium/application/server"
	"neptunium/lib/diag"
	"neptunium/protocol/packet"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type lines chan string

func (l lines) Write(p []byte) (int, error) {
	l <- strings.TrimSuffix(string(p), "\n")
	return len(p), nil
}

func packets(t require.TestingT) *packet.Registry {
	reg := packet.NewRegistry()
	require.NoError(t, Register(reg))
	return reg
}

func TestParse(t *testing.T) {
	assert.Equal(t, &Nick{Name: "ada"}, Parse("/nick ada"))
	assert.Equal(t, &Say{Text: "hello"}, Parse("hello"))
	assert.Equal(t, &Say{Text: "/nickname"}, Parse("/nickname"))
}

func TestRegistriesAgree(t *testing.T) {
	assert.Equal(t, packets(t).Fingerprint(), packets(t).Fingerprint())
}

type RoomTestSuite struct {
	suite.Suite

	srv  *server.Server
	port uint16
	cfg  application.Config
}

func TestRoomTestSuite(t *testing.T) {
	suite.Run(t, new(RoomTestSuite))
}

func (s *RoomTestSuite) SetupTest() {
	s.cfg = application.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))}

	handlers := server.NewHandlers(diag.Discard)
	room, err := Serve(handlers)
	s.Require().NoError(err)

	s.srv, err = application.CreateServer(application.BindLocal, 0, "", packets(s.T()), handlers, s.cfg)
	s.Require().NoError(err)
	room.Attach(s.srv)

	_, s.port, err = application.SplitAddr(s.srv.Addr())
	s.Require().NoError(err)
}

func (s *RoomTestSuite) TearDownTest() {
	s.NoError(s.srv.Close())
}

func (s *RoomTestSuite) join() (*client.Client, lines) {
	out := make(lines, 16)
	handlers := client.NewHandlers(diag.Discard)
	s.Require().NoError(NewPrinter(out).Install(handlers))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := application.Connect(ctx, "127.0.0.1", s.port, "", packets(s.T()), handlers, s.cfg)
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		c.Close()
		c.Wait()
	})
	return c, out
}

func (s *RoomTestSuite) next(out lines) string {
	select {
	case l := <-out:
		return l
	case <-time.After(5 * time.Second):
		s.FailNow("no output")
		return ""
	}
}

func (s *RoomTestSuite) TestConversation() {
	alice, aliceOut := s.join()
	s.Equal("* guest-0 joined (guest-0)", s.next(aliceOut))

	bob, bobOut := s.join()
	s.Equal("* guest-1 joined (guest-0, guest-1)", s.next(aliceOut))
	s.Equal("* guest-1 joined (guest-0, guest-1)", s.next(bobOut))

	s.Require().NoError(alice.Send(Parse("/nick alice")))
	s.Equal("* 0 is now known as alice", s.next(bobOut))
	s.Equal("* 0 is now known as alice", s.next(aliceOut))

	s.Require().NoError(alice.Send(Parse("hello bob")))
	s.Equal("<alice> hello bob", s.next(bobOut))
	s.Equal("<alice> hello bob", s.next(aliceOut))

	bob.Close()
	s.Equal("* guest-1 left", s.next(aliceOut))
}
