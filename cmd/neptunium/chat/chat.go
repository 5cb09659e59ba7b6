// Package chat is a small room protocol built on neptunium packets.
package chat

import (
	"fmt"
	"io"
	"neptunium/application/client"
	"neptunium/application/server"
	sliceutil "neptunium/lib/slice"
	"neptunium/protocol/field"
	"neptunium/protocol/packet"
	"neptunium/session"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Nick renames the sender.
type Nick struct {
	Name string
}

func (p *Nick) Fields() []field.Field { return []field.Field{field.New(0, &p.Name)} }

// Say is a line typed by a user. The server fills From and Nick
// before relaying it to the room.
type Say struct {
	Text string
	From int64
	Nick string
}

func (p *Say) Fields() []field.Field {
	return []field.Field{
		field.New(0, &p.Text),
		field.New(1, &p.From),
		field.New(2, &p.Nick),
	}
}

type Presence int32

const (
	Joined Presence = iota
	Left
	Renamed
)

// Notice announces presence changes.
type Notice struct {
	Kind Presence
	ID   int64
	Nick string
	Room []string
}

func (p *Notice) Fields() []field.Field {
	return []field.Field{
		field.New(0, &p.Kind),
		field.New(1, &p.ID),
		field.New(2, &p.Nick),
		field.New(3, &p.Room),
	}
}

// Register adds the chat packets to reg. Server and clients must call it
// on registries holding nothing but the built-ins.
func Register(reg *packet.Registry) error {
	if _, err := packet.Register[Nick](reg); err != nil {
		return err
	}
	if _, err := packet.Register[Say](reg); err != nil {
		return err
	}
	if _, err := packet.Register[Notice](reg); err != nil {
		return err
	}
	return nil
}

type nickKey struct{}

func nickOf(s *session.Session) string {
	if v, ok := s.Value(nickKey{}); ok {
		return v.(string)
	}
	return fmt.Sprintf("guest-%d", s.ID())
}

// Room keeps server side chat state.
type Room struct {
	srv atomic.Pointer[server.Server]
}

// Serve installs the room handlers. It must be called before the server starts.
func Serve(handlers *server.Handlers) (*Room, error) {
	r := &Room{}
	if err := server.Handle(handlers, r.onNick); err != nil {
		return nil, err
	}
	if err := server.Handle(handlers, r.onSay); err != nil {
		return nil, err
	}
	return r, nil
}

// Attach subscribes the room to the session events of srv.
func (r *Room) Attach(srv *server.Server) {
	r.srv.Store(srv)
	srv.OnConnect(func(s *session.Session) { r.announce(Joined, s) })
	srv.OnDisconnect(func(s *session.Session) { r.announce(Left, s) })
}

func (r *Room) onNick(s *session.Session, p *Nick) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errors.Errorf("session %d sent an empty nick", s.ID())
	}
	s.SetValue(nickKey{}, name)
	r.announce(Renamed, s)
	return nil
}

func (r *Room) onSay(s *session.Session, p *Say) error {
	srv := r.srv.Load()
	if srv == nil {
		return errors.New("room is not attached")
	}
	return srv.Broadcast(&Say{Text: p.Text, From: s.ID(), Nick: nickOf(s)})
}

func (r *Room) announce(kind Presence, s *session.Session) {
	srv := r.srv.Load()
	if srv == nil {
		return
	}

	room := sliceutil.Map(srv.Sessions(), nickOf)
	_ = srv.Broadcast(&Notice{Kind: kind, ID: s.ID(), Nick: nickOf(s), Room: room})
}

// Printer renders incoming chat packets on a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer { return &Printer{out: out} }

// Install registers the printer handlers on a client table.
func (pr *Printer) Install(handlers *client.Handlers) error {
	if err := client.HandlePacket(handlers, pr.onSay); err != nil {
		return err
	}
	return client.HandlePacket(handlers, pr.onNotice)
}

func (pr *Printer) onSay(p *Say) error {
	pr.printf("<%s> %s\n", p.Nick, p.Text)
	return nil
}

func (pr *Printer) onNotice(p *Notice) error {
	switch p.Kind {
	case Joined:
		pr.printf("* %s joined (%s)\n", p.Nick, strings.Join(p.Room, ", "))
	case Left:
		pr.printf("* %s left\n", p.Nick)
	case Renamed:
		pr.printf("* %d is now known as %s\n", p.ID, p.Nick)
	}
	return nil
}

func (pr *Printer) printf(format string, args ...any) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	fmt.Fprintf(pr.out, format, args...)
}

// Parse turns a typed line into the packet to send.
// "/nick name" renames, anything else is said to the room.
func Parse(line string) packet.Packet {
	if name, ok := strings.CutPrefix(line, "/nick "); ok {
		return &Nick{Name: name}
	}
	return &Say{Text: line}
}
