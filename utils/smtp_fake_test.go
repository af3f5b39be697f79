package utils

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SCRIPTED SMTP SERVER
// =============================================================================

// scriptedServer speaks just enough SMTP for one probe and records every
// command line it receives.
type scriptedServer struct {
	greeting string // full reply line, e.g. "220 mx.test ready"
	ehloResp string
	mailResp string
	rcptResp string
	silent   bool // accept and never answer

	listener net.Listener
	mu       sync.Mutex
	commands []string
	done     chan struct{}
}

func newScriptedServer(t *testing.T, s *scriptedServer) *scriptedServer {
	t.Helper()
	if s.greeting == "" {
		s.greeting = "220 mx.test ESMTP ready"
	}
	if s.ehloResp == "" {
		s.ehloResp = "250 mx.test"
	}
	if s.mailResp == "" {
		s.mailResp = "250 2.1.0 OK"
	}
	if s.rcptResp == "" {
		s.rcptResp = "250 2.1.5 OK"
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.listener = l
	s.done = make(chan struct{})

	go s.serve()
	t.Cleanup(func() {
		l.Close()
		<-s.done
	})
	return s
}

func (s *scriptedServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *scriptedServer) serve() {
	defer close(s.done)
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if s.silent {
		_, _ = io.Copy(io.Discard, conn)
		return
	}

	tp := textproto.NewConn(conn)
	reply := func(line string) bool {
		return tp.PrintfLine("%s", line) == nil
	}
	if !reply(s.greeting) || !strings.HasPrefix(s.greeting, "2") {
		// a rejecting greeting is followed by whatever the client still sends
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			s.record(line)
			if strings.EqualFold(line, "QUIT") {
				reply("221 bye")
				return
			}
			reply("503 bad sequence")
		}
	}

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		s.record(line)
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch {
		case verb == "EHLO" || verb == "HELO":
			reply(s.ehloResp)
		case strings.HasPrefix(strings.ToUpper(line), "MAIL FROM:"):
			reply(s.mailResp)
		case strings.HasPrefix(strings.ToUpper(line), "RCPT TO:"):
			reply(s.rcptResp)
		case verb == "DATA":
			reply("554 no data expected")
		case verb == "RSET" || verb == "NOOP":
			reply("250 OK")
		case verb == "QUIT":
			reply("221 2.0.0 bye")
			return
		default:
			reply("502 unrecognized")
		}
	}
}

func (s *scriptedServer) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, line)
}

// observed waits for the session to end and returns the recorded commands.
func (s *scriptedServer) observed() []string {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func hasCommand(commands []string, prefix string) bool {
	for _, c := range commands {
		if strings.HasPrefix(strings.ToUpper(c), strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

// =============================================================================
// GO-SMTP BACKEND
// =============================================================================

// mailboxBackend accepts RCPT only for known mailboxes and stores any DATA
// it receives.
type mailboxBackend struct {
	mailboxes map[string]bool

	mu       sync.Mutex
	messages []receivedMessage
}

type receivedMessage struct {
	From string
	To   []string
	Data string
}

func (b *mailboxBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &mailboxSession{backend: b}, nil
}

func (b *mailboxBackend) received() []receivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]receivedMessage(nil), b.messages...)
}

type mailboxSession struct {
	backend *mailboxBackend
	from    string
	to      []string
}

func (s *mailboxSession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *mailboxSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.mailboxes != nil && !s.backend.mailboxes[strings.ToLower(to)] {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "No such user here",
		}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *mailboxSession) Data(r io.Reader) error {
	body, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, receivedMessage{From: s.from, To: s.to, Data: string(body)})
	s.backend.mu.Unlock()
	return nil
}

func (s *mailboxSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *mailboxSession) Logout() error { return nil }

// startMailboxServer serves backend on a loopback port and returns the port.
func startMailboxServer(t *testing.T, backend *mailboxBackend) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return l.Addr().(*net.TCPAddr).Port
}

// =============================================================================
// RESOLVER
// =============================================================================

type fakeResolver struct {
	records map[string][]*net.MX
	err     error
	queries []string
}

func (r *fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	r.queries = append(r.queries, name)
	if r.err != nil {
		return nil, r.err
	}
	return r.records[name], nil
}

func loopbackResolver(domain string) *fakeResolver {
	return &fakeResolver{records: map[string][]*net.MX{
		domain: {{Host: "127.0.0.1.", Pref: 10}},
	}}
}
