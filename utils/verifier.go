// utils/verifier.go
package utils

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
)

type VerificationOutcome string

const (
	OutcomeDeliverable    VerificationOutcome = "deliverable"
	OutcomeMXMissing      VerificationOutcome = "mx-missing"
	OutcomeTransportError VerificationOutcome = "transport-error"
	OutcomeRejected       VerificationOutcome = "rejected"
	// OutcomeInvalidSyntax marks an address rejected before any SMTP session.
	OutcomeInvalidSyntax VerificationOutcome = "invalid-syntax"
)

const ReasonMXLookupFailed = "mx-lookup-failed"

var (
	ErrNoMailExchange = errors.New("no mail exchange")
	ErrSenderRequired = errors.New("verifier sender address is required")
)

// VerificationResult is the answer to "would this mailbox accept mail".
// Deliverable is best effort: catch-all servers accept every RCPT, so a
// positive answer does not prove the mailbox exists.
type VerificationResult struct {
	Email       string              `json:"email"`
	Deliverable bool                `json:"deliverable"`
	Outcome     VerificationOutcome `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
	Exchange    string              `json:"exchange,omitempty"`
	WHOIS       string              `json:"whois,omitempty"`
}

// MXResolver is satisfied by *net.Resolver.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

type VerifierOptions struct {
	Sender   string
	HeloName string
	Port     int
	Timeout  time.Duration
}

type MailboxVerifier struct {
	resolver MXResolver
	dialer   *net.Dialer
	sender   string
	heloName string
	port     int
	timeout  time.Duration
}

// NewMailboxVerifier requires a sender. MAIL FROM never uses the null
// reverse-path.
func NewMailboxVerifier(resolver MXResolver, opts VerifierOptions) (*MailboxVerifier, error) {
	if opts.Sender == "" {
		return nil, ErrSenderRequired
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if opts.HeloName == "" {
		opts.HeloName = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 25
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &MailboxVerifier{
		resolver: resolver,
		dialer:   &net.Dialer{Timeout: opts.Timeout},
		sender:   opts.Sender,
		heloName: opts.HeloName,
		port:     opts.Port,
		timeout:  opts.Timeout,
	}, nil
}

// ResolveMX returns the most preferred exchange host for domain, without
// the trailing root dot. One query, no retry.
func (v *MailboxVerifier) ResolveMX(ctx context.Context, domain string) (string, error) {
	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrNoMailExchange, domain, err)
	}
	host := PreferredExchange(records)
	if host == "" {
		return "", fmt.Errorf("%w for %s", ErrNoMailExchange, domain)
	}
	return host, nil
}

// PreferredExchange picks the lowest-preference record. Ties keep the order
// the resolver returned them in.
func PreferredExchange(records []*net.MX) string {
	if len(records) == 0 {
		return ""
	}
	sorted := make([]*net.MX, 0, len(records))
	for _, mx := range records {
		if mx != nil {
			sorted = append(sorted, mx)
		}
	}
	if len(sorted) == 0 {
		return ""
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Pref < sorted[j].Pref
	})
	return strings.TrimSuffix(sorted[0].Host, ".")
}

// Verify resolves the recipient's mail exchange and asks it whether it
// would accept mail for email. It never returns an error; every failure is
// folded into the result.
func (v *MailboxVerifier) Verify(ctx context.Context, email string) (result VerificationResult) {
	result = VerificationResult{Email: email, Outcome: OutcomeTransportError}
	defer func() {
		if r := recover(); r != nil {
			result.Deliverable = false
			result.Outcome = OutcomeTransportError
			result.Reason = fmt.Sprintf("verifier panic: %v", r)
		}
	}()

	domain := ExtractDomain(email)
	if domain == "" {
		result.Outcome = OutcomeMXMissing
		result.Reason = ReasonMXLookupFailed
		return result
	}

	exchange, err := v.ResolveMX(ctx, domain)
	if err != nil {
		result.Outcome = OutcomeMXMissing
		result.Reason = ReasonMXLookupFailed
		return result
	}
	result.Exchange = exchange

	if err := v.probe(ctx, exchange, email); err != nil {
		result.Reason = err.Error()
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			result.Outcome = OutcomeRejected
		} else {
			result.Outcome = OutcomeTransportError
		}
		return result
	}

	result.Deliverable = true
	result.Outcome = OutcomeDeliverable
	return result
}

func (v *MailboxVerifier) probe(ctx context.Context, exchange, email string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	addr := net.JoinHostPort(exchange, strconv.Itoa(v.port))
	conn, err := v.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The client re-arms the connection deadline per command; the probe as a
	// whole is bounded by ctx, which closes the connection when it expires.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client := smtp.NewClient(sessionConn{conn})
	client.CommandTimeout = v.timeout
	defer client.Close()

	if err := client.Hello(v.heloName); err != nil {
		// The client gives up without QUIT after a rejected greeting or
		// EHLO; the server is still listening, so end the session here.
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			sendQuit(ctx, conn)
		}
		return err
	}
	// From here on a session is open and QUIT is always attempted.
	defer client.Quit()

	if err := client.Mail(v.sender, nil); err != nil {
		return err
	}
	return client.Rcpt(email, nil)
}

// sessionConn leaves closing the socket to the verifier. The smtp client closes
// its connection as soon as the greeting is refused.
type sessionConn struct {
	net.Conn
}

func (sessionConn) Close() error { return nil }

func sendQuit(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := io.WriteString(conn, "QUIT\r\n"); err != nil {
		return
	}
	_, _ = bufio.NewReader(conn).ReadString('\n')
}
