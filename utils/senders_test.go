package utils

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"outreach/models"
)

// fakeGoogle serves the OAuth token endpoint and the Gmail send endpoint.
type fakeGoogle struct {
	mu          sync.Mutex
	sendStatus  int
	tokenStatus int
	authHeaders []string
	raw         []string
}

func (f *fakeGoogle) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = r.ParseForm()
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-access-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var payload gmail.Message
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		f.raw = append(f.raw, payload.Raw)
		f.mu.Unlock()

		if f.sendStatus != 0 {
			w.WriteHeader(f.sendStatus)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid To header"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-1","threadId":"thread-1"}`))
	})
	return mux
}

func testOutbound(t *testing.T, to string) *OutboundMessage {
	t.Helper()
	composer, err := NewComposer(testComposerOptions())
	require.NoError(t, err)
	msg, err := composer.Compose(models.Recipient{Name: "Alice", Email: to})
	require.NoError(t, err)
	return msg
}

func TestGmailMailer_Send(t *testing.T) {
	fake := &fakeGoogle{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	mailer := NewGmailMailer(svc)
	assert.Equal(t, "gmail", mailer.Name())

	require.NoError(t, mailer.Send(context.Background(), testOutbound(t, "alice@example.com")))

	require.Len(t, fake.raw, 1)
	decoded, err := base64.URLEncoding.DecodeString(fake.raw[0])
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: alice@example.com")
	assert.Contains(t, string(decoded), "Content-Type: text/html; charset=UTF-8")
}

func TestGmailMailer_SendError(t *testing.T) {
	fake := &fakeGoogle{sendStatus: http.StatusBadRequest}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	err = NewGmailMailer(svc).Send(context.Background(), testOutbound(t, "alice@example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice@example.com")
}

func TestGoogleSession_AuthCodeURL(t *testing.T) {
	session := NewGoogleSession("client-id", "secret", "http://localhost:3000/oauth2callback")

	u, err := url.Parse(session.AuthCodeURL("state-token"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, gmail.GmailSendScope, q.Get("scope"))
	assert.Equal(t, "http://localhost:3000/oauth2callback", q.Get("redirect_uri"))
}

func TestGoogleSession_Exchange(t *testing.T) {
	fake := &fakeGoogle{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	session := NewGoogleSession("client-id", "secret", "http://localhost/cb", option.WithEndpoint(srv.URL+"/")).
		WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"})

	mailer, err := session.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "gmail", mailer.Name())

	require.NoError(t, mailer.Send(context.Background(), testOutbound(t, "bob@example.com")))
	require.Len(t, fake.authHeaders, 1)
	assert.Equal(t, "Bearer test-access-token", fake.authHeaders[0])
}

func TestGoogleSession_ExchangeFailure(t *testing.T) {
	fake := &fakeGoogle{tokenStatus: http.StatusBadRequest}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	session := NewGoogleSession("client-id", "secret", "http://localhost/cb").
		WithEndpoint(oauth2.Endpoint{TokenURL: srv.URL + "/token"})

	_, err := session.Exchange(context.Background(), "bad-code")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthExchange)
}

func TestSMTPMailer_Send(t *testing.T) {
	backend := &mailboxBackend{}
	port := startMailboxServer(t, backend)

	mailer := NewSMTPMailer("127.0.0.1", port, "", "")
	assert.Equal(t, "smtp", mailer.Name())

	require.NoError(t, mailer.Send(context.Background(), testOutbound(t, "carol@example.com")))

	received := backend.received()
	require.Len(t, received, 1)
	assert.Equal(t, "jane@sender.test", received[0].From)
	assert.Contains(t, received[0].To, "carol@example.com")
	assert.Contains(t, received[0].To, "team@sender.test", "cc recipients get a copy")
	assert.Contains(t, received[0].Data, "Subject: "+defaultSubjects[TemplateFollowUp])
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSMTPMailer("127.0.0.1", 1, "", "").Send(ctx, testOutbound(t, "carol@example.com"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDryRunMailer(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mailer := &DryRunMailer{Logger: logrus.NewEntry(logger)}

	require.NoError(t, mailer.Send(context.Background(), testOutbound(t, "dave@example.com")))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "dave@example.com", entry.Data["to"])
	assert.True(t, strings.Contains(entry.Message, "dry run"))
}
