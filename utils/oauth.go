package utils

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var ErrAuthExchange = errors.New("authorization code exchange failed")

// SessionProvider turns an authorization code into a mail-send session.
type SessionProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Mailer, error)
}

type GoogleSession struct {
	conf *oauth2.Config
	// extra client options, used to point the Gmail client elsewhere in tests
	serviceOptions []option.ClientOption
}

func NewGoogleSession(clientID, clientSecret, redirectURI string, opts ...option.ClientOption) *GoogleSession {
	return &GoogleSession{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{gmail.GmailSendScope},
			Endpoint:     google.Endpoint,
		},
		serviceOptions: opts,
	}
}

// WithEndpoint overrides the token endpoint. Used against fake servers.
func (g *GoogleSession) WithEndpoint(endpoint oauth2.Endpoint) *GoogleSession {
	g.conf.Endpoint = endpoint
	return g
}

func (g *GoogleSession) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange swaps code for a token and builds a Gmail sender bound to it.
// The resulting Mailer belongs to one campaign and is never shared.
func (g *GoogleSession) Exchange(ctx context.Context, code string) (Mailer, error) {
	token, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExchange, err)
	}

	// The token source outlives the request context; refreshes run on
	// a background context.
	client := g.conf.Client(context.WithoutCancel(ctx), token)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.serviceOptions...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create gmail service: %v", ErrAuthExchange, err)
	}
	return NewGmailMailer(service), nil
}
