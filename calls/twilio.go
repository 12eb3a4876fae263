package calls

import (
	"context"
	"net/http"
	"net/url"

	twilio "github.com/kevinburke/twilio-go"
	"github.com/pkg/errors"

	"github.com/chfgma/clicktocall/config"
)

// Placer places a single outbound call and returns the provider's call
// SID.
type Placer interface {
	Place(ctx context.Context, from, to string, callback *url.URL) (string, error)
}

// PlacerFactory constructs a Placer from the process configuration.
type PlacerFactory func(cfg config.Config) (Placer, error)

type TwilioPlacer struct {
	client *twilio.Client
}

// NewTwilioPlacer fails with a *config.MissingError when a credential is
// absent. A nil httpClient uses the library's default client.
func NewTwilioPlacer(cfg config.Config, httpClient *http.Client) (*TwilioPlacer, error) {
	if err := cfg.MissingCredential(); err != nil {
		return nil, err
	}

	return &TwilioPlacer{
		client: twilio.NewClient(cfg.AccountSID, cfg.AuthToken, httpClient),
	}, nil
}

func (p *TwilioPlacer) Place(ctx context.Context, from, to string, callback *url.URL) (string, error) {
	call, err := p.client.Calls.Create(ctx, url.Values{
		"From": {from},
		"To":   {to},
		"Url":  {callback.String()},
	})
	if err != nil {
		return "", errors.Wrap(err, "creating call")
	}
	return call.Sid, nil
}

// TwilioFactory returns a PlacerFactory for the Twilio REST API. base
// overrides the API root and is only set in tests.
func TwilioFactory(httpClient *http.Client, base string) PlacerFactory {
	return func(cfg config.Config) (Placer, error) {
		p, err := NewTwilioPlacer(cfg, httpClient)
		if err != nil {
			return nil, err
		}
		if base != "" {
			p.client.Base = base
		}
		return p, nil
	}
}
