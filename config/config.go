package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	AccountSIDKey = "TWILIO_ACCOUNT_SID"
	AuthTokenKey  = "TWILIO_AUTH_TOKEN"
	CallerIDKey   = "TWILIO_CALLER_ID"
	PublicURLKey  = "PUBLIC_URL"
)

const announcement = "Hello Krishna Raman, This is a call from Infosys BGC team to inform you that you have defaulted to submit your work experience records. " +
	"Please do the needful at the earliest failing which necessary action would be taken. "

var voices = []string{"man", "woman", "alice"}

// Config is built once at startup and handed to the handlers by value.
type Config struct {
	AccountSID string `mapstructure:"twilio_account_sid"`
	AuthToken  string `mapstructure:"twilio_auth_token"`
	CallerID   string `mapstructure:"twilio_caller_id"`

	// PublicURL overrides the externally resolvable base of the
	// callback URL handed to Twilio, e.g. https://example.ngrok.io.
	PublicURL string `mapstructure:"public_url"`

	// TrustProxy honours X-Forwarded-Proto and X-Forwarded-Host when the
	// callback URL is derived from the request. Only enable it behind a
	// proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`

	// ValidateSignature rejects /outbound requests whose
	// X-Twilio-Signature does not match.
	ValidateSignature bool `mapstructure:"validate_signature"`

	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port" default:"8080"`
	Voice        string `mapstructure:"voice" default:"alice"`
	Announcement string `mapstructure:"announcement"`
}

// MissingError reports a required Twilio setting that was not provided.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("Missing configuration variable: %s", e.Key)
}

var keys = []string{
	AccountSIDKey,
	AuthTokenKey,
	CallerIDKey,
	PublicURLKey,
	"TRUST_PROXY",
	"VALIDATE_SIGNATURE",
	"HOST",
	"PORT",
	"VOICE",
	"ANNOUNCEMENT",
}

// Load reads the configuration from an optional .env file, an optional
// config file at path and the environment, in increasing precedence.
// Missing Twilio credentials are not an error here; see MissingCredential.
func Load(v *viper.Viper, path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "loading .env")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(strings.ToLower(key), key); err != nil {
			return Config{}, errors.Wrapf(err, "binding %s", key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "applying defaults")
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if cfg.Announcement == "" {
		cfg.Announcement = announcement
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil {
			return errors.Wrap(err, "parsing PUBLIC_URL")
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.Errorf("PUBLIC_URL %q must be absolute", c.PublicURL)
		}
	}

	for _, voice := range voices {
		if c.Voice == voice {
			return nil
		}
	}
	return errors.Errorf("unsupported voice %q, expected one of %s", c.Voice, strings.Join(voices, ", "))
}

// MissingCredential returns the first absent Twilio setting, if any.
func (c Config) MissingCredential() error {
	switch {
	case c.AccountSID == "":
		return &MissingError{Key: AccountSIDKey}
	case c.AuthToken == "":
		return &MissingError{Key: AuthTokenKey}
	case c.CallerID == "":
		return &MissingError{Key: CallerIDKey}
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
