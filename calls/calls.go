package calls

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chfgma/clicktocall/config"
)

const incoming = "Call incoming!"

type ErrorKind int

const (
	NoError ErrorKind = iota
	ConfigurationError
	ProviderRequestError
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "none"
	case ConfigurationError:
		return "configuration"
	case ProviderRequestError:
		return "provider_request"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single call placement. Exactly one of Sid or
// Detail is meaningful, depending on Kind.
type Result struct {
	Kind   ErrorKind
	Sid    string
	Detail string
}

func Ok(sid string) Result {
	return Result{Kind: NoError, Sid: sid}
}

func Err(kind ErrorKind, detail string) Result {
	return Result{Kind: kind, Detail: detail}
}

func (r Result) OK() bool {
	return r.Kind == NoError
}

// Body is the JSON document returned to the page. It always carries
// exactly one of the "message" and "error" keys.
func (r Result) Body() map[string]string {
	if r.OK() {
		return map[string]string{"message": incoming}
	}
	return map[string]string{"error": r.Detail}
}

// CallbackFunc resolves the absolute URL the provider fetches once the
// call is answered.
type CallbackFunc func() (*url.URL, error)

// Initiate asks the provider to call to from the configured caller id.
// The callback is only resolved once the client exists. It never retries.
func Initiate(ctx context.Context, cfg config.Config, newPlacer PlacerFactory, to string, callback CallbackFunc, logger *zap.Logger) Result {
	placer, err := newPlacer(cfg)
	if err != nil {
		logger.Warn("cannot construct telephony client", zap.Error(err))

		var missing *config.MissingError
		if errors.As(err, &missing) {
			return Err(ConfigurationError, missing.Error())
		}
		return Err(ConfigurationError, "Missing configuration variable: "+err.Error())
	}

	u, err := callback()
	if err != nil {
		logger.Error("error resolving callback url", zap.Error(err))
		return Err(ConfigurationError, (&config.MissingError{Key: config.PublicURLKey}).Error())
	}

	sid, err := placer.Place(ctx, cfg.CallerID, to, u)
	if err != nil {
		logger.Error("error placing call", zap.Error(err), zap.String("to", to))
		return Err(ProviderRequestError, errors.Cause(err).Error())
	}

	logger.Info("placed call", zap.String("sid", sid), zap.String("to", to))
	return Ok(sid)
}

// CallHandler serves POST /call. It answers 200 on every path; callers
// tell success from failure by the body alone.
type CallHandler struct {
	cfg          config.Config
	newPlacer    PlacerFactory
	outboundPath string
	logger       *zap.Logger
}

func NewCallHandler(cfg config.Config, newPlacer PlacerFactory, outboundPath string, logger *zap.Logger) *CallHandler {
	return &CallHandler{
		cfg:          cfg,
		newPlacer:    newPlacer,
		outboundPath: outboundPath,
		logger:       logger,
	}
}

func (h *CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	to := r.PostFormValue("phoneNumber")

	result := Initiate(r.Context(), h.cfg, h.newPlacer, to, func() (*url.URL, error) {
		return CallbackURL(r, h.cfg, h.outboundPath)
	}, h.logger)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(result.Body()); err != nil {
		h.logger.Error("error writing response", zap.Error(err))
	}
}

// CallbackURL returns the absolute URL of path as the provider must see
// it.
func CallbackURL(r *http.Request, cfg config.Config, path string) (*url.URL, error) {
	base, err := ExternalBase(r, cfg)
	if err != nil {
		return nil, err
	}
	return base.JoinPath(path), nil
}

// ExternalBase returns the scheme, host and path prefix under which the
// provider reaches this service. cfg.PublicURL wins when set. Otherwise
// the request decides, and the X-Forwarded headers only count when
// cfg.TrustProxy is set.
func ExternalBase(r *http.Request, cfg config.Config) (*url.URL, error) {
	if cfg.PublicURL != "" {
		base, err := url.Parse(cfg.PublicURL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing public url")
		}
		base.Path = strings.TrimRight(base.Path, "/")
		return base, nil
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if cfg.TrustProxy {
		if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = proto
		}
		if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			host = fwd
		}
	}

	if host == "" {
		return nil, errors.New("cannot determine external host for callback url")
	}

	return &url.URL{Scheme: scheme, Host: host}, nil
}

func firstValue(header string) string {
	if i := strings.IndexByte(header, ','); i >= 0 {
		header = header[:i]
	}
	return strings.TrimSpace(header)
}
