package calls

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/BTBurke/twiml"
	twilio "github.com/kevinburke/twilio-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chfgma/clicktocall/config"
)

const signatureHeader = "X-Twilio-Signature"

// OutboundHandler serves the TwiML Twilio fetches once a placed call is
// answered.
type OutboundHandler struct {
	cfg    config.Config
	logger *zap.Logger
}

func NewOutboundHandler(cfg config.Config, logger *zap.Logger) *OutboundHandler {
	return &OutboundHandler{
		cfg:    cfg,
		logger: logger,
	}
}

func (h *OutboundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.ValidateSignature {
		if err := h.verify(r); err != nil {
			h.logger.Warn("rejecting unsigned webhook", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)

			return
		}
	}

	// The status fields are informational only.
	var vr twiml.VoiceRequest
	if err := twiml.Bind(&vr, r); err != nil {
		h.logger.Warn("error decoding call status", zap.Error(err))
	} else {
		h.logger.Info("outbound call answered",
			zap.String("sid", vr.CallSid),
			zap.String("to", vr.To),
			zap.String("status", vr.CallStatus))
	}

	response := twiml.NewResponse()
	response.Add(&twiml.Say{
		Text:  h.cfg.Announcement,
		Voice: h.cfg.Voice,
	})

	b, err := response.Encode()
	if err != nil {
		h.logger.Error("error encoding body", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)

		return
	}

	w.Header().Set("Content-Type", "application/xml")

	if _, err := w.Write(b); err != nil {
		h.logger.Error("error writing response", zap.Error(err))
	}
}

// verify checks X-Twilio-Signature against the URL Twilio requested, which
// is the callback URL handed out by CallHandler.
func (h *OutboundHandler) verify(r *http.Request) error {
	got := r.Header.Get(signatureHeader)
	if got == "" {
		return errors.Errorf("missing %s header", signatureHeader)
	}
	if h.cfg.AuthToken == "" {
		return &config.MissingError{Key: config.AuthTokenKey}
	}
	if err := r.ParseForm(); err != nil {
		return errors.Wrap(err, "parsing form")
	}

	base, err := ExternalBase(r, h.cfg)
	if err != nil {
		return err
	}

	want := twilio.GetExpectedTwilioSignature(strings.TrimRight(base.String(), "/"), h.cfg.AuthToken, r.URL.RequestURI(), r.PostForm)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errors.New("signature mismatch")
	}
	return nil
}
