package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/OwenRay/rms-dns/internal/dns"
	"github.com/OwenRay/rms-dns/internal/registry"
)

// Handler handles subdomain registration requests.
type Handler struct {
	registry  *registry.Registry
	publisher *dns.Publisher
	logger    *logrus.Entry
}

// NewHandler creates a new registration handler.
func NewHandler(reg *registry.Registry, publisher *dns.Publisher, logger *logrus.Entry) *Handler {
	return &Handler{
		registry:  reg,
		publisher: publisher,
		logger:    logger.WithField("component", "registration-handler"),
	}
}

// RegisterRoutes mounts the registration endpoint.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Register)
	r.GET("/register", h.Register)
}

// Register claims or checks a subdomain name.
// GET /?name=...&password=...&ip=...&token=...
//
// Response matrix:
//   - restricted name            -> 403 "name not available"
//   - claim with wrong password  -> 403 "err"
//   - successful claim/re-claim  -> 200 "ok" (records published best-effort)
//   - availability check, taken  -> 200 "name not available"
//   - anything else              -> 200 "ok"
func (h *Handler) Register(c *gin.Context) {
	name := c.Query("name")
	password := c.Query("password")

	// The restricted check runs before format and credential checks, and
	// answers 403 where a plain availability check answers 200.
	if registry.Restricted(name) {
		c.String(http.StatusForbidden, "name not available")
		return
	}

	if name != "" && password != "" && registry.ValidName(name) {
		_, err := h.registry.TryClaim(name, password)
		switch {
		case errors.Is(err, registry.ErrBadCredential):
			c.String(http.StatusForbidden, "err")
			return
		case err != nil:
			h.logger.WithError(err).Error("claim failed")
			c.String(http.StatusInternalServerError, "err")
			return
		}

		if err := h.publisher.Publish(c.Request.Context(), name, c.Query("ip"), c.Query("token")); err != nil {
			// Strict-mode publish failures do not undo the claim.
			h.logger.WithError(err).Warn("record publication failed")
		}

		c.String(http.StatusOK, "ok")
		return
	}

	if name != "" && !h.registry.IsAvailable(name) {
		c.String(http.StatusOK, "name not available")
		return
	}

	c.String(http.StatusOK, "ok")
}
