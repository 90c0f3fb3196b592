package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/devhappys/kutt-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

type Resolver interface {
	Resolve(ctx context.Context, address, domainName string, req domain.RequestContext) (*domain.Outcome, error)
	ResolveWithPassword(ctx context.Context, address, domainName string, req domain.RequestContext, password string) (*domain.Outcome, error)
}

type RedirectHandler struct {
	resolver      Resolver
	defaultDomain string
}

// NewRedirectHandler serves short links. Requests whose Host matches
// defaultDomain resolve links that have no custom domain.
func NewRedirectHandler(resolver Resolver, defaultDomain string) *RedirectHandler {
	return &RedirectHandler{
		resolver:      resolver,
		defaultDomain: strings.ToLower(defaultDomain),
	}
}

type PasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

type LinkInfo struct {
	Address     string     `json:"address"`
	Target      string     `json:"target"`
	Description string     `json:"description,omitempty"`
	ExpireIn    *time.Time `json:"expire_in,omitempty"`
	VisitCount  int64      `json:"visit_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (h *RedirectHandler) Redirect(c *gin.Context) {
	address := c.Param("address")
	req := h.requestContext(c)

	if strings.HasSuffix(address, "+") {
		address = strings.TrimSuffix(address, "+")
		req.Info = true
	}
	if _, ok := c.GetQuery("info"); ok {
		req.Info = true
	}
	if address == "" {
		response.NotFound(c, domain.ErrLinkNotFound.Error())
		return
	}

	outcome, err := h.resolver.Resolve(c.Request.Context(), address, h.domainName(c), req)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Resolve failed", "address", address, "error", err)
		response.InternalServerError(c, "Failed to resolve link")
		return
	}

	h.render(c, outcome)
}

// VerifyPassword unlocks a protected link. On success the final target is
// returned as JSON rather than as a redirect.
func (h *RedirectHandler) VerifyPassword(c *gin.Context) {
	var body PasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Password is required")
		return
	}

	address := c.Param("address")
	outcome, err := h.resolver.ResolveWithPassword(c.Request.Context(), address, h.domainName(c), h.requestContext(c), body.Password)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Password resolve failed", "address", address, "error", err)
		response.InternalServerError(c, "Failed to resolve link")
		return
	}

	if outcome.Kind == domain.OutcomeRedirect {
		response.OK(c, "Password verified", gin.H{"target": outcome.URL})
		return
	}
	h.render(c, outcome)
}

func (h *RedirectHandler) render(c *gin.Context, outcome *domain.Outcome) {
	switch outcome.Kind {
	case domain.OutcomeRedirect:
		c.Redirect(outcome.StatusCode, outcome.URL)
	case domain.OutcomeInfo:
		link := outcome.Link
		response.OK(c, "Link info", LinkInfo{
			Address:     link.Address,
			Target:      link.Target,
			Description: link.Description,
			ExpireIn:    link.ExpireIn,
			VisitCount:  link.VisitCount,
			CreatedAt:   link.CreatedAt,
		})
	case domain.OutcomeNotFound:
		if outcome.URL != "" {
			c.Redirect(http.StatusFound, outcome.URL)
			return
		}
		response.NotFound(c, domain.ErrLinkNotFound.Error())
	case domain.OutcomePasswordRequired:
		response.ErrorWithData(c, http.StatusUnauthorized, outcome.Reason, gin.H{"password_required": true})
	case domain.OutcomeGone:
		response.Gone(c, outcome.Reason)
	default:
		response.RetryAfter(c, outcome.RetryAfter)
		response.Error(c, outcome.StatusCode, outcome.Reason)
	}
}

func (h *RedirectHandler) requestContext(c *gin.Context) domain.RequestContext {
	return domain.RequestContext{
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		Referrer:       c.Request.Referer(),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		CountryHint:    strings.ToUpper(c.GetHeader("CF-IPCountry")),
	}
}

func (h *RedirectHandler) domainName(c *gin.Context) string {
	host := strings.ToLower(c.Request.Host)
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}
	if host == "" || host == h.defaultDomain {
		return ""
	}
	return host
}
