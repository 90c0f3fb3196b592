package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/internal/export"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/devhappys/kutt-sub000/pkg/response"
	"github.com/devhappys/kutt-sub000/pkg/validator"
	"github.com/gin-gonic/gin"
)

type AnalyticsService interface {
	Get(ctx context.Context, linkID int64) (*domain.LinkStats, error)
	Visits(ctx context.Context, linkID int64, filter domain.VisitFilter, page domain.Pagination) (*domain.VisitPage, error)
	Export(ctx context.Context, w io.Writer, linkID int64, filter domain.VisitFilter, format string) error
	Heatmap(ctx context.Context, linkID int64, days int) (*domain.Heatmap, error)
	UTM(ctx context.Context, linkID int64) (*domain.UTMBreakdown, error)
	Devices(ctx context.Context, linkID int64) (*domain.DeviceBreakdown, error)
	ActiveVisitors(ctx context.Context, linkID int64, minutes int) (*domain.ActiveVisitors, error)
	Funnel(ctx context.Context, linkIDs []int64) (*domain.Funnel, error)
	Compare(ctx context.Context, linkIDs []int64) (*domain.Comparison, error)
}

const (
	defaultPageLimit = 10
	maxFunnelLinks   = 20
)

type AnalyticsHandler struct {
	service AnalyticsService
}

func NewAnalyticsHandler(service AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

func (h *AnalyticsHandler) GetStats(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}

	stats, err := h.service.Get(c.Request.Context(), linkID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Stats retrieved successfully", stats)
}

func (h *AnalyticsHandler) GetVisits(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	page := domain.Pagination{Limit: defaultPageLimit}
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, "Invalid pagination")
		return
	}
	if page.Limit == 0 {
		page.Limit = defaultPageLimit
	}
	if errs := validator.Validate(page); len(errs) > 0 {
		response.ValidationErrors(c, errs)
		return
	}

	visits, err := h.service.Visits(c.Request.Context(), linkID, filter, page)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Visits retrieved successfully", visits)
}

type exportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv json"`
}

// ExportVisits streams matching visits as CSV or JSON. Nothing is written to
// the body before the link is known to exist.
func (h *AnalyticsHandler) ExportVisits(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	var q exportQuery
	_ = c.ShouldBindQuery(&q)
	if errs := validator.Validate(q); len(errs) > 0 {
		response.ValidationErrors(c, errs)
		return
	}
	format := q.Format
	if format == "" {
		format = export.FormatCSV
	}

	w := &lazyExportWriter{c: c, linkID: linkID, format: format}
	if err := h.service.Export(c.Request.Context(), w, linkID, filter, format); err != nil {
		if w.started {
			logger.FromContext(c.Request.Context()).Error("Export aborted mid-stream",
				"link_id", linkID,
				"error", err,
			)
			return
		}
		h.fail(c, err)
		return
	}
	if !w.started {
		w.writeHeaders()
	}
}

// lazyExportWriter sends the download headers on the first write.
type lazyExportWriter struct {
	c       *gin.Context
	linkID  int64
	format  string
	started bool
}

func (w *lazyExportWriter) writeHeaders() {
	contentType := "text/csv; charset=utf-8"
	if w.format == export.FormatJSON {
		contentType = "application/json"
	}
	w.c.Header("Content-Type", contentType)
	w.c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="visits-%d.%s"`, w.linkID, w.format))
	w.c.Status(http.StatusOK)
	w.started = true
}

func (w *lazyExportWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.writeHeaders()
	}
	return w.c.Writer.Write(p)
}

func (h *AnalyticsHandler) GetHeatmap(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}

	heatmap, err := h.service.Heatmap(c.Request.Context(), linkID, intQuery(c, "days"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Heatmap retrieved successfully", heatmap)
}

func (h *AnalyticsHandler) GetUTM(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}

	utm, err := h.service.UTM(c.Request.Context(), linkID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "UTM breakdown retrieved successfully", utm)
}

func (h *AnalyticsHandler) GetDevices(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}

	devices, err := h.service.Devices(c.Request.Context(), linkID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Device breakdown retrieved successfully", devices)
}

func (h *AnalyticsHandler) GetActiveVisitors(c *gin.Context) {
	linkID, ok := linkIDParam(c)
	if !ok {
		return
	}

	active, err := h.service.ActiveVisitors(c.Request.Context(), linkID, intQuery(c, "minutes"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Active visitors retrieved successfully", active)
}

func (h *AnalyticsHandler) GetFunnel(c *gin.Context) {
	ids, ok := linkIDsQuery(c, 1)
	if !ok {
		return
	}

	funnel, err := h.service.Funnel(c.Request.Context(), ids)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Funnel retrieved successfully", funnel)
}

func (h *AnalyticsHandler) GetComparison(c *gin.Context) {
	ids, ok := linkIDsQuery(c, 2)
	if !ok {
		return
	}

	comparison, err := h.service.Compare(c.Request.Context(), ids)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, "Comparison retrieved successfully", comparison)
}

func (h *AnalyticsHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrLinkNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	logger.FromContext(c.Request.Context()).Error("Analytics request failed", "path", c.FullPath(), "error", err)
	response.InternalServerError(c, "Failed to load analytics")
}

func linkIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Link id must be a positive integer")
		return 0, false
	}
	return id, true
}

func bindFilter(c *gin.Context) (domain.VisitFilter, bool) {
	var filter domain.VisitFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid visit filter")
		return filter, false
	}
	if errs := validator.Validate(filter); len(errs) > 0 {
		response.ValidationErrors(c, errs)
		return filter, false
	}
	return filter, true
}

// intQuery returns 0 for a missing or malformed value so the service default
// applies.
func intQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// linkIDsQuery parses the comma separated "links" parameter, keeping order
// and dropping duplicates.
func linkIDsQuery(c *gin.Context, min int) ([]int64, bool) {
	raw := c.Query("links")
	seen := make(map[int64]bool)
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(c, fmt.Sprintf("Invalid link id %q", part))
			return nil, false
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) < min {
		response.BadRequest(c, fmt.Sprintf("At least %d link ids are required", min))
		return nil, false
	}
	if len(ids) > maxFunnelLinks {
		response.BadRequest(c, fmt.Sprintf("At most %d link ids are allowed", maxFunnelLinks))
		return nil, false
	}
	return ids, true
}
