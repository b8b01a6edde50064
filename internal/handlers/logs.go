package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/audit"
	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/middleware"
)

// NoLogsDetail is returned when a search matches nothing.
const NoLogsDetail = "No logs found matching the specified criteria."

// Searcher runs audit log queries.
type Searcher interface {
	Search(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

// LogsHandler serves the audit log search.
type LogsHandler struct {
	searcher Searcher
}

func NewLogsHandler(searcher Searcher) *LogsHandler {
	return &LogsHandler{searcher: searcher}
}

// Search handles GET /searchlog?user=&startTime=&endTime=&operation=.
// Query parameter names are matched case-insensitively.
func (h *LogsHandler) Search(c *fiber.Ctx) error {
	params := queryParams(c)

	filter, err := audit.ParseFilter(params["user"], params["starttime"], params["endtime"], params["operation"])
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	events, err := h.searcher.Search(c.UserContext(), filter)
	switch {
	case err == nil:
		return c.JSON(events)
	case errors.Is(err, audit.ErrNoMatch):
		return middleware.NotFound(c, NoLogsDetail)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		middleware.GetLogger(c).Warn("Log search aborted", logger.Error(err))
		return middleware.InternalServerError(c)
	default:
		middleware.GetLogger(c).Error("Log search failed", logger.Error(err))
		return middleware.InternalServerError(c)
	}
}

func queryParams(c *fiber.Ctx) map[string]string {
	params := make(map[string]string)
	for key, value := range c.Queries() {
		params[strings.ToLower(key)] = value
	}
	return params
}
