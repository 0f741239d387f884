package handler

import (
	"io"
	"net/http"
	"time"

	"auction-house/internal/notify"
	"auction-house/services/bidding/helpers"

	"github.com/gin-gonic/gin"
)

// DefaultKeepAlive is how often an idle stream sends a ping comment
const DefaultKeepAlive = 25 * time.Second

// EventsHandler streams live auction and user events as server-sent events
type EventsHandler struct {
	source    EventSource
	auctions  AuctionServiceInterface
	keepAlive time.Duration
}

func NewEventsHandler(source EventSource, auctions AuctionServiceInterface, keepAlive time.Duration) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &EventsHandler{source: source, auctions: auctions, keepAlive: keepAlive}
}

// AuctionEventsHandler handles GET /auctions/:id/events
func (h *EventsHandler) AuctionEventsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.auctions.Get(c.Request.Context(), id); err != nil {
		helpers.RespondError(c, "AuctionEventsHandler", err, map[string]any{"auction_id": id})
		return
	}
	h.stream(c, "AuctionEventsHandler", notify.AuctionChannel(id))
}

// UserEventsHandler handles GET /users/me/events
func (h *EventsHandler) UserEventsHandler(c *gin.Context) {
	userID, _ := helpers.CurrentUser(c)
	h.stream(c, "UserEventsHandler", notify.UserChannel(userID))
}

func (h *EventsHandler) stream(c *gin.Context, handlerName, channel string) {
	sub := h.source.Subscribe(channel)
	defer h.source.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	helpers.LogSuccess(handlerName, "stream opened", map[string]any{"channel": channel})

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ping.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		}
	})

	helpers.LogSuccess(handlerName, "stream closed", map[string]any{"channel": channel})
}
