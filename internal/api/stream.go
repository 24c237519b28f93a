package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"pricewatch-api/internal/events"
)

// streamEvents relays hub events as server-sent events. ?topic= may be
// repeated or comma separated. A product key subscribes to its room and an
// owner ID to the changes that cleared that owner's thresholds.
func (h *Handler) streamEvents(c *gin.Context) {
	var topics []string
	for _, raw := range c.QueryArray("topic") {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}
	if pk := c.Query("productKey"); pk != "" {
		topics = append(topics, events.ProductTopic(pk))
	}
	if owner := c.Query("ownerId"); owner != "" {
		topics = append(topics, events.OwnerTopic(owner))
	}

	sub, unsubscribe := h.Hub.Subscribe(topics...)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("connected", gin.H{"subscription_id": sub.ID, "topics": topics})
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.KeepAlive)
	defer keepAlive.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
	h.logger.Debug().Str("subscription_id", sub.ID).Msg("Event stream closed")
}
