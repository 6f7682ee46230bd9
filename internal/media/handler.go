package media

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bazaar-live/backend/pkg/response"
)

// OnAir handles GET /sessions/:id/on-air. It reads the channel marker the
// transport keeps in Redis, so any instance can answer for any session.
func OnAir(t *ZegoTransport) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid session id")
			return
		}
		open, err := t.ChannelOpen(c.Request.Context(), id)
		if err != nil {
			response.ServiceUnavailable(c, "channel status unavailable")
			return
		}
		response.OK(c, gin.H{"session_id": id, "on_air": open})
	}
}
