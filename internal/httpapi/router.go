// Package httpapi wires the HTTP surface: the WebSocket signaling endpoint,
// read-only room introspection, health, and metrics.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomloop/roomloop/internal/metrics"
	"github.com/roomloop/roomloop/internal/origin"
	"github.com/roomloop/roomloop/internal/room"
	"github.com/roomloop/roomloop/internal/signaling"
)

// Router builds the gin engine. The introspection endpoints only read the
// registry's membership view; all room mutation happens through signaling.
func Router(registry *room.Registry, relay *signaling.Server, m *metrics.Metrics, allow origin.Allowlist) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsFilter(allow))

	router.GET("/", func(c *gin.Context) {
		rooms := registry.ListRooms()
		c.JSON(http.StatusOK, gin.H{
			"message":            "roomloop signaling server",
			"status":             "healthy",
			"active_rooms":       len(rooms),
			"total_connections":  registry.TotalParticipants(),
			"websocket_endpoint": "/ws/{room_id}?name={display_name}",
		})
	})

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"active_rooms":      len(registry.ListRooms()),
			"total_connections": registry.TotalParticipants(),
		})
	})

	router.GET("/api/rooms", func(c *gin.Context) {
		rooms := registry.ListRooms()
		out := make([]gin.H, 0, len(rooms))
		for _, info := range rooms {
			out = append(out, gin.H{
				"room_id":           info.RoomID,
				"participant_count": len(info.Participants),
				"participants":      info.Participants,
			})
		}
		c.JSON(http.StatusOK, gin.H{"rooms": out, "total_rooms": len(out)})
	})

	router.GET("/api/rooms/:roomID", func(c *gin.Context) {
		roomID := c.Param("roomID")
		info, exists := registry.RoomInfo(roomID)
		c.JSON(http.StatusOK, gin.H{
			"room_id":           roomID,
			"exists":            exists,
			"participant_count": len(info.Participants),
			"participants":      info.Participants,
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.PrometheusHandler(m)))

	router.GET("/ws/:roomID", func(c *gin.Context) {
		roomID := c.Param("roomID")
		name := c.Query("name")
		if name == "" {
			name = "Anonymous"
		}
		relay.HandleConnection(c.Writer, c.Request, roomID, name)
	})

	return router
}

// corsFilter reflects allowed origins for the read-only API, mirroring the
// permissive default of the WebSocket upgrade check.
func corsFilter(allow origin.Allowlist) gin.HandlerFunc {
	return func(c *gin.Context) {
		o := c.GetHeader("Origin")
		if o != "" && allow.Allowed(o) {
			c.Header("Access-Control-Allow-Origin", o)
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
