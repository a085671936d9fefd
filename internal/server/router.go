package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required,max=64"`
	DisplayName string `json:"displayName" binding:"required,max=36"`
}

type tokenRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=36"`
}

type tokenResponse struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// SetupRouter wires the rooms API and the websocket signaling endpoint.
func SetupRouter(ctx context.Context, cfg *config.Config, hub *Hub, store *RoomStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Create a room; the caller becomes its host.
	api.POST("/rooms", func(c *gin.Context) {
		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		roomID := uuid.NewString()
		userID := uuid.NewString()
		if err := store.Create(c.Request.Context(), roomID, req.Name); err != nil {
			log.Error().Err(err).Str("module", "server.router").Msg("room create")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store_unavailable"})
			return
		}
		token, err := MintRoomToken(cfg.Secret, roomID, userID, req.DisplayName, true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token_mint"})
			return
		}
		c.JSON(http.StatusOK, tokenResponse{RoomID: roomID, UserID: userID, Token: token})
	})

	// Get a room directory entry.
	api.GET("/rooms/:roomId", func(c *gin.Context) {
		meta, err := store.Get(c.Request.Context(), c.Param("roomId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		c.JSON(http.StatusOK, meta)
	})

	// Issue a guest token for an existing room.
	api.POST("/rooms/:roomId/token", func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		roomID := c.Param("roomId")
		userID := uuid.NewString()
		token, err := MintRoomToken(cfg.Secret, roomID, userID, req.DisplayName, false)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token_mint"})
			return
		}
		c.JSON(http.StatusOK, tokenResponse{RoomID: roomID, UserID: userID, Token: token})
	})

	r.GET("/ws/rooms/:roomId", func(c *gin.Context) {
		claims, err := ParseRoomToken(cfg.Secret, c.Query("token"))
		if err != nil || claims.RoomID != c.Param("roomId") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("module", "server.router").Msg("ws upgrade")
			return
		}
		log.Info().Str("module", "server.router").Str("room", claims.RoomID).Str("member", claims.UserID).Msg("new ws connection")
		hub.Serve(ctx, ws, claims)
	})

	return r
}
