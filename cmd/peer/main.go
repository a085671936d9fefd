// Command peer is a headless meeting participant: it obtains a room token,
// joins the room over the websocket signaling channel, and runs the mesh
// engine until interrupted. Useful as a soak-test seat or a bot host.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lingomeet/mesh/internal/config"
	"github.com/lingomeet/mesh/internal/domain"
	"github.com/lingomeet/mesh/internal/mesh"
	"github.com/lingomeet/mesh/internal/rtc"
	"github.com/lingomeet/mesh/internal/signaling"
)

type tokenResponse struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func httpBase(signalURL string) string {
	base := strings.Replace(signalURL, "ws://", "http://", 1)
	return strings.Replace(base, "wss://", "https://", 1)
}

func fetchToken(ctx context.Context, cfg *config.Config) (*tokenResponse, error) {
	var (
		url  string
		body map[string]string
	)
	if cfg.Host {
		url = httpBase(cfg.SignalURL) + "/api/rooms"
		body = map[string]string{"name": cfg.Room, "displayName": cfg.DisplayName}
	} else {
		url = fmt.Sprintf("%s/api/rooms/%s/token", httpBase(cfg.SignalURL), cfg.Room)
		body = map[string]string{"displayName": cfg.DisplayName}
	}
	raw, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request: status %d", resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("token decode: %w", err)
	}
	return &tr, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}

	tr, err := fetchToken(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to obtain room token")
		return
	}
	log.Info().Str("room", tr.RoomID).Str("user", tr.UserID).Msg("joining room")

	ch, err := signaling.Dial(ctx, cfg.SignalURL, tr.RoomID, tr.Token)
	if err != nil {
		log.Error().Err(err).Msg("signaling dial failed")
		return
	}

	role := domain.RoleGuest
	if cfg.Host {
		role = domain.RoleHost
	}
	self, err := domain.NewParticipant(domain.UserID(tr.UserID), cfg.DisplayName, role, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("bad identity")
		return
	}

	var engine *mesh.Engine
	engine = mesh.New(mesh.Options{
		Self:             *self,
		Channel:          ch,
		Factory:          rtc.NewFactory(rtc.DefaultConfig(cfg.STUNServers)),
		Source:           rtc.NewStaticSource(),
		RequireAdmission: !cfg.Host,
		Handlers: mesh.Handlers{
			Chat: func(msg domain.ChatMessage) {
				log.Info().Str("from", msg.SenderName).Str("text", msg.Text).Msg("chat")
			},
			Notification: func(s string) {
				log.Info().Str("note", s).Msg("room")
			},
			JoinRequestsChanged: func(reqs []domain.JoinRequest) {
				// Bot host admits everyone.
				for _, r := range reqs {
					log.Info().Str("requester", r.RequesterName).Msg("admitting")
					engine.ResolveJoinRequest(r.RequesterID, true)
				}
			},
			Admission: func(accepted bool) {
				if accepted {
					log.Info().Msg("admitted to room")
				} else {
					log.Warn().Msg("join denied")
					cancel()
				}
			},
			Kicked: func() {
				log.Warn().Msg("kicked by host")
				cancel()
			},
		},
	})

	go func() {
		<-ctx.Done()
		engine.Leave()
	}()

	if err := engine.Run(ctx); err != nil {
		log.Error().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("peer exited")
}
