// Package media implements the coordinator's MediaTransport port on top of
// ZEGOCLOUD: access tokens are token04 room tokens, and channel open/close
// is tracked in Redis so other processes can see which broadcasts are on air.
// The actual audio/video transport lives entirely in the ZEGO SDK.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/config"
	"github.com/bazaar-live/backend/internal/models"
)

const (
	channelKeyPrefix = "media:channel:"
	// channelTTL bounds how long a channel marker survives a crashed
	// process that never closed it.
	channelTTL = 24 * time.Hour
)

// rtcRoomPayload is the payload for room-based token04 tokens.
type rtcRoomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// ZegoTransport implements livesession.MediaTransport.
type ZegoTransport struct {
	cfg    config.ZegoConfig
	rdb    *redis.Client
	logger *zap.Logger
}

// NewZegoTransport creates a ZEGO-backed media transport. rdb may be nil,
// in which case channel bookkeeping is skipped (tests, single process).
func NewZegoTransport(cfg config.ZegoConfig, rdb *redis.Client, logger *zap.Logger) *ZegoTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZegoTransport{cfg: cfg, rdb: rdb, logger: logger}
}

// OpenChannel marks the session's media channel as on air. ZEGO rooms are
// created lazily on first join, so this is bookkeeping plus a config check:
// failing here keeps a session from going live when tokens cannot be minted.
func (t *ZegoTransport) OpenChannel(ctx context.Context, sessionID uuid.UUID) error {
	if err := t.checkConfig(); err != nil {
		return err
	}
	if t.rdb == nil {
		return nil
	}
	if err := t.rdb.Set(ctx, channelKeyPrefix+sessionID.String(), time.Now().Unix(), channelTTL).Err(); err != nil {
		return fmt.Errorf("mark channel open: %w", err)
	}
	t.logger.Info("media channel opened", zap.String("session_id", sessionID.String()))
	return nil
}

// CloseChannel clears the on-air marker.
func (t *ZegoTransport) CloseChannel(ctx context.Context, sessionID uuid.UUID) error {
	if t.rdb == nil {
		return nil
	}
	if err := t.rdb.Del(ctx, channelKeyPrefix+sessionID.String()).Err(); err != nil {
		return fmt.Errorf("mark channel closed: %w", err)
	}
	t.logger.Info("media channel closed", zap.String("session_id", sessionID.String()))
	return nil
}

// ChannelOpen reports whether the session's channel is marked on air.
func (t *ZegoTransport) ChannelOpen(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	if t.rdb == nil {
		return false, nil
	}
	n, err := t.rdb.Exists(ctx, channelKeyPrefix+sessionID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AccessToken mints a token04 room token scoped to (session, user, role).
// Hosts get publish privilege; the audience can only log in and pull.
func (t *ZegoTransport) AccessToken(_ context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole) (string, error) {
	if err := t.checkConfig(); err != nil {
		return "", err
	}
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
	}
	if role == models.ParticipantHost {
		privilege[token04.PrivilegeKeyPublish] = token04.PrivilegeEnable
	}
	payload := rtcRoomPayload{
		RoomID:    sessionID.String(),
		Privilege: privilege,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	validSec := t.cfg.TokenValidSec
	if validSec <= 0 {
		validSec = 3600
	}
	return token04.GenerateToken04(t.cfg.AppID, userID.String(), t.cfg.ServerSecret, validSec, string(payloadJSON))
}

func (t *ZegoTransport) checkConfig() error {
	if t.cfg.AppID == 0 || t.cfg.ServerSecret == "" {
		return fmt.Errorf("zego not configured (ZEGO_APP_ID, ZEGO_SERVER_SECRET)")
	}
	if len(t.cfg.ServerSecret) != 32 {
		return fmt.Errorf("zego server_secret must be 32 characters")
	}
	return nil
}
