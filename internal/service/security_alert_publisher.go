package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SecurityAlert is the payload handed to downstream security monitoring.
type SecurityAlert struct {
	UserID        uint      `json:"user_id"`
	UserRole      string    `json:"user_role"`
	Denials       int64     `json:"denials"`
	Threshold     int       `json:"threshold"`
	WindowMinutes int       `json:"window_minutes"`
	FlaggedAt     time.Time `json:"flagged_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// SecurityAlertPublisher fans suspicious activity alerts out to monitoring transports.
type SecurityAlertPublisher interface {
	Publish(ctx context.Context, alert SecurityAlert, window time.Duration) (bool, error)
}

type securityAlertPublisher struct {
	redis          *redis.Client
	redisChannel   string
	cooldownPrefix string
	nats           *nats.Conn
	natsSubject    string
	logger         zerolog.Logger
}

// NewSecurityAlertPublisher builds a publisher over the optional redis and nats transports.
func NewSecurityAlertPublisher(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) SecurityAlertPublisher {
	channel := ""
	cooldown := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":security:alerts"
		cooldown = channelBase + ":security:cooldown"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".security.alerts"
	}

	return &securityAlertPublisher{
		redis:          redisClient,
		redisChannel:   channel,
		cooldownPrefix: cooldown,
		nats:           natsConn,
		natsSubject:    subject,
		logger:         logger.With().Str("component", "security_alert_publisher").Logger(),
	}
}

// Publish emits the alert unless one was already emitted for the actor within window.
// The boolean reports whether the alert was sent.
func (p *securityAlertPublisher) Publish(ctx context.Context, alert SecurityAlert, window time.Duration) (bool, error) {
	if p.redis != nil && p.cooldownPrefix != "" && window > 0 {
		key := fmt.Sprintf("%s:%d", p.cooldownPrefix, alert.UserID)
		fresh, err := p.redis.SetNX(ctx, key, alert.FlaggedAt.Unix(), window).Result()
		if err != nil {
			p.logger.Warn().Err(err).Uint("user_id", alert.UserID).Msg("failed to check security alert cooldown")
		} else if !fresh {
			p.logger.Debug().Uint("user_id", alert.UserID).Msg("security alert suppressed by cooldown")
			return false, nil
		}
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return false, err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return false, fmt.Errorf("publish security alert to redis: %w", err)
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return false, fmt.Errorf("publish security alert to nats: %w", err)
		}
	}

	return true, nil
}
