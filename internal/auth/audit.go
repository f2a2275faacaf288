package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventSignup        = "signup"
	EventSigninSuccess = "signin_success"
	EventSigninFailure = "signin_failure"
	EventSignout       = "signout"
)

type AuditEvent struct {
	EventType string    `json:"eventType"`
	UserID    int64     `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditLogger records authentication events. Every event is logged; when a
// Redis client is set it is also kept in a capped list per user.
type AuditLogger struct {
	Logger *zap.Logger
	Redis  *redis.Client
	MaxLen int64
	Clock  clockwork.Clock
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEvent) error {
	if a == nil {
		return nil
	}
	now := time.Now
	if a.Clock != nil {
		now = a.Clock.Now
	}
	e.Timestamp = now().UTC()

	if a.Logger != nil {
		a.Logger.Info("auth event",
			zap.String("event", e.EventType),
			zap.Int64("user_id", e.UserID),
			zap.String("email", e.Email),
			zap.String("ip", e.IP),
			zap.String("user_agent", e.UserAgent),
		)
	}
	if a.Redis == nil {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := "audit"
	if e.UserID != 0 {
		key = "audit:" + strconv.FormatInt(e.UserID, 10)
	}

	pipe := a.Redis.Pipeline()
	pipe.RPush(ctx, key, data)
	if a.MaxLen > 0 {
		pipe.LTrim(ctx, key, -a.MaxLen, -1)
	}

	_, err = pipe.Exec(ctx)
	return err
}
