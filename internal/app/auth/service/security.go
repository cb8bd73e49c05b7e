package service

import (
	"context"

	lg "github.com/Miraines/MoonyAndStarry/chat-auth/internal/infra/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SecurityEventType string

const (
	EventLoginSuccess  SecurityEventType = "login_success"
	EventLoginFailure  SecurityEventType = "login_failure"
	EventRegistered    SecurityEventType = "registered"
	EventExternalLogin SecurityEventType = "external_login"
	EventRefreshReplay SecurityEventType = "refresh_replay"
	EventTokensRevoked SecurityEventType = "tokens_revoked"
)

type SecurityEvent struct {
	Type      SecurityEventType
	UserID    uuid.UUID
	Email     string
	IP        string
	UserAgent string
	Reason    string
	Count     int64
}

// SecurityHook receives authentication events. Implementations must not block.
type SecurityHook interface {
	OnSecurityEvent(ctx context.Context, ev SecurityEvent)
}

type nopHook struct{}

func (nopHook) OnSecurityEvent(context.Context, SecurityEvent) {}

type ZapSecurityHook struct {
	log *zap.Logger
}

func NewZapSecurityHook(l *zap.Logger) *ZapSecurityHook {
	return &ZapSecurityHook{log: l.Named("security")}
}

func (h *ZapSecurityHook) OnSecurityEvent(_ context.Context, ev SecurityEvent) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("ip", ev.IP),
		zap.String("user_agent", ev.UserAgent),
	}
	if ev.UserID != uuid.Nil {
		fields = append(fields, zap.String("user_id", ev.UserID.String()))
	}
	if ev.Email != "" {
		fields = append(fields, lg.Email(ev.Email))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Type == EventTokensRevoked {
		fields = append(fields, zap.Int64("count", ev.Count))
	}

	switch ev.Type {
	case EventLoginFailure, EventRefreshReplay:
		h.log.Warn("security event", fields...)
	default:
		h.log.Info("security event", fields...)
	}
}
