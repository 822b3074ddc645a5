package cmd

import (
	"context"

	goSession "github.com/MrEthical07/goSession"
	"go.uber.org/zap"
)

// zapAuditSink writes session audit events to the daemon log.
type zapAuditSink struct {
	logger *zap.Logger
}

func newZapAuditSink(l *zap.Logger) *zapAuditSink {
	return &zapAuditSink{logger: l.Named("audit")}
}

func (s *zapAuditSink) Emit(_ context.Context, event goSession.AuditEvent) {
	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", event.TenantID))
	}
	if event.SessionHandle != "" {
		fields = append(fields, zap.String("session_handle", event.SessionHandle))
	}
	if event.Transfer != "" {
		fields = append(fields, zap.String("transfer_method", event.Transfer))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta_"+k, v))
	}
	if event.Success {
		s.logger.Info("session event", fields...)
		return
	}
	s.logger.Warn("session event", fields...)
}
