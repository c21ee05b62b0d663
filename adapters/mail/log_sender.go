package mail

import (
	"context"

	"github.com/layer-3/gatekeeper/internal/logger"
	"go.uber.org/zap"
)

// LogSender writes mail to the log instead of delivering it. Used in
// development when no broker is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(lg *zap.Logger) *LogSender {
	return &LogSender{logger: lg}
}

func (s *LogSender) Send(ctx context.Context, address, template string, data map[string]any) error {
	logger.WithContext(ctx, s.logger).Info("mail not delivered, logging instead",
		zap.String("to", logger.MaskEmail(address)),
		zap.String("template", template),
		zap.Any("data", data),
	)
	return nil
}
