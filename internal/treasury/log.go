package treasury

import (
	"context"

	"go.uber.org/zap"

	"tranche-vault/internal/vault/application"
)

// LogSink accepts every deployment and only logs it.
type LogSink struct {
	account string
	logger  *zap.Logger
}

// NewLogSink constructs a sink for development setups.
func NewLogSink(account string, logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{account: account, logger: logger}
}

// Account returns the custody account funds are moved to.
func (s *LogSink) Account() string { return s.account }

// Receive logs the deployment.
func (s *LogSink) Receive(_ context.Context, deployment application.Deployment) error {
	s.logger.Info("treasury deployment received",
		zap.String("deployment_id", deployment.ID),
		zap.String("asset_class", deployment.AssetClass),
		zap.String("amount", deployment.Amount.String()),
	)
	return nil
}
