package worker

import "go.uber.org/zap"

// debug logs pool lifecycle events, only when Config.Debug is set.
func (p *jobChannelPool) debug(msg string, fields ...zap.Field) {
	if p.verbose {
		p.logger.Info(msg, fields...)
	}
}
