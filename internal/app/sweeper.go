package app

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"medicare/internal/services"
)

// startSweepCron removes expired pending codes every interval.
func startSweepCron(otp *services.OTPService, interval time.Duration, log *zap.Logger) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := otp.Sweep(ctx)
		if err != nil {
			log.Warn("[otp][sweep] failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("[otp][sweep] expired codes removed", zap.Int("count", n))
		}
	})
	if err != nil {
		return nil, err
	}

	scheduler.StartAsync()
	log.Info("[otp][sweep] cron started", zap.Duration("interval", interval))
	return scheduler, nil
}
