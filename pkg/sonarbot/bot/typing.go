package bot

import (
	"context"
	"time"
)

// typingInterval is how often the "typing..." signal is refreshed while
// an answer request is outstanding. Telegram shows the indicator for
// about five seconds per signal.
const typingInterval = 4 * time.Second

// startTyping launches the presence ticker for chatID and returns a stop
// function that cancels the ticker and waits for it to finish. The first
// signal is sent immediately; transport errors are logged at debug and
// never abort the ticker.
func (b *Bot) startTyping(ctx context.Context, chatID int64) (stop func()) {
	tickerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		for {
			if err := b.transport.SendTyping(tickerCtx, chatID); err != nil {
				b.logger.Debug("typing signal failed", "err", err)
			}
			select {
			case <-tickerCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
