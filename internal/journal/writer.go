package journal

import (
	"context"
	"time"

	"pacekit/internal/eventbus"
	logx "pacekit/pkg/logx"
)

// RunWriter drains pace events from the bus into the store until ctx is
// done. It is a no-op when the store is nil (journal disabled).
//
// Writes are best-effort: a failing append is logged and the event dropped,
// so persistence trouble never backs up into the limiters.
func RunWriter(ctx context.Context, bus eventbus.Bus, st Store, log logx.Logger) {
	if st == nil || bus == nil {
		return
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	ch, unsub := bus.Subscribe(256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeOne(ctx, st, log, e)
		}
	}
}

func writeOne(ctx context.Context, st Store, log logx.Logger, e eventbus.Event) {
	_ = ctx
	// Detach the write from the run context so an in-flight append still
	// lands during shutdown.
	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch e.Topic {
	case eventbus.TopicExecuted:
		entry, ok := e.Data.(Entry)
		if !ok {
			return
		}
		if err := st.AppendExecution(wctx, entry); err != nil {
			log.Warn("journal append failed", logx.String("limiter", entry.Limiter), logx.Err(err))
		}
	case eventbus.TopicWindowReset:
		entry, ok := e.Data.(ResetEntry)
		if !ok {
			return
		}
		if err := st.AppendReset(wctx, entry); err != nil {
			log.Warn("journal reset append failed", logx.String("limiter", entry.Limiter), logx.Err(err))
		}
	}
}
