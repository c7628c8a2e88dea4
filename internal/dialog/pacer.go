package dialog

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	typingBase    = 0.9
	typingPerRune = 0.035
	typingMin     = 1.0
	typingMax     = 14.0
	typingRefresh = 4 * time.Second
)

// TypingDuration derives a human-looking typing delay from the length
// of the trimmed reply, clamped to [1s, 14s].
func TypingDuration(reply string) time.Duration {
	n := utf8.RuneCountInString(strings.TrimSpace(reply))
	seconds := typingBase + typingPerRune*float64(n)
	if seconds < typingMin {
		seconds = typingMin
	}
	if seconds > typingMax {
		seconds = typingMax
	}
	return time.Duration(seconds * float64(time.Second))
}

// EmitTyping keeps the typing indicator alive for d by invoking
// indicate and sleeping min(4s, remaining) until the time is spent.
// The loop stops silently when the indicator fails or ctx is canceled.
func EmitTyping(ctx context.Context, d time.Duration, indicate func(context.Context) error) {
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return
		}
		if err := indicate(ctx); err != nil {
			return
		}
		wait := typingRefresh
		if left < wait {
			wait = left
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
