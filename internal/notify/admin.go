package notify

import (
	"context"

	tele "gopkg.in/telebot.v4"

	logx "autonotice/pkg/logx"
)

// Alert sends a best-effort error notification to the admin chat.
// Failures are logged and swallowed, never escalated; a storm of alerts is
// rate-limited and the excess dropped.
func (s *Service) Alert(ctx context.Context, msg string) {
	if ctx.Err() != nil {
		return
	}
	if !s.limiter.Allow() {
		s.log.Warn("admin alert dropped (rate limited)", logx.String("msg", msg))
		return
	}
	text := "⚠️ <b>system error</b>\n" + msg
	if _, err := s.bot.Send(s.adminTarget(), text, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
		s.log.Warn("admin alert send failed", logx.Err(err), logx.String("msg", msg))
	}
}
