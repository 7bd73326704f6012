package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	logx "autonotice/pkg/logx"
)

// albumLimit is Telegram's cap on media items per sendMediaGroup call.
const albumLimit = 10

type Config struct {
	Token        string
	TargetChatID int64
	// AdminChatID receives alerts; falls back to TargetChatID when 0.
	AdminChatID int64
	PollTimeout time.Duration
	// AlertRatePerMin caps admin alerts; 0 means 10/min.
	AlertRatePerMin int
}

// Service delivers posts and admin alerts through one shared Telegram bot.
type Service struct {
	cfg     Config
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.TargetChatID == 0 {
		return nil, errors.New("telegram target chat id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	rpm := cfg.AlertRatePerMin
	if rpm <= 0 {
		rpm = 10
	}
	return &Service{
		cfg:     cfg,
		bot:     b,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}, nil
}

// Bot exposes the underlying bot for the command surface.
func (s *Service) Bot() *tele.Bot { return s.bot }

// Run starts long polling and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.bot.Stop()
	}()
	s.log.Info("telegram polling started")
	s.bot.Start()
	s.log.Info("telegram polling stopped")
	return nil
}

func (s *Service) target() tele.Recipient { return tele.ChatID(s.cfg.TargetChatID) }

func (s *Service) adminTarget() tele.Recipient {
	if s.cfg.AdminChatID != 0 {
		return tele.ChatID(s.cfg.AdminChatID)
	}
	return s.target()
}

// TargetChatID reports the chat delivered posts go to (recorded in the
// delivery log).
func (s *Service) TargetChatID() int64 { return s.cfg.TargetChatID }

// SendPost delivers one post: text-only, a single captioned photo/video, or
// albums chunked by Telegram's 10-item limit with the caption on the first
// element only. A media failure degrades to a text message so the follower
// still sees the post; only a failure of that fallback fails the delivery.
func (s *Service) SendPost(ctx context.Context, p Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := formatPost(p)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}

	if len(p.Media) == 0 {
		_, err := s.bot.Send(s.target(), msg, opts)
		return err
	}

	if err := s.sendMedia(p.Media, msg); err != nil {
		s.log.Warn("media send failed, degrading to text", logx.String("link", p.Link), logx.Err(err))
		degraded := fmt.Sprintf("%s\n\n(media delivery failed: %v)", msg, err)
		if _, terr := s.bot.Send(s.target(), degraded, opts); terr != nil {
			return terr
		}
	}
	return nil
}

func (s *Service) sendMedia(urls []string, caption string) error {
	media := make([]tele.Inputtable, 0, len(urls))
	for i, url := range urls {
		// Caption only on the first item; follow-up album chunks carry none.
		c := ""
		if i == 0 {
			c = caption
		}
		media = append(media, inputMedia(url, c))
	}

	if len(media) == 1 {
		_, err := s.bot.Send(s.target(), media[0], &tele.SendOptions{ParseMode: tele.ModeHTML})
		return err
	}

	for start := 0; start < len(media); start += albumLimit {
		end := start + albumLimit
		if end > len(media) {
			end = len(media)
		}
		if _, err := s.bot.SendAlbum(s.target(), tele.Album(media[start:end]), tele.ModeHTML); err != nil {
			return err
		}
	}
	return nil
}

// inputMedia guesses photo vs video from the URL. Crude, but the hub does not
// expose a content type and Telegram rejects mismatches loudly enough.
func inputMedia(url, caption string) tele.Inputtable {
	if strings.Contains(url, ".mp4") || strings.Contains(url, "video") {
		return &tele.Video{File: tele.FromURL(url), Caption: caption}
	}
	return &tele.Photo{File: tele.FromURL(url), Caption: caption}
}
