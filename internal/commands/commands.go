// Package commands is the admin command surface of the bot: follower
// management over Telegram, restricted to the configured owner ids.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tele "gopkg.in/telebot.v4"

	"autonotice/internal/storage"
	logx "autonotice/pkg/logx"
)

type Config struct {
	// OwnerUserIDs may invoke commands. Empty means every command is
	// rejected (the surface is present but disarmed).
	OwnerUserIDs []int64
}

// Handler wires follower management commands onto a shared bot.
type Handler struct {
	store   storage.Store
	refresh func(ctx context.Context)
	owners  map[int64]struct{}
	log     logx.Logger
}

// NewHandler builds the command surface. refresh, when non-nil, is invoked
// after membership changes so the day's schedule picks them up without
// waiting for the nightly rebuild.
func NewHandler(store storage.Store, refresh func(ctx context.Context), cfg Config, log logx.Logger) *Handler {
	owners := make(map[int64]struct{}, len(cfg.OwnerUserIDs))
	for _, id := range cfg.OwnerUserIDs {
		owners[id] = struct{}{}
	}
	if len(owners) == 0 {
		log.Warn("no owner ids configured, all admin commands will be rejected")
	}
	return &Handler{store: store, refresh: refresh, owners: owners, log: log}
}

var menu = []tele.Command{
	{Text: "add_id", Description: "follow an account: <id> [category] [source]"},
	{Text: "remove_id", Description: "unfollow an account: <id>"},
	{Text: "update_id_cate", Description: "change category: <id> <category>"},
	{Text: "get_cate_list", Description: "list known categories"},
	{Text: "get_disable_id", Description: "list disabled accounts"},
}

// Register installs the handlers and publishes the command menu so the
// commands show up in the Telegram client without BotFather setup.
func (h *Handler) Register(bot *tele.Bot) error {
	bot.Handle("/add_id", h.guard(h.addID))
	bot.Handle("/remove_id", h.guard(h.removeID))
	bot.Handle("/update_id_cate", h.guard(h.updateCategory))
	bot.Handle("/get_cate_list", h.guard(h.categoryList))
	bot.Handle("/get_disable_id", h.guard(h.disabledList))
	return bot.SetCommands(menu)
}

// guard rejects senders outside the owner set before the wrapped handler
// runs.
func (h *Handler) guard(fn func(c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if _, ok := h.owners[sender.ID]; !ok {
			h.log.Warn("unauthorized command rejected",
				logx.Int64("user", sender.ID),
				logx.String("text", c.Text()))
			return c.Send("⛔ you are not allowed to use this command")
		}
		return fn(c)
	}
}

func (h *Handler) addID(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 || len(args) > 3 {
		return c.Send("Usage: /add_id <id> [category] [source]")
	}
	id := strings.TrimSpace(args[0])
	category := storage.CategoryDefault
	source := storage.SourceDefault
	if len(args) >= 2 {
		category = args[1]
	}
	if len(args) == 3 {
		source = args[2]
	}

	err := h.store.AddFollower(context.Background(), id, category, source)
	switch {
	case errors.Is(err, storage.ErrExists):
		return c.Send(fmt.Sprintf("%s is already followed", id))
	case err != nil:
		h.log.Error("add follower failed", logx.String("follower", id), logx.Err(err))
		return c.Send("adding failed, see logs")
	}

	h.log.Info("follower added", logx.String("follower", id), logx.String("category", category))
	h.kickRefresh()
	return c.Send(fmt.Sprintf("now following %s (%s)", id, category))
}

func (h *Handler) removeID(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /remove_id <id>")
	}
	id := strings.TrimSpace(args[0])

	err := h.store.RemoveFollower(context.Background(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Send(fmt.Sprintf("%s is not followed", id))
	case err != nil:
		h.log.Error("remove follower failed", logx.String("follower", id), logx.Err(err))
		return c.Send("removing failed, see logs")
	}

	h.log.Info("follower removed", logx.String("follower", id))
	h.kickRefresh()
	return c.Send(fmt.Sprintf("stopped following %s", id))
}

func (h *Handler) updateCategory(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /update_id_cate <id> <category>")
	}
	id, category := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])

	err := h.store.SetCategory(context.Background(), id, category)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Send(fmt.Sprintf("%s is not followed", id))
	case err != nil:
		h.log.Error("category update failed", logx.String("follower", id), logx.Err(err))
		return c.Send("update failed, see logs")
	}

	h.log.Info("category updated", logx.String("follower", id), logx.String("category", category))
	h.kickRefresh()
	return c.Send(fmt.Sprintf("%s is now in %s", id, category))
}

func (h *Handler) categoryList(c tele.Context) error {
	cats, err := h.store.Categories(context.Background())
	if err != nil {
		h.log.Error("category list failed", logx.Err(err))
		return c.Send("listing failed, see logs")
	}
	if len(cats) == 0 {
		return c.Send("no categories yet")
	}
	sort.Strings(cats)
	return c.Send("categories: " + strings.Join(cats, ", "))
}

func (h *Handler) disabledList(c tele.Context) error {
	ids, err := h.store.FollowerIDsByCategory(context.Background(), storage.CategoryDisabled)
	if err != nil {
		h.log.Error("disabled list failed", logx.Err(err))
		return c.Send("listing failed, see logs")
	}
	if len(ids) == 0 {
		return c.Send("no disabled accounts")
	}
	return c.Send("disabled: " + strings.Join(ids, ", "))
}

func (h *Handler) kickRefresh() {
	if h.refresh != nil {
		h.refresh(context.Background())
	}
}
