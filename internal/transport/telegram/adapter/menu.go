package adapter

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "motionbot/internal/transport"
	logx "motionbot/pkg/logx"
)

const (
	maxMenuEntries = 100
	maxMenuDesc    = 256
)

// UpdateMenuCommands publishes the command menu with setMyCommands.
// An unchanged list is not sent again.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	menu := toTeleCommands(cmds)
	sum := menuDigest(menu)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if sum == a.menuHash {
		return nil
	}
	if err := a.lim.Wait(ctx); err != nil {
		return err
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}

func toTeleCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, min(len(cmds), maxMenuEntries))
	for _, c := range cmds {
		if len(out) == maxMenuEntries {
			break
		}
		name := strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
		if name == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = name
		}
		if r := []rune(desc); len(r) > maxMenuDesc {
			desc = string(r[:maxMenuDesc])
		}
		out = append(out, tele.Command{Text: name, Description: desc})
	}
	return out
}

func menuDigest(menu []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range menu {
		fmt.Fprintf(h, "%s\x00%s\x00", c.Text, c.Description)
	}
	return h.Sum64()
}
