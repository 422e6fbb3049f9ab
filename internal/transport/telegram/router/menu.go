package router

import (
	"slices"
	"strings"

	kit "motionbot/internal/transport"
)

const (
	// Bot API limits for setMyCommands.
	maxMenuCommands = 100
	maxMenuName     = 32
)

// menuName maps a route or alias onto the [a-z0-9_] alphabet Telegram
// accepts for command names. Separators collapse to one underscore and
// other runes are dropped. It returns "" when nothing usable remains.
func menuName(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == '/' || r == ' ' || r == '\t' || r == '\n'
	})
	var b strings.Builder
	for _, p := range parts {
		word := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, p)
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		b.WriteString(word)
	}
	name := b.String()
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "cmd_" + name
	}
	if len(name) > maxMenuName {
		name = strings.TrimRight(name[:maxMenuName], "_")
	}
	return name
}

// routeMenuName is the menu form of a route: "state reset" -> "state_reset".
func routeMenuName(route []string) (string, bool) {
	name := menuName(strings.Join(route, "_"))
	return name, name != ""
}

// menuCommands lists the top-level commands, then one shortcut per
// multi-token route. Each block is sorted by name.
func menuCommands(root *cmdNode, cmds []Command) []kit.BotCommand {
	seen := map[string]bool{}
	var top, shortcuts []kit.BotCommand
	push := func(dst *[]kit.BotCommand, name, desc string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		desc = strings.Join(strings.Fields(desc), " ")
		if desc == "" {
			desc = name
		}
		*dst = append(*dst, kit.BotCommand{Command: name, Description: desc})
	}

	if root != nil {
		for _, n := range root.kids() {
			push(&top, menuName(n.name), summarizeNodeDesc(n))
		}
	}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) < 2 {
			continue
		}
		if name, ok := routeMenuName(route); ok {
			push(&shortcuts, name, orDefault(c.Description, strings.Join(route, " ")))
		}
	}

	byName := func(a, b kit.BotCommand) int { return strings.Compare(a.Command, b.Command) }
	slices.SortFunc(top, byName)
	slices.SortFunc(shortcuts, byName)
	out := append(top, shortcuts...)
	if len(out) > maxMenuCommands {
		out = out[:maxMenuCommands]
	}
	return out
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
