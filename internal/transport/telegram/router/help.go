package router

import (
	"fmt"
	"html"
	"slices"
	"strings"
)

const helpUnknown = "<b>Unknown command</b>\nSend <code>/help</code> to list the available commands."

// helpText renders help for path in Telegram HTML. An empty path lists
// the top-level commands.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return helpIndex(root)
	}
	node, full := root, make([]string, 0, len(path))
	for _, p := range path {
		p = strings.TrimPrefix(p, "/")
		if next, ok := node.child(p); ok {
			node, full = next, append(full, p)
			continue
		}
		if leaf := alias[p]; leaf != nil && leaf.cmd != nil {
			node, full = leaf, splitRoute(leaf.cmd.Route)
			break
		}
		return helpUnknown
	}
	return helpDetail(node, full)
}

// helpIndex lists top-level commands, everyone's first, each group sorted.
func helpIndex(root *cmdNode) string {
	kids := root.kids()
	slices.SortStableFunc(kids, func(a, b *cmdNode) int {
		la, lb := ownerOnly(a), ownerOnly(b)
		switch {
		case la == lb:
			return strings.Compare(a.name, b.name)
		case la:
			return 1
		default:
			return -1
		}
	})

	var b strings.Builder
	b.WriteString("<b>Commands</b>\nSend <code>/help &lt;cmd&gt;</code> for details.")
	for _, n := range kids {
		b.WriteByte('\n')
		writeEntry(&b, "/"+n.name, n)
	}
	return b.String()
}

func helpDetail(node *cmdNode, full []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Help</b> <code>%s</code>", html.EscapeString("/"+strings.Join(full, " ")))
	line := func(s string) {
		b.WriteByte('\n')
		b.WriteString(s)
	}

	if c := node.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			line(html.EscapeString(d))
		}
		if c.Access == AccessOwnerOnly {
			line("🔒 <i>owner only</i>")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			line("<b>Usage</b>")
			line("<code>" + html.EscapeString(u) + "</code>")
		}
		if short := shortcuts(*c); len(short) > 0 {
			line("<b>Shortcuts</b>")
			for _, s := range short {
				line("• <code>/" + html.EscapeString(s) + "</code>")
			}
		}
	} else {
		line("Command group.")
		if ownerOnly(node) {
			line("🔒 <i>owner only</i>")
		}
	}

	if kids := node.kids(); len(kids) > 0 {
		line("<b>Subcommands</b>")
		for _, n := range kids {
			b.WriteByte('\n')
			writeEntry(&b, "/"+strings.Join(append(slices.Clone(full), n.name), " "), n)
		}
	}
	return b.String()
}

func writeEntry(b *strings.Builder, cmd string, n *cmdNode) {
	b.WriteString("• ")
	if ownerOnly(n) {
		b.WriteString("🔒 ")
	}
	b.WriteString("<code>" + html.EscapeString(cmd) + "</code>")
	if desc := summarizeNodeDesc(n); desc != "" {
		b.WriteString(" - " + html.EscapeString(desc))
	}
}

// summarizeNodeDesc is the command description, or for a group the first
// few subcommand names.
func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.kids()
	if len(kids) == 0 {
		return ""
	}
	names := make([]string, 0, 3)
	for _, k := range kids[:min(3, len(kids))] {
		names = append(names, k.name)
	}
	s := "subcommands: " + strings.Join(names, ", ")
	if len(kids) > 3 {
		s += ", …"
	}
	return s
}

// ownerOnly reports a leaf's access, or for a group whether every
// descendant is owner-only.
func ownerOnly(n *cmdNode) bool {
	if n == nil {
		return false
	}
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	for _, ch := range n.children {
		if !ownerOnly(ch) {
			return false
		}
	}
	return true
}

// shortcuts lists the extra names a command answers to.
func shortcuts(c Command) []string {
	var out []string
	if route := splitRoute(c.Route); len(route) > 1 {
		if name, ok := routeMenuName(route); ok {
			out = append(out, name)
		}
	}
	for _, a := range c.Aliases {
		if a = strings.TrimSpace(a); a == "" || strings.Contains(a, " ") {
			continue
		}
		out = append(out, a)
		if s := menuName(a); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
