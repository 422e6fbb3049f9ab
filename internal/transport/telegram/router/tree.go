package router

import (
	"sort"
	"strings"
)

// cmdNode is one token of a route. Group nodes ("state" in "state reset")
// have children but may have no command of their own.
type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode { return &cmdNode{children: map[string]*cmdNode{}} }

// splitRoute turns "state reset" into ["state", "reset"].
func splitRoute(route string) []string { return strings.Fields(route) }

// insert registers c at route, creating group nodes on the way, and returns the leaf.
func (n *cmdNode) insert(route []string, c Command) *cmdNode {
	cur := n
	for _, tok := range route {
		next, ok := cur.children[tok]
		if !ok {
			next = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = next
		}
		cur = next
	}
	cur.cmd = &c
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

// descend follows args into subcommands for as long as they name a child.
// It stops at the first flag. It returns the deepest node, the route taken
// below n and the unconsumed args.
func (n *cmdNode) descend(args []string) (*cmdNode, []string, []string) {
	cur := n
	var path []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		next, ok := cur.children[args[0]]
		if !ok {
			break
		}
		cur, path, args = next, append(path, args[0]), args[1:]
	}
	return cur, path, args
}

// kids returns the children sorted by name.
func (n *cmdNode) kids() []*cmdNode {
	out := make([]*cmdNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
