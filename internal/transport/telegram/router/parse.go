package router

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// newReqID returns a short request id for log correlation.
func newReqID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// tokenizeCommandLine splits a chat message into shell-like words:
// single or double quotes group words and a backslash escapes the next rune.
//
//	/snap "front door" --res=1280x720
func tokenizeCommandLine(s string) []string {
	var (
		words   []string
		cur     strings.Builder
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

// parseFlags separates positionals from flags. Supported forms:
//
//	--key=value  --key value  --switch
//	-k=value     -k value     -abc (switches a, b and c)
//
// A value is only taken from the next arg when it does not look like a flag.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	nextValue := func(i int) (string, bool) {
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			return args[i+1], true
		}
		return "", false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, long := strings.CutPrefix(arg, "--")
		if !long {
			var short bool
			name, short = strings.CutPrefix(arg, "-")
			if !short {
				pos = append(pos, arg)
				continue
			}
		}
		if name == "" {
			pos = append(pos, arg)
			continue
		}
		if k, v, ok := strings.Cut(name, "="); ok {
			flags[k] = v
			continue
		}
		if !long && len(name) > 1 {
			for _, r := range name {
				bools[string(r)] = true
			}
			continue
		}
		if v, ok := nextValue(i); ok {
			flags[name] = v
			i++
			continue
		}
		bools[name] = true
	}
	return pos, flags, bools
}
