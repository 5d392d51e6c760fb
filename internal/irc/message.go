package irc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kwach/chatwire/internal/queue"
)

// Message is one parsed IRC line.
type Message struct {
	Tags    map[string]string
	Prefix  string   // servername or nick!user@host
	Command string   // e.g. PRIVMSG, PING, 001
	Params  []string // middle params, trailing last
}

// Nick returns the nick portion of the prefix, empty for server prefixes.
func (m Message) Nick() string {
	nick, _, found := strings.Cut(m.Prefix, "!")
	if !found {
		return ""
	}
	return nick
}

// Trailing returns the last parameter, usually the free-form text.
func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// parseLine parses one IRC line into tags, prefix, command, and params.
// The caller strips line terminators first.
func parseLine(line string) (Message, error) {
	msg := Message{}
	rest := line

	if strings.HasPrefix(rest, "@") {
		cut := strings.Index(rest, " ")
		if cut < 0 {
			return Message{}, fmt.Errorf("tags without command: %q", line)
		}
		msg.Tags = parseTags(rest[1:cut])
		rest = rest[cut+1:]
	}

	if strings.HasPrefix(rest, ":") {
		cut := strings.Index(rest, " ")
		if cut < 0 {
			return Message{}, fmt.Errorf("prefix without command: %q", line)
		}
		msg.Prefix = rest[1:cut]
		rest = rest[cut+1:]
	}

	trailing := ""
	hasTrailing := false
	if cut := strings.Index(rest, " :"); cut >= 0 {
		trailing = rest[cut+2:]
		hasTrailing = true
		rest = rest[:cut]
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Message{}, fmt.Errorf("line without command: %q", line)
	}
	msg.Command = fields[0]
	msg.Params = fields[1:]
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
	}

	return msg, nil
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTag(value)
	}
	return tags
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' || i == len(value)-1 {
			b.WriteByte(value[i])
			continue
		}
		i++
		switch value[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

// passLine builds the PASS credential line, normalizing the oauth: prefix
// Twitch expects.
func passLine(token string) string {
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return "PASS " + token
}

// privmsgLine builds an outgoing chat line. The client-nonce tag gives
// each send a handle that survives into drop logs and server echoes.
func privmsgLine(item queue.Item) string {
	return fmt.Sprintf("@client-nonce=%s PRIVMSG #%s :%s", item.Nonce, item.Channel, item.Text)
}

// truncate cuts text to limit bytes without splitting a UTF-8 sequence.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
