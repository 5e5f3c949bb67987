package wiretest

import (
	"strings"
	"testing"
)

// StartLMTP serves LMTP on loopback and stores every accepted message in mb.
func StartLMTP(t testing.TB, mb *Mailbox) *Server {
	t.Helper()
	return Start(t, func(p *Peer) { serveLMTP(p, mb) })
}

func serveLMTP(p *Peer, mb *Mailbox) {
	p.Send("220 localhost Loopback LMTP ready")
	var from, to string
	for {
		line, ok := p.Recv()
		if !ok {
			return
		}
		verb, args, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "LHLO":
			p.Send("250-localhost", "250-PIPELINING", "250-ENHANCEDSTATUSCODES", "250 8BITMIME")
		case "MAIL":
			from = args
			p.Send("250 2.1.0 OK")
		case "RCPT":
			if from == "" {
				p.Send("503 5.5.1 MAIL needed first")
				continue
			}
			to = strings.TrimPrefix(strings.TrimPrefix(args, "TO:"), "to:")
			p.Send("250 2.1.5 OK")
		case "DATA":
			if to == "" {
				p.Send("503 5.5.1 No valid recipients")
				continue
			}
			p.Send("354 OK")
			var body []string
			for {
				l, ok := p.Recv()
				if !ok {
					return
				}
				if l == "." {
					break
				}
				body = append(body, strings.TrimPrefix(l, "."))
			}
			mb.Deliver(body)
			p.Send("250 2.0.0 " + to + " Saved")
			from, to = "", ""
		case "RSET":
			from, to = "", ""
			p.Send("250 2.0.0 OK")
		case "QUIT":
			p.Send("221 2.0.0 Bye")
			return
		default:
			p.Send("500 5.5.2 Unknown command")
		}
	}
}
