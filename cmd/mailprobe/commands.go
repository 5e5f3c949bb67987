package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/infodancer/mailprobe/internal/imap"
)

func toFlag() cli.Flag {
	return &cli.StringFlag{Name: "to", Usage: "recipient (default: the IMAP username)"}
}

func (p *env) recipient(c *cli.Context) string {
	if to := c.String("to"); to != "" {
		return to
	}
	return p.cfg.IMAP.Username
}

func deliverCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:      "deliver",
		Usage:     "Deliver a message over LMTP",
		ArgsUsage: "MESSAGE",
		Flags: []cli.Flag{
			toFlag(),
			&cli.IntFlag{Name: "attachment-size", Value: -1, Usage: "attach a synthetic attachment of this many bytes"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return errors.New("missing message text")
			}
			message := strings.Join(c.Args().Slice(), " ")
			m := p.stack.Mailer()
			var (
				n   int
				err error
			)
			if size := c.Int("attachment-size"); size >= 0 {
				n, err = m.DeliverWithAttachment(c.Context, message, p.recipient(c), size)
			} else {
				n, err = m.Deliver(c.Context, message, p.recipient(c))
			}
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func deliverFileCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:      "deliver-file",
		Usage:     "Deliver the contents of a file over LMTP",
		ArgsUsage: "PATH",
		Flags:     []cli.Flag{toFlag()},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return errors.New("missing file path")
			}
			n, err := p.stack.Mailer().DeliverFile(c.Context, c.Args().First(), p.recipient(c))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func receiveCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "Fetch every message in the mailbox",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "attachment", Usage: "decode synthetic attachments"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("attachment") {
				mails, err := p.stack.Mailer().ReceiveWithAttachment(c.Context)
				if err != nil {
					return err
				}
				return printJSON(mails)
			}
			mails, err := p.stack.Mailer().Receive(c.Context)
			if err != nil {
				return err
			}
			return printJSON(mails)
		},
	}
}

func headersCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:  "headers",
		Usage: "Fetch message headers in sorted order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sort", Value: "date", Usage: "sort field"},
			&cli.BoolFlag{Name: "reverse", Usage: "sort descending"},
		},
		Action: func(c *cli.Context) error {
			headers, err := p.stack.Mailer().ReceiveHeaders(c.Context, c.String("sort"), c.Bool("reverse"))
			if err != nil {
				return err
			}
			return printJSON(headers)
		},
	}
}

func partsCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:  "parts",
		Usage: "Fetch the second MIME part header of every message",
		Action: func(c *cli.Context) error {
			parts, err := p.stack.Mailer().ReceivePart(c.Context)
			if err != nil {
				return err
			}
			return printJSON(parts)
		},
	}
}

func searchCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the mailbox",
		ArgsUsage: `[[NOT] ALL|SEEN|KEYWORD "name"]`,
		Action: func(c *cli.Context) error {
			var q imap.SearchQuery
			if c.Args().Len() > 0 {
				var err error
				if q, err = imap.ParseSearchQuery(strings.Join(c.Args().Slice(), " ")); err != nil {
					return err
				}
			}
			ids, err := p.stack.Mailer().Search(c.Context, q)
			if err != nil {
				return err
			}
			return printJSON(ids)
		},
	}
}

func storeCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:      "store",
		Usage:     "Add flags to every message",
		ArgsUsage: "FLAG...",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return errors.New("missing flags")
			}
			return p.stack.Mailer().Store(c.Context, c.Args().Slice()...)
		},
	}
}

func cyclesCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:  "cycles",
		Usage: "Fetch the mailbox repeatedly in one session and report server memory growth (KB)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Value: 10, Usage: "number of fetch cycles"},
		},
		Action: func(c *cli.Context) error {
			delta, err := p.stack.Mailer().MultipleReceiveCycles(c.Context, c.Int("count"), p.stack.Sampler())
			if err != nil {
				return err
			}
			fmt.Println(delta)
			return nil
		},
	}
}

func adminCommand(p *env) *cli.Command {
	password := func() []cli.Flag {
		return []cli.Flag{&cli.StringFlag{Name: "password", Usage: "mailbox key password (default: admin password from config)"}}
	}
	pw := func(c *cli.Context) string {
		if c.IsSet("password") {
			return c.String("password")
		}
		return p.cfg.Admin.Password
	}
	return &cli.Command{
		Name:  "admin",
		Usage: "Run the server's administrative tool",
		Subcommands: []*cli.Command{
			{
				Name:  "fetch",
				Usage: "Fetch message text",
				Flags: password(),
				Action: func(c *cli.Context) error {
					mails, err := p.stack.Administrator().Fetch(c.Context, pw(c))
					if err != nil {
						return err
					}
					return printJSON(mails)
				},
			},
			{
				Name:  "fetch-header",
				Usage: "Fetch message headers",
				Flags: password(),
				Action: func(c *cli.Context) error {
					headers, err := p.stack.Administrator().FetchHeader(c.Context, pw(c))
					if err != nil {
						return err
					}
					return printJSON(headers)
				},
			},
			{
				Name:  "encrypt",
				Usage: "Rewrite the mailbox encrypted",
				Flags: password(),
				Action: func(c *cli.Context) error {
					return p.stack.Administrator().Encrypt(c.Context, pw(c))
				},
			},
			{
				Name:  "decrypt",
				Usage: "Rewrite the mailbox in plain text",
				Flags: password(),
				Action: func(c *cli.Context) error {
					return p.stack.Administrator().Decrypt(c.Context, pw(c))
				},
			},
			{
				Name:  "clear",
				Usage: "Remove the user's mail directory",
				Action: func(c *cli.Context) error {
					return p.stack.Administrator().Clear()
				},
			},
		},
	}
}

func fixtureCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:  "fixture",
		Usage: "Manage the fixture account database",
		Subcommands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "Register the configured user and a key pair",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "id", Value: 1, Usage: "user and key id"},
					&cli.BoolFlag{Name: "key-enabled", Value: true, Usage: "enable the key"},
					&cli.BoolFlag{Name: "no-key", Usage: "register the user without a key"},
				},
				Action: func(c *cli.Context) error {
					store, err := p.stack.Fixtures()
					if err != nil {
						return err
					}
					id := c.Int("id")
					if err := store.InsertUser(c.Context, id, p.cfg.IMAP.Username, p.cfg.IMAP.Password); err != nil {
						return err
					}
					if c.Bool("no-key") {
						return nil
					}
					return store.InsertKey(c.Context, id, c.Bool("key-enabled"))
				},
			},
			{
				Name:      "key",
				Usage:     "Enable or disable a key",
				ArgsUsage: "ID on|off",
				Action: func(c *cli.Context) error {
					store, err := p.stack.Fixtures()
					if err != nil {
						return err
					}
					var id int
					if _, err := fmt.Sscan(c.Args().Get(0), &id); err != nil {
						return fmt.Errorf("invalid key id %q", c.Args().Get(0))
					}
					switch c.Args().Get(1) {
					case "on":
						return store.UpdateKey(c.Context, id, true)
					case "off":
						return store.UpdateKey(c.Context, id, false)
					default:
						return fmt.Errorf("expected on or off, got %q", c.Args().Get(1))
					}
				},
			},
			{
				Name:  "list",
				Usage: "Print users and keys",
				Action: func(c *cli.Context) error {
					store, err := p.stack.Fixtures()
					if err != nil {
						return err
					}
					users, err := store.FetchUsers(c.Context)
					if err != nil {
						return err
					}
					keys, err := store.FetchKeys(c.Context)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"users": users, "keys": keys})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete all users and keys",
				Action: func(c *cli.Context) error {
					store, err := p.stack.Fixtures()
					if err != nil {
						return err
					}
					if err := store.ClearKeys(c.Context); err != nil {
						return err
					}
					return store.ClearUsers(c.Context)
				},
			},
		},
	}
}

func storageCommand(p *env) *cli.Command {
	return &cli.Command{
		Name:  "storage",
		Usage: "Inspect the server's on-disk store",
		Subcommands: []*cli.Command{
			{
				Name:      "find",
				Usage:     "Print stored header blocks delivered to the user, or matching a pattern",
				ArgsUsage: "[PATTERN]",
				Action: func(c *cli.Context) error {
					in := p.stack.Inspector()
					var (
						found []string
						err   error
					)
					if c.Args().Len() > 0 {
						re, rerr := regexp.Compile(c.Args().First())
						if rerr != nil {
							return rerr
						}
						found, err = in.FindMailWith(c.Context, re)
					} else {
						found, err = in.FindMailDeliveredTo(c.Context, p.cfg.Storage.User)
					}
					if err != nil {
						return err
					}
					return printJSON(found)
				},
			},
			{
				Name:  "clear",
				Usage: "Remove the user's stored mail",
				Action: func(c *cli.Context) error {
					return p.stack.Inspector().Clear(c.Context)
				},
			},
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
