package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/yourusername/session-gate/internal/audit"
	"github.com/yourusername/session-gate/internal/password"
)

func hashPasswordCmd() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Print a bcrypt hash for a password (reads stdin when --password is omitted)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "password",
				Usage: "plaintext password",
			},
			&cli.IntFlag{
				Name:    "cost",
				Usage:   "bcrypt cost",
				Value:   10,
				EnvVars: []string{"BCRYPT_COST"},
			},
		},
		Action: func(c *cli.Context) error {
			plaintext := c.String("password")
			if plaintext == "" {
				line, err := readLine(c.App.Reader)
				if err != nil {
					return err
				}
				plaintext = line
			}
			hash, err := password.NewHasher(c.Int("cost")).Hash(plaintext)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, hash)
			return err
		},
	}
}

func auditCmd() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "List recent authentication events for a login name",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL of the audit log",
				EnvVars: []string{"AUDIT_REDIS_URL"},
			},
			&cli.StringFlag{
				Name:     "login",
				Usage:    "login name",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum number of events",
				Value: 20,
			},
		},
		Action: func(c *cli.Context) error {
			if c.String("redis-url") == "" {
				return errors.New("--redis-url or AUDIT_REDIS_URL is required")
			}
			opt, err := redis.ParseURL(c.String("redis-url"))
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			defer rdb.Close()

			events, err := audit.NewStore(rdb, 0).List(c.Context, c.String("login"), c.Int("limit"))
			if err != nil {
				return err
			}
			return printEvents(c.App.Writer, events)
		},
	}
}

func printEvents(w io.Writer, events []audit.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	for _, e := range events {
		if _, err := fmt.Fprintf(w, "%s\t%-16s\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.RFC3339), e.Kind, e.LoginName, e.ClientIP); err != nil {
			return err
		}
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
