package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zero8dotdev/godspeed-cli/client"
)

func newAttachCmd() *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "attach <url>",
		Short: "Connect to a running bridge and exchange events from the terminal",
		Long: `Connect to a running bridge. Every received event is printed as one JSON line.
Lines typed on stdin are sent as events: "<event> [json data]", for example
  go-to-project "my-service"
  restart-nodemon`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := client.Dial(ctx, args[0], origin)
			if err != nil {
				return err
			}
			defer c.Close()

			go func() {
				<-ctx.Done()
				c.Close()
			}()

			go sendLines(cmd.InOrStdin(), cmd.ErrOrStderr(), c)
			return printEvents(ctx, cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "Origin header to send")
	return cmd
}

func printEvents(ctx context.Context, out io.Writer, c *client.Client) error {
	for {
		env, err := c.Next(context.Background())
		if err != nil {
			if ctx.Err() != nil || client.IsClosed(err) {
				return nil
			}
			return err
		}
		line, err := json.Marshal(env)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
	}
}

func sendLines(in io.Reader, errOut io.Writer, c *client.Client) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		event, data, err := parseLine(line)
		if err != nil {
			fmt.Fprintln(errOut, err)
			continue
		}
		if err := c.Emit(event, data); err != nil {
			fmt.Fprintln(errOut, err)
			return
		}
	}
}

// parseLine splits "<event> [json]" into the event name and its decoded data
func parseLine(line string) (string, any, error) {
	event, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return event, nil, nil
	}
	var data any
	if err := json.Unmarshal([]byte(rest), &data); err != nil {
		return "", nil, fmt.Errorf("invalid data for %s: %w", event, err)
	}
	return event, data, nil
}
