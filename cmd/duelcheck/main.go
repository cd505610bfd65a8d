package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/park285/cheese-duel/internal/duelclient"
	"github.com/park285/cheese-duel/pkg/duelproto"
	"github.com/spf13/cobra"
)

var (
	wsURL   string
	timeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "duelcheck",
		Short:         "Smoke-check a running duel server over its websocket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	def := os.Getenv("DUEL_WS_URL")
	if def == "" {
		def = "ws://localhost:8080/ws"
	}
	root.PersistentFlags().StringVar(&wsURL, "url", def, "websocket endpoint of the server")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "overall timeout")

	root.AddCommand(newCreateCmd(), newJoinCmd(), newSmokeCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCreateCmd() *cobra.Command {
	var name string
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its id and seat token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+watch)
			defer cancel()
			c, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient(c)
			printFrames(c)

			f, err := c.Request(ctx, duelproto.EventCreateGame, duelproto.CreateGame{SeatName: name}, duelproto.EventGameCreated)
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			var created duelproto.GameCreated
			if err := f.Decode(&created); err != nil {
				return err
			}
			fmt.Printf("session=%s seat=%s token=%s\n", created.SessionID, created.Seat, created.SeatToken)
			sleep(ctx, watch)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "seat name")
	cmd.Flags().DurationVar(&watch, "watch", 0, "keep the connection open and print frames for this long")
	return cmd
}

func newJoinCmd() *cobra.Command {
	var name string
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join an existing session as the second seat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+watch)
			defer cancel()
			c, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient(c)
			printFrames(c)

			f, err := c.Request(ctx, duelproto.EventJoinGame, duelproto.JoinGame{SessionID: args[0], SeatName: name}, duelproto.EventGameJoined)
			if err != nil {
				return fmt.Errorf("join: %w", err)
			}
			var joined duelproto.GameJoined
			if err := f.Decode(&joined); err != nil {
				return err
			}
			fmt.Printf("session=%s seat=%s token=%s opponent=%s\n", joined.SessionID, joined.Seat, joined.SeatToken, joined.OpponentName)
			sleep(ctx, watch)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "seat name")
	cmd.Flags().DurationVar(&watch, "watch", 0, "keep the connection open and print frames for this long")
	return cmd
}

// newSmokeCmd plays a short mating line between two seats and checks the result.
func newSmokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Create, join and play fool's mate end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			white, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient(white)
			black, err := dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient(black)

			f, err := white.Request(ctx, duelproto.EventCreateGame, duelproto.CreateGame{SeatName: "smoke-white"}, duelproto.EventGameCreated)
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			var created duelproto.GameCreated
			if err := f.Decode(&created); err != nil {
				return err
			}
			if _, err := black.Request(ctx, duelproto.EventJoinGame, duelproto.JoinGame{SessionID: created.SessionID, SeatName: "smoke-black"}, duelproto.EventGameJoined); err != nil {
				return fmt.Errorf("join: %w", err)
			}

			// white sees every broadcast, so it paces the line
			plies := make(chan duelproto.Frame, 8)
			white.OnFrame(func(f duelproto.Frame) {
				if f.Type == duelproto.EventGameMove || f.Type == duelproto.EventGameOver {
					plies <- f
				}
			})
			failures := make(chan duelproto.Error, 2)
			for _, c := range []*duelclient.Client{white, black} {
				c.OnFrame(func(f duelproto.Frame) {
					var e duelproto.Error
					if f.Type == duelproto.EventError && f.Decode(&e) == nil {
						select {
						case failures <- e:
						default:
						}
					}
				})
			}

			line := []duelproto.Move{{From: "f2", To: "f3"}, {From: "e7", To: "e5"}, {From: "g2", To: "g4"}, {From: "d8", To: "h4"}}
			var last duelproto.Frame
			for i, mv := range line {
				c := white
				if i%2 == 1 {
					c = black
				}
				if _, err := c.Send(ctx, duelproto.EventMakeMove, duelproto.MakeMove{SessionID: created.SessionID, Move: mv}); err != nil {
					return err
				}
				select {
				case last = <-plies:
				case e := <-failures:
					return fmt.Errorf("move %s%s: %w", mv.From, mv.To, e)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			select {
			case last = <-plies:
			case <-ctx.Done():
				return ctx.Err()
			}
			if last.Type != duelproto.EventGameOver {
				return fmt.Errorf("expected gameOver, got %s", last.Type)
			}
			var over duelproto.GameOver
			if err := last.Decode(&over); err != nil {
				return err
			}
			if over.Result.Kind != "checkmate" || over.Result.Winner != "black" {
				return fmt.Errorf("unexpected result %+v", over.Result)
			}
			fmt.Printf("ok session=%s result=%q\n", created.SessionID, over.Result.Text)

			_, _ = white.Send(ctx, duelproto.EventLeaveGame, duelproto.SessionRef{SessionID: created.SessionID})
			return nil
		},
	}
}

func dial(ctx context.Context) (*duelclient.Client, error) {
	c := duelclient.New(wsURL)
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}
	return c, nil
}

func closeClient(c *duelclient.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = c.Close(ctx)
}

func printFrames(c *duelclient.Client) {
	c.OnFrame(func(f duelproto.Frame) {
		fmt.Printf("<- %s %s\n", f.Type, string(f.Payload))
	})
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
