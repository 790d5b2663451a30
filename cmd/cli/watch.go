package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	watchTCP    string
	watchWS     bool
	watchPretty bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream master.composed events",
	Long: `Stream events from the TCP event server, reconnecting on disconnect.

With --ws the websocket endpoint on the API host is used instead.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTCP, "addr", "127.0.0.1:7070", "TCP event server address")
	watchCmd.Flags().BoolVar(&watchWS, "ws", false, "use the websocket endpoint on the API host")
	watchCmd.Flags().BoolVar(&watchPretty, "pretty", true, "pretty print JSON events")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for {
		var err error
		if watchWS {
			err = streamWS(ctx, out)
		} else {
			err = streamTCP(ctx, watchTCP, out)
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "disconnected: %v\n", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func streamTCP(ctx context.Context, addr string, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		printEvent(out, sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func streamWS(ctx context.Context, out io.Writer) error {
	endpoint, err := websocketURL(apiURL, "/ws")
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		printEvent(out, msg)
	}
}

func printEvent(out io.Writer, line []byte) {
	if !watchPretty {
		fmt.Fprintln(out, string(line))
		return
	}
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		// not JSON, print raw
		fmt.Fprintln(out, string(line))
		return
	}
	_ = printJSON(out, obj)
}
