package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"relaymesh/pkg/config"
	"relaymesh/pkg/controller"
)

func main() {
	socket := flag.String("socket", config.Default().Controller.Socket, "node controller socket (named pipe on Windows)")
	to := flag.String("to", "", "recipient node id")
	directive := flag.String("directive", "receptor:ping", "directive as namespace:action")
	payload := flag.String("payload", "", "directive payload")
	count := flag.Int("n", 1, "number of responses to wait for (0 waits until timeout)")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to wait for responses")
	raw := flag.Bool("json", false, "print responses as raw JSON")
	flag.Parse()

	if *to == "" {
		fatalf("-to is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c, err := controller.Dial(ctx, *socket)
	if err != nil {
		fatalf("dial %s: %v", *socket, err)
	}
	defer c.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(dl)
	}

	if err := c.Send(controller.Request{Recipient: *to, Directive: *directive, Payload: *payload}); err != nil {
		fatalf("send: %v", err)
	}

	failed := false
	for got := 0; *count == 0 || got < *count; got++ {
		resp, err := c.Recv()
		if err != nil {
			if *count == 0 && isTimeout(err) {
				break
			}
			fatalf("recv: %v", err)
		}
		if resp.Code != 0 {
			failed = true
		}
		if *raw {
			b, _ := json.Marshal(resp)
			fmt.Println(string(b))
			continue
		}
		fmt.Printf("%s <- %s code=%d serial=%d\n%s\n", resp.InResponseTo, resp.Sender, resp.Code, resp.Serial, resp.Payload)
	}
	if failed {
		os.Exit(2)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
