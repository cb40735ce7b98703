// The feedtap binary joins a handler's output group and pretty-prints
// what it hears: quotes, trades, and book snapshots in either envelope
// format.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/feedhandler/internal/transport"
)

func main() {
	format := flag.String("format", "itch", "output format on the group: itch | mdp")
	group := flag.String("group", "", "multicast group (default by format)")
	port := flag.Int("port", 0, "port (default by format)")
	iface := flag.String("interface", "0.0.0.0", "interface address")
	flag.Parse()

	switch *format {
	case "itch":
		if *group == "" {
			*group = "239.1.1.2"
		}
		if *port == 0 {
			*port = 30002
		}
	case "mdp":
		if *group == "" {
			*group = "239.2.1.3"
		}
		if *port == 0 {
			*port = 40003
		}
	default:
		log.Printf("unknown format %q", *format)
		os.Exit(1)
	}

	receiver, err := transport.NewReceiver(*group, *port, *iface, 65536)
	if err != nil {
		log.Printf("failed to join %s:%d: %v", *group, *port, err)
		os.Exit(1)
	}
	defer receiver.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("listening on %s:%d (%s)\n", *group, *port, *format)

	buf := make([]byte, 65536)
	for ctx.Err() == nil {
		n, err := receiver.ReadPacket(buf, 100*time.Millisecond)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if ctx.Err() == nil {
				log.Printf("receive error: %v", err)
			}
			continue
		}

		var out string
		if *format == "itch" {
			out = formatEnvelope(buf[:n])
		} else {
			out = formatSBE(buf[:n])
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}
