package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/tullo/messenger/config"
	"github.com/tullo/messenger/internal/client"
	"github.com/tullo/messenger/internal/models"
	"github.com/tullo/messenger/internal/notify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		log.Fatal("AUTH_TOKEN is required")
	}

	c, err := client.New(cfg, token, notify.LogNotifier{})
	if err != nil {
		log.Fatalf("Failed to build client: %v", err)
	}

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Disconnect()

	log.Printf("Connected as %s (%s)", c.Self().Username, c.Self().ID)

	// Disconnect cleanly on Ctrl-C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		c.Disconnect()
		os.Exit(0)
	}()

	repl(ctx, c)
}

func repl(ctx context.Context, c *client.Client) {
	fmt.Println("commands: list | open <n> | send <text> | older | messages | call <voice|video> | accept | reject | hangup | online | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg := line, ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch cmd {
		case "list":
			for i, conv := range c.Directory.List() {
				fmt.Printf("%2d. %s%s\n", i+1, title(conv, c.Self().ID), badge(conv))
			}

		case "open":
			n, err := strconv.Atoi(arg)
			convs := c.Directory.List()
			if err != nil || n < 1 || n > len(convs) {
				fmt.Println("usage: open <n> (see list)")
				continue
			}
			if err := c.OpenConversation(ctx, convs[n-1]); err != nil {
				log.Printf("open failed: %v", err)
				continue
			}
			printMessages(c)

		case "send":
			if arg == "" {
				fmt.Println("usage: send <text>")
				continue
			}
			if err := c.Timeline.Send(ctx, arg, models.MessageTypeText, ""); err != nil {
				log.Printf("send failed: %v", err)
			}

		case "older":
			if err := c.Timeline.LoadOlder(ctx); err != nil {
				log.Printf("load failed: %v", err)
				continue
			}
			printMessages(c)

		case "messages":
			printMessages(c)

		case "call":
			callType := models.CallTypeVoice
			if arg == models.CallTypeVideo {
				callType = models.CallTypeVideo
			}
			conv, ok := c.Directory.Get(c.Directory.ActiveID())
			if !ok {
				fmt.Println("open a conversation first")
				continue
			}
			if conv.IsGroup() {
				err := c.Calls.InitiateGroup(ctx, conv.ID, callType)
				if err != nil {
					log.Printf("call failed: %v", err)
				}
				continue
			}
			peer := conv.Peer(c.Self().ID)
			if peer == nil {
				fmt.Println("no peer in this conversation")
				continue
			}
			if err := c.Calls.Initiate(ctx, *peer, callType); err != nil {
				log.Printf("call failed: %v", err)
			}

		case "accept":
			if err := c.Calls.Accept(); err != nil {
				log.Printf("accept failed: %v", err)
			}

		case "reject":
			if err := c.Calls.Reject(); err != nil {
				log.Printf("reject failed: %v", err)
			}

		case "hangup":
			c.Calls.End(ctx)

		case "online":
			fmt.Printf("%d users online\n", c.Presence.OnlineCount())

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func title(conv models.Conversation, selfID string) string {
	if conv.IsGroup() {
		return conv.Name
	}
	if peer := conv.Peer(selfID); peer != nil {
		return peer.Username
	}
	return conv.ID
}

func badge(conv models.Conversation) string {
	if conv.UnreadCount == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d unread)", conv.UnreadCount)
}

func printMessages(c *client.Client) {
	msgs := c.Timeline.Messages()
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.Sender.Username, m.Content)
		ids = append(ids, m.ID)
	}
	c.Timeline.ScheduleRead(ids)
}
