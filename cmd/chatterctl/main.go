package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := newClient(session.SocketPath(sessionName))

	switch args[0] {
	case "status":
		c.get("/v1/status", *jsonFlag, printStatus)
	case "sync":
		c.post("/v1/sync", nil, *jsonFlag, func(m map[string]any) {
			fmt.Println("sync requested")
		})
	case "chats":
		c.get("/v1/chats", *jsonFlag, printChats)
	case "messages":
		if len(args) < 2 {
			fail("usage: chatterctl messages <chat-id>")
		}
		c.get("/v1/chats/"+args[1]+"/messages", *jsonFlag, printMessages)
	case "send":
		if len(args) < 3 {
			fail("usage: chatterctl send <chat-id> <text...>")
		}
		body := map[string]string{"body": strings.Join(args[2:], " ")}
		c.post("/v1/chats/"+args[1]+"/messages", body, *jsonFlag, func(m map[string]any) {
			fmt.Printf("queued %v\n", m["client_msg_id"])
		})
	case "search":
		if len(args) < 2 {
			fail("usage: chatterctl search <query>")
		}
		c.get("/v1/search?q="+args[1], *jsonFlag, printSearch)
	case "friends":
		if len(args) == 1 {
			c.get("/v1/friends", *jsonFlag, printFriends)
			break
		}
		switch args[1] {
		case "add":
			if len(args) < 3 {
				fail("usage: chatterctl friends add <user-id>")
			}
			c.post("/v1/friends", map[string]string{"friend_id": args[2]}, *jsonFlag, func(m map[string]any) {
				fmt.Printf("request sent to %v (%v)\n", m["friend_id"], m["status"])
			})
		case "accept", "decline", "block":
			if len(args) < 3 {
				fail("usage: chatterctl friends %s <user-id>", args[1])
			}
			status := map[string]string{"accept": "accepted", "decline": "declined", "block": "blocked"}[args[1]]
			c.post("/v1/friends/"+args[2]+"/respond", map[string]string{"status": status}, *jsonFlag, func(m map[string]any) {
				fmt.Printf("%v: %v\n", m["peer_id"], m["status"])
			})
		default:
			fail("usage: chatterctl friends [add|accept|decline|block] <user-id>")
		}
	case "stories":
		if len(args) >= 2 && args[1] == "view" {
			if len(args) < 3 {
				fail("usage: chatterctl stories view <story-id>")
			}
			c.post("/v1/stories/"+args[2]+"/view", nil, *jsonFlag, func(m map[string]any) {
				fmt.Printf("viewed %v\n", m["story_id"])
			})
			break
		}
		c.get("/v1/stories", *jsonFlag, printStories)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatterctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                      Show daemon status")
	fmt.Fprintln(os.Stderr, "  sync                        Request a full chat refetch")
	fmt.Fprintln(os.Stderr, "  chats                       List chats")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>          List messages in a chat")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text...>    Queue a message")
	fmt.Fprintln(os.Stderr, "  search <query>              Search cached messages")
	fmt.Fprintln(os.Stderr, "  friends [add|accept|decline|block] [user-id]")
	fmt.Fprintln(os.Stderr, "  stories [view <story-id>]   List or view stories")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// client talks HTTP to the daemon over its Unix socket.
type client struct {
	hc *http.Client
}

func newClient(socketPath string) *client {
	return &client{hc: &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 10 * time.Second,
	}}
}

func (c *client) get(path string, raw bool, render func(map[string]any)) {
	c.do(http.MethodGet, path, nil, raw, render)
}

func (c *client) post(path string, body any, raw bool, render func(map[string]any)) {
	c.do(http.MethodPost, path, body, raw, render)
}

func (c *client) do(method, path string, body any, raw bool, render func(map[string]any)) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, "http://daemon"+path, &buf)
	if err != nil {
		fail("%v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		fail("cannot reach daemon (is chatterd running?): %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fail("%v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		fail("malformed response: %v", err)
	}
	if resp.StatusCode >= 400 {
		fail("%v", m["error"])
	}
	if raw {
		fmt.Println(string(bytes.TrimSpace(data)))
		return
	}
	render(m)
}

func printStatus(m map[string]any) {
	fmt.Printf("Session:  %v\n", m["session"])
	fmt.Printf("User:     %v\n", m["user_id"])
	fmt.Printf("Status:   %v\n", m["status"])
	fmt.Printf("Uptime:   %vms\n", m["uptime_ms"])
	fmt.Printf("Chats:    %v\n", m["chat_count"])
	fmt.Printf("Messages: %v\n", m["message_count"])
	if v, ok := m["token_expires_at"].(float64); ok && v > 0 {
		fmt.Printf("Token:    expires %s\n", time.UnixMilli(int64(v)).Format(time.RFC3339))
	}
}

func printChats(m map[string]any) {
	chats, _ := m["chats"].([]any)
	if len(chats) == 0 {
		fmt.Println("no chats")
		return
	}
	for _, raw := range chats {
		c, _ := raw.(map[string]any)
		pin := " "
		if b, _ := c["is_pinned"].(bool); b {
			pin = "*"
		}
		name := c["peer_name"]
		if name == nil || name == "" {
			name = c["peer_id"]
		}
		fmt.Printf("%s %-24v %4v unread  %v\n", pin, name, c["unread_count"], c["last_message_preview"])
	}
}

func printMessages(m map[string]any) {
	msgs, _ := m["messages"].([]any)
	for _, raw := range msgs {
		msg, _ := raw.(map[string]any)
		ts, _ := msg["timestamp"].(float64)
		when := time.UnixMilli(int64(ts)).Format("15:04")
		who := "them"
		if b, _ := msg["from_me"].(bool); b {
			who = "me"
		}
		suffix := ""
		if s, _ := msg["status"].(string); s != "" {
			suffix = " [" + s + "]"
		}
		fmt.Printf("%s %-4s %v%s\n", when, who, msg["body"], suffix)
	}
}

func printSearch(m map[string]any) {
	results, _ := m["results"].([]any)
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, raw := range results {
		r, _ := raw.(map[string]any)
		msg, _ := r["message"].(map[string]any)
		fmt.Printf("%v  %v\n", msg["chat_id"], r["snippet"])
	}
}

func printFriends(m map[string]any) {
	friends, _ := m["friends"].([]any)
	if len(friends) == 0 {
		fmt.Println("no friends")
		return
	}
	for _, raw := range friends {
		f, _ := raw.(map[string]any)
		dir := "incoming"
		if b, _ := f["outgoing"].(bool); b {
			dir = "outgoing"
		}
		fmt.Printf("%-24v %-10v %s\n", f["peer_id"], f["status"], dir)
	}
}

func printStories(m map[string]any) {
	stories, _ := m["stories"].([]any)
	if len(stories) == 0 {
		fmt.Println("no active stories")
		return
	}
	for _, raw := range stories {
		s, _ := raw.(map[string]any)
		exp, _ := s["expires_at"].(float64)
		left := time.Until(time.UnixMilli(int64(exp))).Round(time.Minute)
		fmt.Printf("%v  by %v  %v viewers  expires in %v\n", s["story_id"], s["user_id"], s["viewer_count"], left)
	}
}
