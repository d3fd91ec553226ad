package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"unicode/utf8"

	"codesync/internal/client"
	"codesync/internal/config"
)

const help = `Commands:
  create          create a room and join it
  join <id>       join an existing room
  type <text>     insert text at the cursor (\n for newline)
  set <text>      replace the whole document
  cursor <n>      move the cursor
  accept          accept the pending suggestion
  show            print the document
  quit            leave the room and exit`

func main() {
	room := flag.String("room", "", "room ID or /room/{id} path to join on startup")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	api := client.NewAPIClient(cfg.BaseURL, &http.Client{Timeout: cfg.RequestTimeout})
	c := client.New(client.Options{
		WSBase:         cfg.WSURL,
		Language:       cfg.Language,
		DebounceDelay:  cfg.DebounceDelay,
		EchoWindow:     cfg.EchoWindow,
		RequestTimeout: cfg.RequestTimeout,
		Rooms:          api,
		Suggestions:    api,
	})
	c.Start()
	defer c.Shutdown()

	fmt.Printf("codesync client - user %s - server %s\n%s\n", client.UserID(), cfg.BaseURL, help)

	go render(c)

	if *room != "" {
		if !c.HandleDeepLink(*room) {
			c.JoinRoom(*room)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-quit:
			return
		case line, ok := <-lines:
			if !ok || !execute(c, line) {
				return
			}
		}
	}
}

// execute runs one command line; false means exit
func execute(c *client.Client, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.ReplaceAll(arg, `\n`, "\n")

	switch cmd {
	case "":
	case "create":
		if !c.CreateRoom() {
			fmt.Println("⚠️  Cannot create a room right now")
		}
	case "join":
		if !c.JoinRoom(strings.TrimSpace(arg)) {
			fmt.Println("⚠️  Cannot join right now")
		}
	case "type":
		if !c.Insert(arg) {
			fmt.Println("⚠️  Editing is disabled until connected")
		}
	case "set":
		if !c.Type(arg, utf8.RuneCountInString(arg)) {
			fmt.Println("⚠️  Editing is disabled until connected")
		}
	case "cursor":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			fmt.Println("⚠️  cursor needs a number")
			return true
		}
		c.SetCursor(n)
	case "accept":
		if !c.AcceptSuggestion() {
			fmt.Println("No suggestion pending")
		}
	case "show":
		show(c.Snapshot())
	case "quit", "exit":
		return false
	default:
		fmt.Println(help)
	}
	return true
}

// render prints the status line whenever it changes
func render(c *client.Client) {
	var last client.Snapshot
	for range c.Updates() {
		snap := c.Snapshot()
		if snap.Status != last.Status {
			fmt.Printf("[%s] %s\n", snap.State, snap.Status.Text)
		}
		if snap.Text != last.Text && snap.Status.Kind == client.StatusLiveUpdate {
			show(snap)
		}
		if snap.Suggestion != "" && snap.Suggestion != last.Suggestion {
			fmt.Printf("💡 %q (accept to insert)\n", snap.Suggestion)
		}
		if snap.Path != last.Path && snap.Path != "" {
			fmt.Printf("Share this room: %s\n", snap.Path)
		}
		last = snap
	}
}

func show(snap client.Snapshot) {
	fmt.Printf("--- %s (cursor %d) ---\n%s\n---\n", snap.RoomID, snap.Cursor, snap.Text)
}
