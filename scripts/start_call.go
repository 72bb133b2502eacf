package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type snapshot struct {
	Status     string `json:"status"`
	Duration   string `json:"duration"`
	Language   string `json:"language"`
	JoinURL    string `json:"joinUrl"`
	Transcript []struct {
		Speaker   string `json:"speaker"`
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
	} `json:"transcript"`
}

type message struct {
	Type     string    `json:"type"`
	Snapshot *snapshot `json:"snapshot,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func main() {
	addr := flag.String("addr", "http://localhost:3000", "base URL of a running univoice serve")
	path := flag.String("ws_path", "/ws", "")
	hangup := flag.Duration("hangup_after", 0, "end the call after this long in calling (0 waits for the assistant)")
	deny := flag.Bool("deny_microphone", false, "answer the microphone request with a denial")
	flag.Parse()

	u, err := url.Parse(*addr)
	if err != nil {
		fmt.Println("addr error:", err)
		os.Exit(1)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = *path

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Println("dial error:", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.WriteJSON(message{Type: "start"}); err != nil {
		fmt.Println("start error:", err)
		os.Exit(1)
	}

	var (
		printed  int
		started  bool
		hangupAt <-chan time.Time
	)
	reads := make(chan message)
	go func() {
		defer close(reads)
		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			reads <- msg
		}
	}()

	for {
		select {
		case <-hangupAt:
			hangupAt = nil
			_ = conn.WriteJSON(message{Type: "stop"})
		case msg, ok := <-reads:
			if !ok {
				fmt.Println("connection closed")
				os.Exit(1)
			}
			switch msg.Type {
			case "microphone_request":
				reply := map[string]any{"type": "microphone", "granted": !*deny}
				if *deny {
					reply["error"] = "NotAllowedError"
				}
				_ = conn.WriteJSON(reply)
			case "error":
				fmt.Printf("error: %s (%s)\n", msg.Message, msg.Reason)
				os.Exit(1)
			case "snapshot":
				snap := msg.Snapshot
				if snap == nil {
					continue
				}
				for ; printed < len(snap.Transcript); printed++ {
					e := snap.Transcript[printed]
					fmt.Printf("[%s] %s: %s\n", e.Timestamp, e.Speaker, e.Text)
				}
				switch snap.Status {
				case "calling":
					if !started {
						started = true
						fmt.Printf("call started (language %s)\n", snap.Language)
						if *hangup > 0 {
							hangupAt = time.After(*hangup)
						}
					}
				case "ended":
					fmt.Printf("call ended after %s\n", snap.Duration)
					return
				case "idle":
					if started {
						fmt.Println("call failed")
						os.Exit(1)
					}
				}
			}
		}
	}
}
