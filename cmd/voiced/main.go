// Command voiced is the voice relay (spec §4.8): a standalone UDP server,
// sharing no state with the chat server beyond the voice_chat_<id> channel
// naming convention (spec §6).
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/usernameisnull/meridian/internal/voice"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: voiced <port>")
		os.Exit(2)
	}
	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		log.Fatalf("voiced: invalid port %q", os.Args[1])
	}

	relay, err := voice.New(port)
	if err != nil {
		log.Fatalf("voiced: %v", err)
	}
	log.Printf("voiced: listening on UDP port %d", port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("voiced: signal %s received, shutting down", s)
		relay.Close()
	}()

	relay.Run()
}
