// Command chatd is the chat server front door (spec §4.9/§6): it accepts
// transport connections, parses the handshake, and hands off to a session.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/usernameisnull/meridian/internal/auth"
	"github.com/usernameisnull/meridian/internal/chatsession"
	"github.com/usernameisnull/meridian/internal/hub"
	"github.com/usernameisnull/meridian/internal/metrics"
	"github.com/usernameisnull/meridian/internal/router"
	"github.com/usernameisnull/meridian/internal/store"
)

// upgrader permits cross-origin upgrades; the desktop/web client this
// protocol serves isn't same-origin with the chat server.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	args := os.Args[1:]
	if len(args) != 5 {
		fmt.Fprintln(os.Stderr, "usage: chatd <address> <port> <doc_root> <threads> <db_path>")
		os.Exit(2)
	}
	address, port, docRoot, threadsArg, dbPath := args[0], args[1], args[2], args[3], args[4]

	threads, err := strconv.Atoi(threadsArg)
	if err != nil || threads <= 0 {
		log.Fatalf("chatd: invalid thread count %q", threadsArg)
	}
	// The original C++ server sizes a Boost.Asio io_context thread pool
	// with this argument (original_source/server/main.cpp); Go has no
	// equivalent pool to size directly, so it governs GOMAXPROCS instead.
	runtime.GOMAXPROCS(threads)

	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("chatd: opening store: %v", err)
	}
	defer db.Close()

	h := hub.New(db)
	r := router.New(h)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	mux.Handle("/", http.FileServer(http.Dir(docRoot)))
	mux.HandleFunc("/chat", func(w http.ResponseWriter, req *http.Request) {
		serveHandshake(w, req, db, h, r)
	})

	addr := address + ":" + port
	log.Printf("chatd: listening on %s, serving docs from %s, db %s, %d threads", addr, docRoot, dbPath, threads)
	log.Fatal(http.ListenAndServe(addr, handlers.CombinedLoggingHandler(os.Stdout, mux)))
}

func serveHandshake(w http.ResponseWriter, req *http.Request, db *store.Store, h *hub.Hub, r *router.Router) {
	uid, name, registered, err := auth.Resolve(db, req.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("chatd: upgrade failed: %v", err)
		return
	}

	sess := chatsession.New(ws, uid, name, r)
	h.Join(sess)

	if registered {
		r.BroadcastUserJoined(uid, name)
	}
	r.PrimeSession(sess)

	go sess.WritePump()
	sess.ReadLoop()
}
