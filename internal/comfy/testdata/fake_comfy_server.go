package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"
)

// Fake ComfyUI engine for subprocess tests. Accepts the listen flags the
// supervisor appends and fakes the three endpoints the daemon consumes.
func main() {
	var (
		listen       string
		port         string
		readyDelay   time.Duration
		die          bool
		promptID     string
		historyPolls int
		outputDir    string
	)
	flag.StringVar(&listen, "listen", "127.0.0.1", "listen host")
	flag.StringVar(&port, "port", "0", "listen port")
	flag.DurationVar(&readyDelay, "ready-delay", 0, "delay before /system_stats answers 200")
	flag.BoolVar(&die, "die", false, "exit immediately with stderr output")
	flag.StringVar(&promptID, "prompt-id", "fake-prompt", "prompt id returned by /prompt")
	flag.IntVar(&historyPolls, "history-polls", 0, "history polls before outputs appear")
	flag.StringVar(&outputDir, "output-dir", "", "write cat.png here when the job completes")
	flag.Parse()

	if die {
		fmt.Fprintln(os.Stderr, "fake engine: model load failed")
		os.Exit(3)
	}

	start := time.Now()
	var polls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		if time.Since(start) < readyDelay {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"system":{"os":"fake"}}`))
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"prompt_id":%q}`, promptID)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if int(polls.Add(1)) <= historyPolls {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		if outputDir != "" {
			_ = os.WriteFile(filepath.Join(outputDir, "cat.png"), []byte("png-bytes"), 0o644)
		}
		_, _ = fmt.Fprintf(w, `{%q:{"outputs":{"9":{"images":[{"filename":"cat.png"}]}}}}`, promptID)
	})

	srv := &http.Server{Addr: listen + ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
