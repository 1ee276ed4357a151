// Command walogd wires a *wal.WAL into the admin HTTP surface exposed by
// internal/server, the way the teacher's cmd wires a *server.HTTPServer:
// open the resource, hand it to the server, serve until it dies.
package main

import (
	"flag"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ivostoyanov/segwal"
	"github.com/ivostoyanov/segwal/internal/server"
)

func main() {
	addr := flag.String("addr", ":8080", "address to listen on")
	dir := flag.String("dir", "data", "directory holding the segment files")
	loadAll := flag.Bool("load-all-segments", false, "decode every resident segment on open, not just the active one")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	w, err := wal.Open(*dir, wal.WithLogger(logger), wal.WithLoadAllSegments(*loadAll))
	if err != nil {
		level.Error(logger).Log("msg", "failed to open wal", "dir", *dir, "err", err)
		os.Exit(1)
	}
	defer w.Close()

	srv := server.NewHTTPServer(*addr, w)
	level.Info(logger).Log("msg", "walogd listening", "addr", *addr, "dir", *dir)
	if err := srv.ListenAndServe(); err != nil {
		level.Error(logger).Log("msg", "server exited", "err", err)
		os.Exit(1)
	}
}
