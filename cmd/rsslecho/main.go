package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/linkdata/rssl"
)

var (
	flagService   = flag.String("service", "14002", "the port to listen on")
	flagInterface = flag.String("interface", "", "the interface to listen on")
	flagWebSocket = flag.Bool("websocket", false, "accept WebSocket connections instead of plain sockets")
	flagConfig    = flag.String("config", "", "YAML config file, overrides the other flags")
	flagNetLog    = flag.Bool("netlog", false, "log network activity")
	flagPrintPort = flag.Bool("printport", false, "print the listen port on stdout")
	flagStats     = flag.Bool("stats", false, "log throughput every second")
	messages      int64
)

func echo(ch *rssl.Channel) {
	defer ch.Close()
	for ch.State() == rssl.StateInitializing {
		if _, err := ch.InitChannel(); err != nil {
			log.Print(ch, " ", err)
			return
		}
	}
	for {
		data, _, err := ch.Read()
		if err != nil {
			if ch.State() != rssl.StateClosed {
				log.Print(ch, " ", err)
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		buf, err := ch.GetBuffer(len(data), false)
		if err != nil {
			log.Print(ch, " ", err)
			return
		}
		copy(buf.Data, data)
		if _, err = ch.Write(buf, nil, nil); err != nil {
			rssl.ReleaseBuffer(buf)
			log.Print(ch, " ", err)
			return
		}
		atomic.AddInt64(&messages, 1)
	}
}

func logStats(srv *rssl.Server) {
	last := atomic.LoadInt64(&messages)
	for range time.Tick(time.Second) {
		curr := atomic.LoadInt64(&messages)
		if curr != last {
			info, _ := srv.Info()
			log.Printf("stats: Channels=%d MPS=%d Buffers=%d Peak=%d",
				srv.ActiveChannels(), curr-last, info.CurrentBufferUsage, info.PeakBufferUsage)
			last = curr
		}
	}
}

func main() {
	flag.Parse()

	cfg := &rssl.Config{
		Init: rssl.InitOptions{Locking: rssl.LockGlobalAndChannel, NetLog: *flagNetLog},
		Bind: rssl.BindOptions{
			ConnectionType:   rssl.ConnTypeSocket,
			ServiceName:      *flagService,
			InterfaceName:    *flagInterface,
			ServerBlocking:   true,
			ChannelsBlocking: true,
		},
	}
	if *flagWebSocket {
		cfg.Bind.ConnectionType = rssl.ConnTypeWebSocket
	}
	if *flagConfig != "" {
		var err error
		if cfg, err = rssl.LoadConfigFile(*flagConfig); err != nil {
			log.Fatal(err)
		}
	}

	if err := rssl.InitializeEx(cfg.Init); err != nil {
		log.Fatal(err)
	}
	defer rssl.Uninitialize()

	srv, err := rssl.Bind(&cfg.Bind)
	if err != nil {
		log.Fatal(err)
	}
	defer srv.Close()

	if *flagPrintPort {
		fmt.Fprintf(os.Stdout, "%d\n", srv.PortNumber)
	}
	if *flagStats {
		go logStats(srv)
	}

	log.Print("echo server listening ", srv)
	for {
		ch, err := srv.Accept(nil)
		if err != nil {
			log.Fatal(err)
		}
		go echo(ch)
	}
}
