package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/linkdata/rssl"
	"github.com/pkg/profile"
)

var (
	flagGroup     = flag.String("group", "239.100.1.1", "multicast group address")
	flagService   = flag.String("service", "30001", "multicast port")
	flagInterface = flag.String("interface", "", "interface name or address to join on")
	flagSend      = flag.Duration("send", 0, "send a message at this interval instead of only receiving")
	flagSize      = flag.Int("size", 100, "size of sent messages")
	flagInstance  = flag.Uint("instance", 1, "instance ID to send with")
	flagHTTP      = flag.String("http", "", "serve statistics on this address")
	flagConfig    = flag.String("config", "", "YAML config file, overrides the connection flags")
	flagProfile   = flag.Bool("profile", false, "write a CPU profile")
	flagNetLog    = flag.Bool("netlog", false, "log network activity")
	flagTrace     = flag.String("trace", "", "write XML traces to files starting with this name")
	stopChannel   = make(chan os.Signal, 1)
)

type stats struct {
	Messages   int64  `json:"messages"`
	Pings      int64  `json:"pings"`
	Bytes      int64  `json:"bytes"`
	Sent       int64  `json:"sent"`
	LastSeqNum uint32 `json:"lastseqnum"`
	LastNode   string `json:"lastnode"`
}

var current atomic.Value // stats

func serveStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st, _ := current.Load().(stats)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func serveHome(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "rsslmcast %s:%s\n", *flagGroup, *flagService)
}

func send(ch *rssl.Channel, payload []byte) error {
	buf, err := ch.GetBuffer(len(payload), false)
	if err != nil {
		return err
	}
	copy(buf.Data, payload)
	for {
		ret, err := ch.Write(buf, nil, nil)
		if err != nil {
			rssl.ReleaseBuffer(buf)
			return err
		}
		if ret != rssl.RetWriteCallAgain {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func run(ch *rssl.Channel) {
	var st stats
	var sendTick <-chan time.Time
	if *flagSend > 0 {
		sendTick = time.Tick(*flagSend)
	}
	payload := make([]byte, *flagSize)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	statsTick := time.Tick(time.Second)
	last := st
	var out rssl.ReadOutArgs
	for {
		select {
		case <-stopChannel:
			return
		case <-sendTick:
			if err := send(ch, payload); err != nil {
				log.Print("send: ", err)
				return
			}
			st.Sent++
		case <-statsTick:
			if st != last {
				log.Printf("stats: Messages=%d Pings=%d Bytes=%d Sent=%d", st.Messages, st.Pings, st.Bytes, st.Sent)
				last = st
			}
		default:
		}
		data, ret, err := ch.ReadEx(&out)
		if err != nil {
			log.Print("read: ", err)
			if ch.State() == rssl.StateClosed {
				return
			}
			continue
		}
		switch {
		case ret == rssl.RetReadPing:
			st.Pings++
		case data != nil:
			st.Messages++
			st.Bytes += int64(len(data))
			st.LastSeqNum = out.SeqNum
			st.LastNode = fmt.Sprintf("%v/%d", out.NodeID, out.InstanceID)
		case ret == rssl.RetReadWouldBlock:
			time.Sleep(time.Millisecond)
		}
		current.Store(st)
	}
}

func main() {
	flag.Parse()

	if *flagProfile {
		defer profile.Start().Stop()
	}

	cfg := &rssl.Config{
		Init: rssl.InitOptions{Locking: rssl.LockGlobalAndChannel, NetLog: *flagNetLog},
		Connect: rssl.ConnectOptions{
			ConnectionType: rssl.ConnTypeSeqMcast,
			Address:        *flagGroup,
			ServiceName:    *flagService,
			InterfaceName:  *flagInterface,
			SeqMcast:       rssl.SeqMcastOptions{InstanceID: uint16(*flagInstance)},
		},
	}
	if *flagConfig != "" {
		var err error
		if cfg, err = rssl.LoadConfigFile(*flagConfig); err != nil {
			log.Fatal(err)
		}
	}
	if *flagTrace != "" {
		cfg.Trace = rssl.TraceOptions{
			Flags:       rssl.TraceRead | rssl.TraceWrite | rssl.TraceToFile | rssl.TraceToMultipleFiles,
			FileName:    *flagTrace,
			MaxFileSize: 1 << 24,
		}
	}

	if err := rssl.InitializeEx(cfg.Init); err != nil {
		log.Fatal(err)
	}
	defer rssl.Uninitialize()

	ch, err := rssl.Connect(&cfg.Connect)
	if err != nil {
		log.Fatal(err)
	}
	defer ch.Close()
	if cfg.Trace.Flags != 0 {
		if err = ch.Ioctl(rssl.IoctlTrace, &cfg.Trace); err != nil {
			log.Fatal(err)
		}
	}

	if *flagHTTP != "" {
		router := httprouter.New()
		router.GET("/", serveHome)
		router.GET("/stats", serveStats)
		go func() {
			log.Print("starting HTTP statistics listener on ", *flagHTTP)
			log.Fatal(http.ListenAndServe(*flagHTTP, router))
		}()
	}

	signal.Notify(stopChannel, os.Interrupt)
	log.Print("listening ", ch)
	run(ch)
}
