package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net"

	"github.com/linkdata/rssl"
)

type echoTester struct {
	ch     *rssl.Channel
	failed int
}

func (e *echoTester) write(payloads ...[]byte) {
	var buf *rssl.Buffer
	var err error
	if len(payloads) == 1 {
		if buf, err = e.ch.GetBuffer(len(payloads[0]), false); err != nil {
			log.Fatal(err)
		}
		copy(buf.Data, payloads[0])
	} else {
		size := 0
		for _, p := range payloads {
			size += len(p) + 2
		}
		if buf, err = e.ch.GetBuffer(size, true); err != nil {
			log.Fatal(err)
		}
		for _, p := range payloads {
			buf.Data = buf.Data[:copy(buf.Data, p)]
			if buf, err = e.ch.PackBuffer(buf); err != nil {
				log.Fatal(err)
			}
		}
		buf.Data = buf.Data[:0]
	}
	if _, err = e.ch.Write(buf, &rssl.WriteInArgs{Priority: rssl.PriorityHigh}, nil); err != nil {
		log.Fatal(err)
	}
}

func (e *echoTester) expect(payload []byte) {
	for {
		data, _, err := e.ch.Read()
		if err != nil {
			log.Fatal(err)
		}
		if data == nil {
			continue
		}
		if !bytes.Equal(data, payload) {
			fmt.Printf("expect:\n[%d bytes]\nactual:\n[%d bytes]\n", len(payload), len(data))
			e.failed++
		}
		return
	}
}

func (e *echoTester) echo(payloads ...[]byte) {
	e.write(payloads...)
	for _, p := range payloads {
		e.expect(p)
	}
}

func main() {
	flagWebSocket := flag.Bool("websocket", false, "connect using WebSocket")
	flagCount := flag.Int("count", 1000, "number of small messages to echo")
	flag.Parse()

	args := flag.Args()

	if len(args) < 1 {
		log.Fatal("missing required argument: address:port of RSSL echo server")
	}
	host, port, err := net.SplitHostPort(args[0])
	if err != nil {
		log.Fatal(err)
	}

	if err = rssl.Initialize(rssl.LockGlobalAndChannel); err != nil {
		log.Fatal(err)
	}
	defer rssl.Uninitialize()

	opts := &rssl.ConnectOptions{
		ConnectionType: rssl.ConnTypeSocket,
		Address:        host,
		ServiceName:    port,
		Blocking:       true,
	}
	if *flagWebSocket {
		opts.ConnectionType = rssl.ConnTypeWebSocket
	}
	ch, err := rssl.Connect(opts)
	if err != nil {
		log.Fatal(err)
	}
	defer ch.Close()

	et := &echoTester{ch: ch}
	et.echo([]byte("hello"))
	et.echo([]byte("foo"), []byte("bar"), []byte("baz"))
	et.echo(bytes.Repeat([]byte("foobar! "), 8192))

	for n := 0; n < *flagCount; n++ {
		et.echo([]byte(fmt.Sprint("message ", n)))
	}

	if et.failed > 0 {
		log.Fatalf("%d echoes did not match", et.failed)
	}
	fmt.Printf("%d bytes written, %d bytes read\n", ch.BytesWritten(), ch.BytesRead())
}
