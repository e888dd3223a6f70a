package rssl

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

// WebSocketPath is the HTTP path WebSocket servers upgrade on.
const WebSocketPath = "/WebSocket"

// WebSocket sub-protocols, selected by the Channel protocol type.
const (
	WebSocketProtocolRWF  = "rssl.rwf"
	WebSocketProtocolJSON = "rssl.json.v2"
)

// wsFrameConn carries one socket frame per binary WebSocket message.
type wsFrameConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (w *wsFrameConn) ReadFrame() ([]byte, error) {
	for {
		mt, p, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if len(p) < SocketFrameHeaderSize || SocketFrameHeader(p).Size() != len(p) {
			return nil, errors.WithStack(ErrFrameSize{Size: len(p)})
		}
		return p, nil
	}
}

func (w *wsFrameConn) WriteFrame(f []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, f)
}

func (w *wsFrameConn) Flush() error { return nil }

func (w *wsFrameConn) Buffered() int { return 0 }

func (w *wsFrameConn) SetBuffers(write bool, size int) error {
	tc, ok := w.conn.UnderlyingConn().(*net.TCPConn)
	if !ok {
		return nil
	}
	if write {
		return tc.SetWriteBuffer(size)
	}
	return tc.SetReadBuffer(size)
}

func (w *wsFrameConn) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

func (w *wsFrameConn) Close() error {
	w.wmu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.conn.Close()
}

func newWebSocketBackend() *socketBackend {
	return &socketBackend{connType: ConnTypeWebSocket, dial: dialWebSocket, listen: listenWebSocket}
}

func webSocketProtocol(protocolType uint8) string {
	if protocolType == ProtocolJSON {
		return WebSocketProtocolJSON
	}
	return WebSocketProtocolRWF
}

func dialWebSocket(opts *ConnectOptions) (frameConn, error) {
	addr := opts.Address
	if addr == "" {
		addr = "localhost"
	}
	d := websocket.Dialer{
		HandshakeTimeout: DefaultConnectTimeout,
		Subprotocols:     []string{webSocketProtocol(opts.ProtocolType)},
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(addr, opts.ServiceName), Path: WebSocketPath}
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsFrameConn{conn: conn}, nil
}

func listenWebSocket(ss *socketServer, opts *BindOptions) (net.Addr, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(opts.InterfaceName, opts.ServiceName))
	if err != nil {
		return nil, err
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: DefaultConnectTimeout,
		Subprotocols:     []string{webSocketProtocol(opts.ProtocolType)},
		CheckOrigin:      func(r *http.Request) bool { return true },
	}
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ss.recordError(err)
			return
		}
		ss.offer(&wsFrameConn{conn: conn})
	})
	hs := &http.Server{Handler: router}
	ss.closer = hs
	go func() {
		if err := hs.Serve(tcpKeepAliveListener{ln.(*net.TCPListener)}); err != nil && err != http.ErrServerClosed {
			ss.recordError(err)
		}
	}()
	return ln.Addr(), nil
}
