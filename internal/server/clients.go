package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Messages of the reload protocol.
const (
	msgEstablished = "established"
	msgPing        = "ping"
	msgReload      = "reload"
)

// Time allowed to write a message to a websocket peer.
const writeWait = 10 * time.Second

var errClientClosed = errors.New("client closed")

// client is one open reload connection.
type client interface {
	send(message string) error
	close()
	done() <-chan struct{}
}

// streamClient writes raw messages to a chunked HTTP response.
type streamClient struct {
	mutex      sync.Mutex
	w          http.ResponseWriter
	controller *http.ResponseController
	closed     chan struct{}
	once       sync.Once
}

func newStreamClient(w http.ResponseWriter) *streamClient {
	return &streamClient{
		w:          w,
		controller: http.NewResponseController(w),
		closed:     make(chan struct{}),
	}
}

func (c *streamClient) send(message string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	select {
	case <-c.closed:
		return errClientClosed
	default:
	}

	if _, err := c.w.Write([]byte(message)); err != nil {
		return err
	}

	return c.controller.Flush()
}

func (c *streamClient) close() {
	c.once.Do(func() {
		// Wait for an in-flight write; the handler returns once closed is
		// closed and the ResponseWriter must not be used after that.
		c.mutex.Lock()
		close(c.closed)
		c.mutex.Unlock()
	})
}

func (c *streamClient) done() <-chan struct{} {
	return c.closed
}

// socketClient carries the same messages as websocket text frames.
type socketClient struct {
	conn   *websocket.Conn
	closed chan struct{}
	once   sync.Once
}

func newSocketClient(conn *websocket.Conn) *socketClient {
	return &socketClient{
		conn:   conn,
		closed: make(chan struct{}),
	}
}

func (c *socketClient) send(message string) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	return c.conn.Write(ctx, websocket.MessageText, []byte(message))
}

func (c *socketClient) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close(websocket.StatusGoingAway, "server closing")
	})
}

func (c *socketClient) done() <-chan struct{} {
	return c.closed
}
