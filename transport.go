package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	channelRecvBuf = 256
	channelSendBuf = 64
)

type frame struct {
	typ  int
	data []byte
}

// wsChannel carries peer packets over a relay connection that has already
// been paired. Binary frames are packets; text frames are relay notices.
type wsChannel struct {
	conn    *websocket.Conn
	recv    chan *Packet
	send    chan frame
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	reason  string
	dropped int
}

// NewWSChannel starts the read and write pumps on conn
func NewWSChannel(conn *websocket.Conn) *wsChannel {
	c := &wsChannel{
		conn: conn,
		recv: make(chan *Packet, channelRecvBuf),
		send: make(chan frame, channelSendBuf),
		done: make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c
}

func (c *wsChannel) Recv() <-chan *Packet  { return c.recv }
func (c *wsChannel) Done() <-chan struct{} { return c.done }

// Send encodes p now and queues the frame. A full queue drops the frame;
// the next snapshot supersedes it anyway.
func (c *wsChannel) Send(p *Packet) error {
	data, err := EncodePacket(p)
	if err != nil {
		return err
	}
	return c.enqueue(frame{typ: websocket.BinaryMessage, data: data})
}

// SendJSON queues a lobby message for the relay itself
func (c *wsChannel) SendJSON(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(frame{typ: websocket.TextMessage, data: data})
}

func (c *wsChannel) enqueue(f frame) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- f:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
	return nil
}

// Close shuts the channel down once; later calls are no-ops
func (c *wsChannel) Close() error {
	c.shutdown("closed")
	return nil
}

// Reason says why the channel ended
func (c *wsChannel) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *wsChannel) shutdown(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *wsChannel) readPump() {
	defer func() {
		c.shutdown("connection lost")
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("channel: read: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType == websocket.TextMessage {
			var env InEnvelope
			if json.Unmarshal(data, &env) == nil && env.T == MsgPeerLeft {
				c.shutdown("peer left")
				return
			}
			continue
		}

		p, err := DecodePacket(data)
		if err != nil {
			log.Printf("channel: %v", err)
			continue
		}
		select {
		case c.recv <- p:
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(f.typ, f.data); err != nil {
				c.shutdown("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown("ping failed")
				return
			}
		case <-c.done:
			// Flush what was queued before the close, such as a result report
			for {
				select {
				case f := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if c.conn.WriteMessage(f.typ, f.data) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// pipeEnd is one side of an in-process channel pair. Packets go through
// the wire codec so both ends see exactly what a socket would deliver.
type pipeEnd struct {
	in   chan *Packet
	peer *pipeEnd
	done chan struct{}
	once *sync.Once
}

// NewPipe returns two connected in-process channels
func NewPipe() (Channel, Channel) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeEnd{in: make(chan *Packet, channelRecvBuf), done: done, once: once}
	b := &pipeEnd{in: make(chan *Packet, channelRecvBuf), done: done, once: once}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeEnd) Send(pkt *Packet) error {
	select {
	case <-p.done:
		return ErrChannelClosed
	default:
	}
	data, err := EncodePacket(pkt)
	if err != nil {
		return err
	}
	out, err := DecodePacket(data)
	if err != nil {
		return err
	}
	select {
	case p.peer.in <- out:
	default:
	}
	return nil
}

func (p *pipeEnd) Recv() <-chan *Packet  { return p.in }
func (p *pipeEnd) Done() <-chan struct{} { return p.done }

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
