package fakebackend

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
)

const (
	// Time allowed to write a frame to the client
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the client
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait
	pingPeriod = 54 * time.Second

	// Frames queued per client before new ones are dropped
	sendBuffer = 256
)

// client is one push channel subscriber
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Websocket upgrade failed", logger.FieldError, err)
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(2)
	s.mu.Unlock()

	s.logger.Infow("Push client connected", "client_id", c.id, logger.FieldAddress, r.RemoteAddr)

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards inbound frames and unregisters the client when the
// connection ends
func (s *Server) readPump(c *client) {
	defer func() {
		defer s.wg.Done()
		s.mu.Lock()
		if _, ok := s.clients[c]; ok {
			delete(s.clients, c)
			close(c.send)
		}
		s.mu.Unlock()
		c.conn.Close()
		s.logger.Infow("Push client disconnected", "client_id", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debugw("Push client read error", "client_id", c.id, logger.FieldError, err)
			}
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		s.wg.Done()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debugw("Push write error", "client_id", c.id, logger.FieldError, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// publishLocked broadcasts m to every client. Caller holds s.mu, which
// keeps frames for one job in order.
func (s *Server) publishLocked(m job.Message) {
	frame, err := job.Encode(m)
	if err != nil {
		s.logger.Errorw("Failed to encode push message", logger.FieldError, err)
		return
	}
	s.broadcastLocked(frame, m.JobID())
}

// publishRawLocked broadcasts a status_change using a backend-specific
// status spelling such as "done_parsing" or "cancelled".
func (s *Server) publishRawLocked(id, status string, f job.Fields) {
	payload := map[string]interface{}{"uuid": id, "status": status}
	for key, v := range map[string]*string{"title": f.Title, "h1": f.Heading, "image_src": f.ImageSource, "image_path": f.ImagePath, "error": f.Error} {
		if v != nil {
			payload[key] = *v
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Errorw("Failed to encode push payload", logger.FieldError, err)
		return
	}
	frame, err := json.Marshal(job.Envelope{Message: job.KindStatusChange, Payload: raw})
	if err != nil {
		s.logger.Errorw("Failed to encode push frame", logger.FieldError, err)
		return
	}
	s.broadcastLocked(frame, id)
}

func (s *Server) broadcastLocked(frame []byte, id string) {
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			s.logger.Warnw("Client send channel full, dropping push frame",
				"client_id", c.id,
				logger.FieldJobID, id,
			)
		}
	}
}
