package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// sseWriter writes Server-Sent Events frames. Headers go out with the first frame, so a
// handler can still answer with a plain JSON error until then.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func newSSE(c *gin.Context) *sseWriter {
	return &sseWriter{c: c}
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.c.Writer.WriteHeaderNow()
}

// send writes one frame. An empty event name sends a plain data frame.
func (s *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}
	s.start()
	w := s.c.Writer
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *sseWriter) close() {
	s.start()
	fmt.Fprint(s.c.Writer, "event: close\ndata: {}\n\n")
	s.c.Writer.Flush()
}
