package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mahyar-osn/vis-tools/internal/metrics"
)

// writeTimeout bounds each individual SSE write.
const writeTimeout = 30 * time.Second

// client manages a single SSE connection's write operations.
type client struct {
	w       io.Writer
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v as JSON and sends it as an SSE "data:" message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := c.write(fmt.Sprintf("data: %s\n\n", data)); err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendKeepalive sends an SSE comment line (":\n\n") to keep the connection alive.
func (c *client) sendKeepalive() error {
	if err := c.write(":\n\n"); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	return nil
}

// write extends the deadline, writes msg and flushes.
func (c *client) write(msg string) error {
	if c.rc != nil {
		if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			c.logger.Debug("could not set write deadline", "error", err)
		}
	}

	n, err := io.WriteString(c.w, msg)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return nil
}
