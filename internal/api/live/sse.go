package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// sseStream writes envelopes as Server-Sent Events. Every envelope gets a
// monotonically increasing id so clients can spot gaps after a reconnect.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     uint64
}

// newSSEStream sets the event-stream headers, sends 200 and the reconnect
// hint.
func newSSEStream(w http.ResponseWriter, flusher http.Flusher, retry time.Duration) (*sseStream, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &sseStream{w: w, flusher: flusher}
	return s, s.write("retry: " + strconv.FormatInt(retry.Milliseconds(), 10) + "\n\n")
}

func (s *sseStream) envelope(env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.seq++
	return s.write(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", s.seq, env.Type, data))
}

// closing tells the client why the server ends the stream.
func (s *sseStream) closing(reason string) error {
	return s.write(fmt.Sprintf("event: close\ndata: {\"reason\":%q}\n\n", reason))
}

// heartbeat is a comment line; EventSource clients ignore it.
func (s *sseStream) heartbeat(t time.Time) error {
	return s.write(": heartbeat " + t.UTC().Format(time.RFC3339) + "\n\n")
}

func (s *sseStream) write(frame string) error {
	if _, err := s.w.Write([]byte(frame)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
