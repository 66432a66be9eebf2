package common

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrepareSSE sets the SSE response headers and returns the writer plus
// its flusher (nil when the writer can't flush, e.g. in tests).
func PrepareSSE(c *gin.Context) (io.Writer, http.Flusher) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	fl, _ := c.Writer.(http.Flusher)
	return c.Writer, fl
}

// StreamSSE copies an already-translated SSE stream to the client,
// flushing after every read. If the client disconnects, closing r (when
// it implements io.Closer, as the pipeline's stream responses do)
// unblocks the goroutine feeding it and releases the upstream connection
// within about one read cycle.
func StreamSSE(c *gin.Context, r io.Reader) {
	w, fl := PrepareSSE(c)

	done := make(chan struct{})
	defer close(done)
	if closer, ok := r.(io.Closer); ok {
		go func() {
			select {
			case <-c.Request.Context().Done():
				closer.Close()
			case <-done:
			}
		}()
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
			if fl != nil {
				fl.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
