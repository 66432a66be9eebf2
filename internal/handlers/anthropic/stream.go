package anthropic

import (
	"io"

	common "github.com/relaymux/relaymux/internal/handlers/common"
	"github.com/gin-gonic/gin"
)

// writeStream relays the pipeline's translated Anthropic event stream,
// with client-disconnect cancellation handled by the shared SSE copier.
func writeStream(c *gin.Context, r io.Reader) {
	common.StreamSSE(c, r)
}
