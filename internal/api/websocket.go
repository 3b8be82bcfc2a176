package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/blast-search-server/internal/domain"
	"github.com/blast-search-server/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is handled by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is one message on the search websocket. Progress frames stream
// while the search runs; exactly one result or error frame ends the stream.
type wsFrame struct {
	Type    string               `json:"type"`
	Stage   domain.ProgressStage `json:"stage,omitempty"`
	Detail  string               `json:"detail,omitempty"`
	Result  *domain.SearchResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
}

// wsObserver forwards pipeline progress onto the websocket connection. The
// orchestrator emits stages synchronously from the handler goroutine, so no
// write lock is needed.
type wsObserver struct {
	conn   *websocket.Conn
	logger *logrus.Logger
}

func (w *wsObserver) OnProgress(stage domain.ProgressStage, detail string) {
	frame := wsFrame{Type: "progress", Stage: stage, Detail: detail}
	if err := w.conn.WriteJSON(frame); err != nil {
		w.logger.WithError(err).Debug("Dropping progress frame, websocket write failed")
	}
}

// handleSearchWS runs one search per connection: the client sends a single
// search request frame, receives progress frames as the pipeline advances,
// then a result frame (or an error frame for pre-execution failures).
func (s *Server) handleSearchWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var body searchBody
	if err := conn.ReadJSON(&body); err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: "validation_error", Message: "invalid search request: " + err.Error()})
		return
	}

	observer := &wsObserver{conn: conn, logger: s.logger}
	result, err := s.search.Search(c.Request.Context(), body.Sequence, &body.SearchRequest, service.WithProgress(observer))
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: errorName(err), Message: err.Error()})
		return
	}

	if err := conn.WriteJSON(wsFrame{Type: "result", Result: result}); err != nil {
		s.logger.WithError(err).Warn("Failed to deliver search result over websocket")
		return
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
