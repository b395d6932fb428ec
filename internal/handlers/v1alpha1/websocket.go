package v1alpha1

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/maptoposter/poster-api/internal/events"
	"github.com/maptoposter/poster-api/internal/handlers/v1alpha1/mappers"
	"github.com/maptoposter/poster-api/internal/jobs"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// origins are enforced by the cors middleware
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// (GET /ws/jobs/{id}) pushes the job snapshot, then each update, until the job is terminal.
func (h *ServiceHandler) WatchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := zap.S().Named("job_watcher").With("job_id", id)

	// subscribe before reading the snapshot so no update falls in between
	sub := h.subscriber.Subscribe(id)
	defer sub.Close()

	job, err := h.posterSrv.Job(id)
	if err != nil {
		renderError(w, r, statusFor(err), err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the client
		logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := send(conn, job); err != nil {
		logger.Debugw("failed to send job snapshot", "error", err)
		return
	}
	if job.Status.Terminal() {
		closeNormal(conn, "job finished")
		return
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	stop := func() { closeOnce.Do(func() { close(done) }) }

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// clients never send anything useful, reading drives the pong handler and detects a close
	go func() {
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	last := job
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				logger.Debugw("failed to send ping", "error", err)
				return
			}
		case frame, ok := <-sub.C:
			if !ok {
				code, reason := endOfStream(sub)
				closeWith(conn, code, reason)
				return
			}
			next, err := decodeJob(frame)
			if err != nil {
				logger.Warnw("dropping undecodable job event", "error", err)
				continue
			}
			if !newer(last, next) {
				continue
			}
			if err := send(conn, next); err != nil {
				logger.Debugw("failed to send job update", "error", err)
				return
			}
			last = next
			if next.Status.Terminal() {
				closeNormal(conn, "job finished")
				return
			}
		}
	}
}

func send(conn *websocket.Conn, job jobs.Job) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(mappers.JobToApi(job))
}

func closeNormal(conn *websocket.Conn, reason string) {
	closeWith(conn, websocket.CloseNormalClosure, reason)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// endOfStream is the close frame sent once the hub ended the subscription.
func endOfStream(sub *events.Subscription) (int, string) {
	if sub.Dropped() {
		return websocket.CloseTryAgainLater, "subscriber too slow"
	}
	return websocket.CloseGoingAway, "server shutting down"
}

func decodeJob(frame []byte) (jobs.Job, error) {
	var e cloudevents.Event
	if err := json.Unmarshal(frame, &e); err != nil {
		return jobs.Job{}, err
	}
	var job jobs.Job
	if err := e.DataAs(&job); err != nil {
		return jobs.Job{}, err
	}
	return job, nil
}

// newer drops events already covered by the snapshot sent before them.
func newer(last, next jobs.Job) bool {
	if next.Status != last.Status {
		return last.Status.CanTransitionTo(next.Status)
	}
	return next.Progress > last.Progress
}
