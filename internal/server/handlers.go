package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
	"github.com/wayfarerhq/wayfarer/internal/executor"
	"github.com/wayfarerhq/wayfarer/internal/httputil"
	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/realtime"
	"github.com/wayfarerhq/wayfarer/internal/scheduler"
	"github.com/wayfarerhq/wayfarer/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalhostOrigin(origin)
	},
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, map[string]any{"status": "ok", "time": time.Now().Unix()})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response      string `json:"response"`
	HistoryLength int    `json:"history_length"`
}

// handleChat runs one interactive turn and reports the result once complete.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.Message == "" {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "message required")
		return
	}

	// A dropped request must not abort the turn; it runs to completion and
	// only the delivery of this response fails.
	response, err := s.runTurn(context.WithoutCancel(r.Context()), req.Message)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}

	length, err := s.sessions.MessageCount(session.InteractiveKey)
	if err != nil {
		logging.Errorf("server: count history: %v", err)
	}

	httputil.OkJSON(w, chatResponse{Response: response, HistoryLength: length})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.resetConversation(); err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := s.sessions.GetMessages(session.InteractiveKey, 0)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}
	httputil.OkJSON(w, map[string]any{"messages": messages})
}

// handleConfig reports the non-secret configuration.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, s.cfg.Public())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.catalog.Models(r.Context())
	if models == nil {
		models = []ai.ModelInfo{}
	}
	httputil.OkJSON(w, map[string]any{
		"provider": s.cfg.Provider,
		"models":   models,
	})
}

// jobView is a job plus its live scheduling state.
type jobView struct {
	scheduler.Job
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		view := jobView{Job: job}
		if next := s.engine.NextRun(job.ID); !next.IsZero() {
			view.NextRun = &next
		}
		views = append(views, view)
	}
	httputil.OkJSON(w, map[string]any{"jobs": views})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var job scheduler.Job
	if err := httputil.Parse(r, &job); err != nil {
		httputil.Error(w, err)
		return
	}
	if job.Task == "" {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "task required")
		return
	}
	if err := s.engine.AddJob(&job); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathVar(r, "id")
	if err := s.engine.RemoveJob(id); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.OkJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathVar(r, "id")
	if err := s.engine.PauseJob(id); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.OkJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathVar(r, "id")
	if err := s.engine.ResumeJob(id); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.OkJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathVar(r, "id")
	limit := httputil.QueryInt(r, "limit", 50)

	execs, err := s.jobs.ListExecutions(id, limit)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if execs == nil {
		execs = []scheduler.Execution{}
	}
	httputil.OkJSON(w, map[string]any{"executions": execs})
}

// handleWS upgrades the connection and hands it to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("server: websocket upgrade: %v", err)
		return
	}
	realtime.ServeWS(s.hub, conn)
}

// handleWSChat runs an interactive turn for a socket client. The thinking,
// tool, and response events reach every client through the hub; only an
// error is reported privately to the initiator.
func (s *Server) handleWSChat(c *realtime.Client, msg *realtime.InboundMessage) {
	if msg.Message == "" {
		return
	}
	// Off the read loop, so ping/pong keepalive continues during long turns.
	// Serialization against other turns comes from the main lane.
	go func() {
		if _, err := s.runTurn(context.Background(), msg.Message); err != nil {
			c.Send(realtime.Response(fmt.Sprintf("Error: %v", err)))
		}
	}()
}

func (s *Server) handleWSReset(c *realtime.Client, msg *realtime.InboundMessage) {
	if err := s.resetConversation(); err != nil {
		logging.Errorf("server: reset: %v", err)
	}
}

// runTurn submits one turn to the main lane and blocks until it completes.
// All broadcasts happen on the lane worker, between the turn's start and its
// completion, so events of consecutive turns never interleave and every
// client sees thinking first and response last.
func (s *Server) runTurn(ctx context.Context, message string) (string, error) {
	outcome := s.exec.Submit(ctx, executor.LaneMain, func(c context.Context) (string, error) {
		s.hub.Broadcast(realtime.Thinking())
		output, err := s.runner.RunTurn(c, session.InteractiveKey, message, s.relayEvents())
		if err != nil {
			return "", err
		}
		s.hub.Broadcast(realtime.Response(output))
		return output, nil
	})
	if outcome.Err != nil {
		return "", outcome.Err
	}
	return outcome.Output, nil
}

// relayEvents converts runner stream events into broadcasts. Text preceding
// a tool call is intermediate assistant commentary and goes out as a message
// event; the final text is broadcast as the response by runTurn.
func (s *Server) relayEvents() func(ai.StreamEvent) {
	var pending string
	return func(ev ai.StreamEvent) {
		switch ev.Type {
		case ai.EventTypeText:
			pending += ev.Text
		case ai.EventTypeToolResult:
			if pending != "" {
				s.hub.Broadcast(realtime.Message(pending))
				pending = ""
			}
			if ev.ToolCall != nil {
				s.hub.Broadcast(realtime.ToolCall(ev.ToolCall.Name, ev.ToolCall.Input, ev.Text))
			}
		}
	}
}

// resetConversation clears the interactive session and acknowledges to all
// clients.
func (s *Server) resetConversation() error {
	if err := s.sessions.Reset(session.InteractiveKey); err != nil {
		return err
	}
	s.hub.Broadcast(realtime.ResetAck())
	return nil
}
