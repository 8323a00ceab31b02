package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/service"
)

type chatRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
	Model   string `json:"model"`
	Stream  bool   `json:"stream"`
}

type chatResponse struct {
	ChatID       string         `json:"chat_id,omitempty"`
	Message      models.Message `json:"message"`
	LimitReached bool           `json:"limit_reached,omitempty"`
}

type streamEvent struct {
	Delta        *string         `json:"delta,omitempty"`
	Replace      *string         `json:"replace,omitempty"`
	Done         bool            `json:"done,omitempty"`
	ChatID       string          `json:"chat_id,omitempty"`
	Message      *models.Message `json:"message,omitempty"`
	LimitReached bool            `json:"limit_reached,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// eventStream writes server-sent events. Headers are sent lazily so that
// errors raised before the first event still get a plain JSON response.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (e *eventStream) send(evt streamEvent) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[chatRequest](r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	profile := profileFrom(r)
	in := service.AskInput{ChatID: req.ChatID, Message: req.Message, Model: req.Model}

	if !req.Stream {
		res, err := s.chats.Ask(r.Context(), profile, in, nil)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, chatResponse{ChatID: res.ChatID, Message: res.Message, LimitReached: res.LimitReached})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, CodedErrorf(http.StatusInternalServerError, "streaming not supported"))
		return
	}
	stream := &eventStream{w: w, flusher: flusher}

	res, err := s.chats.Ask(r.Context(), profile, in, func(delta string) error {
		return stream.send(streamEvent{Delta: &delta})
	})
	if err != nil {
		if !stream.started {
			WriteError(w, r, err)
			return
		}
		msg := err.Error()
		if statusFor(err) == http.StatusInternalServerError {
			s.log.Error("chat stream failed", "user", profile.ID, "err", err)
			msg = "internal server error"
		}
		_ = stream.send(streamEvent{Error: msg, Done: true})
		return
	}

	if res.LimitReached {
		_ = stream.send(streamEvent{Done: true, LimitReached: true, Message: &res.Message})
		return
	}
	if res.Replaced {
		if err := stream.send(streamEvent{Replace: &res.Message.Content}); err != nil {
			return
		}
	}
	_ = stream.send(streamEvent{Done: true, ChatID: res.ChatID, Message: &res.Message})
}

type listChatsParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

func (s *Server) listChats(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[listChatsParams](r)
	if err != nil {
		return nil, err
	}
	return s.chats.List(r.Context(), profileFrom(r), params.Limit, params.Offset)
}

func (s *Server) getChat(r *http.Request) (any, error) {
	return s.chats.Get(r.Context(), profileFrom(r), chi.URLParam(r, "id"))
}

func (s *Server) saveChat(r *http.Request) (any, error) {
	chat, err := ParseRequest[models.Chat](r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	if chat.ID != "" && chat.ID != id {
		return nil, CodedErrorf(http.StatusBadRequest, "chat id in body does not match url")
	}
	chat.ID = id
	return s.chats.Save(r.Context(), profileFrom(r), &chat)
}

func (s *Server) deleteChat(r *http.Request) (any, error) {
	if err := s.chats.Delete(r.Context(), profileFrom(r), chi.URLParam(r, "id")); err != nil {
		return nil, err
	}
	return nil, nil
}

type exportParams struct {
	Format string `schema:"format"`
}

type exportResponse struct {
	URL string `json:"url"`
}

func (s *Server) exportChat(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[exportParams](r)
	if err != nil {
		return nil, err
	}
	format := service.ExportFormat(params.Format)
	if format == "" {
		format = service.ExportMarkdown
	}
	url, err := s.chats.Export(r.Context(), profileFrom(r), chi.URLParam(r, "id"), format)
	if err != nil {
		return nil, err
	}
	return exportResponse{URL: url}, nil
}
