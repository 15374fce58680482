package http

import (
	"encoding/json"
	"log"
	"net/http"

	"spelling-assessment-service/internal/app"
	"spelling-assessment-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.AssessmentService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AssessmentService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type judgePayload struct {
	StudentID string `json:"studentId"`
	WordID    string `json:"wordId"`
	RuleID    string `json:"ruleId"`
	Correct   bool   `json:"correct"`
}

type notePayload struct {
	StudentID string `json:"studentId"`
	WordID    string `json:"wordId"`
	Text      string `json:"text"`
}

type markCorrectPayload struct {
	StudentID string `json:"studentId"`
	WordID    string `json:"wordId"`
}

type recordedPayload struct {
	StudentID string `json:"studentId"`
	WordID    string `json:"wordId"`
}

type openedPayload struct {
	Evaluator string               `json:"evaluator"`
	Progress  domain.RoundProgress `json:"progress"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// scoring use cases: judge, note, markCorrect in; recorded acks and progress
// snapshots out.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roundID := r.URL.Query().Get("roundId")
	evaluator := r.URL.Query().Get("evaluator")
	if roundID == "" || evaluator == "" {
		http.Error(w, "missing roundId or evaluator", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	opened, err := h.service.Open(r.Context(), roundID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), roundID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	// Leave must observe the round after this connection's subscription is
	// gone, so it is deferred first (cancel runs before it on unwind).
	defer h.service.Leave(r.Context(), roundID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// enqueue the opened snapshot before progress forwarding starts so the
	// client always sees it first
	send <- outboundMessage[any]{Type: "opened", Payload: openedPayload{Evaluator: evaluator, Progress: opened}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "progress", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "judge":
			var payload judgePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid judge payload"}}
				continue
			}
			if _, err := h.service.JudgeRule(r.Context(), roundID, payload.StudentID, payload.WordID, payload.RuleID, payload.Correct); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "recorded", Payload: recordedPayload{StudentID: payload.StudentID, WordID: payload.WordID}}
		case "note":
			var payload notePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid note payload"}}
				continue
			}
			if _, err := h.service.SetNote(r.Context(), roundID, payload.StudentID, payload.WordID, payload.Text); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "recorded", Payload: recordedPayload{StudentID: payload.StudentID, WordID: payload.WordID}}
		case "markCorrect":
			var payload markCorrectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid markCorrect payload"}}
				continue
			}
			if _, err := h.service.MarkAllCorrect(r.Context(), roundID, payload.StudentID, payload.WordID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "recorded", Payload: recordedPayload{StudentID: payload.StudentID, WordID: payload.WordID}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
