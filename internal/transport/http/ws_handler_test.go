package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spelling-assessment-service/internal/app"
	"spelling-assessment-service/internal/domain"
	"spelling-assessment-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketScoringFlow(t *testing.T) {
	service := newTestService()
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?roundId=round-1&evaluator=ms-jansen"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the opened snapshot first, echoing the evaluator back.
	msgType, payload := readNext(conn, t, "opened")
	if msgType != "opened" {
		t.Fatalf("expected opened, got %s", msgType)
	}
	if evaluator, _ := payload["evaluator"].(string); evaluator != "ms-jansen" {
		t.Fatalf("expected evaluator echoed in opened payload, got %v", payload)
	}

	// Judge one rule.
	judge := map[string]any{
		"type": "judge",
		"payload": map[string]any{
			"studentId": "s1",
			"wordId":    "w1",
			"ruleId":    "r1",
			"correct":   false,
		},
	}
	if err := conn.WriteJSON(judge); err != nil {
		t.Fatalf("write judge: %v", err)
	}

	// Expect recorded ack then progress broadcast.
	recordedSeen := false
	progressSeen := false
	for i := 0; i < 3; i++ {
		typ, _ := readNext(conn, t, "")
		switch typ {
		case "recorded":
			recordedSeen = true
		case "progress":
			progressSeen = true
		}
		if recordedSeen && progressSeen {
			break
		}
	}
	if !recordedSeen || !progressSeen {
		t.Fatalf("expected recorded and progress, got recorded=%v progress=%v", recordedSeen, progressSeen)
	}
}

func TestWebSocketRejectsUnknownRule(t *testing.T) {
	service := newTestService()
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?roundId=round-1&evaluator=ms-jansen"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "opened")

	judge := map[string]any{
		"type": "judge",
		"payload": map[string]any{
			"studentId": "s1",
			"wordId":    "w1",
			"ruleId":    "r-unknown",
			"correct":   true,
		},
	}
	if err := conn.WriteJSON(judge); err != nil {
		t.Fatalf("write judge: %v", err)
	}

	typ, payload := readNext(conn, t, "error")
	message, _ := payload["message"].(string)
	if typ != "error" || message == "" {
		t.Fatalf("expected error message, got %s %v", typ, payload)
	}
}

func TestWebSocketRequiresParams(t *testing.T) {
	service := newTestService()
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	for _, url := range []string{"/ws", "/ws?roundId=round-1", "/ws?evaluator=ms-jansen"} {
		resp, err := http.Get(server.URL + url)
		if err != nil {
			t.Fatalf("get %s: %v", url, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", url, resp.StatusCode)
		}
	}
}

func TestRoundSessionDroppedAfterLastClient(t *testing.T) {
	rounds := memory.NewRoundStore()
	rosters := memory.NewRosterRepository(memory.NewStaticRosterLoader(sampleRosters()), time.Minute)
	service := app.NewAssessmentService(rounds, rosters, nil)
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?roundId=round-1&evaluator=ms-jansen"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readNext(conn, t, "opened")

	if _, ok := rounds.Get("round-1"); !ok {
		t.Fatalf("expected live round session while client connected")
	}
	conn.Close()

	// handler teardown unsubscribes before Leave checks idleness
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := rounds.Get("round-1"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("round session never dropped after last client left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func newTestService() *app.AssessmentService {
	rounds := memory.NewRoundStore()
	rosters := memory.NewRosterRepository(memory.NewStaticRosterLoader(sampleRosters()), time.Minute)
	return app.NewAssessmentService(rounds, rosters, nil)
}

func sampleRosters() map[string]domain.Roster {
	return map[string]domain.Roster{
		"round-1": {
			Round: domain.TestRound{ID: "round-1", TenantID: "demo", Name: "Dictation 1"},
			Rules: []domain.SpellingRule{
				{ID: "r1", Code: "B1", Description: "open syllable"},
				{ID: "r2", Code: "B2", Description: "closed syllable"},
			},
			Words: []domain.Word{
				{ID: "w1", Text: "boom", RuleIDs: []string{"r1"}, TestRoundID: "round-1"},
				{ID: "w2", Text: "bakker", RuleIDs: []string{"r2"}, TestRoundID: "round-1"},
			},
			Students: []domain.Student{
				{ID: "s1", Name: "Alice", TestRoundID: "round-1"},
				{ID: "s2", Name: "Bram", TestRoundID: "round-1"},
			},
		},
	}
}
