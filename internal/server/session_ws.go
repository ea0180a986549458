package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vibewidget/internal/host"
)

const (
	sessionWSWriteWait = 10 * time.Second
	sessionWSPongWait  = 60 * time.Second
	sessionWSPingEvery = (sessionWSPongWait * 9) / 10
)

var sessionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// sessionWSInbound carries host-environment events for one mounted
// instance: runtime errors, recovery, trait writes, commits, targeted edit
// requests.
type sessionWSInbound struct {
	Type          string `json:"type"`
	Message       string `json:"message,omitempty"`
	Stack         string `json:"stack,omitempty"`
	Trait         string `json:"trait,omitempty"`
	Value         any    `json:"value,omitempty"`
	TargetElement string `json:"targetElement,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
}

type sessionWSOutbound struct {
	Type  string      `json:"type"`
	State *host.State `json:"state,omitempty"`
	Trait string      `json:"trait,omitempty"`
	Value any         `json:"value,omitempty"`
	Code  string      `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// handleSessionWS attaches a browser host to a mounted instance. Outbound
// frames push state snapshots, trait changes, and code replacements; inbound
// frames feed the error channel and the trait store.
func (a *API) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	instanceID := strings.TrimSpace(r.URL.Query().Get("instance_id"))
	if instanceID == "" {
		http.Error(w, "instance_id is required", http.StatusBadRequest)
		return
	}
	inst, ok := a.host.Lookup(instanceID)
	if !ok {
		http.Error(w, "no such instance", http.StatusNotFound)
		return
	}

	conn, err := sessionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(sessionWSPongWait)); err != nil {
		log.Printf("session ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))
	})

	writeCh := make(chan sessionWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(sessionWSPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	inst.OnState(func(st host.State) {
		pushSessionWS(writeCh, sessionWSOutbound{Type: "state", State: &st})
	})
	inst.OnCode(func(code string) {
		pushSessionWS(writeCh, sessionWSOutbound{Type: "code", Code: code})
	})
	unobserve := inst.Traits.Observe(func(name string, value any) {
		pushSessionWS(writeCh, sessionWSOutbound{Type: "trait", Trait: name, Value: value})
	})
	defer unobserve()
	defer inst.OnState(nil)
	defer inst.OnCode(nil)

	// Initial snapshot so the client renders without waiting for a change.
	st := inst.State()
	pushSessionWS(writeCh, sessionWSOutbound{Type: "state", State: &st})

	for {
		var in sessionWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch in.Type {
		case "error":
			a.host.ReportError(inst, in.Message, in.Stack)
		case "recovered":
			a.host.ReportRecovered(inst)
		case "set":
			if err := inst.Traits.Set(in.Trait, in.Value); err != nil {
				pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Error: err.Error()})
			}
		case "commit":
			inst.Traits.Commit()
		case "edit":
			art, err := a.host.Edit(ctx, inst, host.EditRequest{
				TargetElement: in.TargetElement,
				Prompt:        in.Prompt,
			})
			if err != nil {
				pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Error: err.Error()})
				continue
			}
			pushSessionWS(writeCh, sessionWSOutbound{Type: "edited", Code: art.Code})
		default:
			pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Error: "unknown message type " + in.Type})
		}
	}
}

func pushSessionWS(ch chan<- sessionWSOutbound, out sessionWSOutbound) {
	select {
	case ch <- out:
	default:
		log.Printf("session ws write buffer full, dropping %s frame", out.Type)
	}
}
