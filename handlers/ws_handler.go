package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/linskybing/gpulab/models"
	"github.com/linskybing/gpulab/response"
	"github.com/linskybing/gpulab/services"
	"github.com/linskybing/gpulab/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	svc *services.SessionService
}

func NewWSHandler(svc *services.SessionService) *WSHandler {
	return &WSHandler{svc: svc}
}

type gpusFrame struct {
	Type string       `json:"type"`
	GPUs []models.GPU `json:"gpus"`
}

type accountFrame struct {
	Type    string         `json:"type"`
	Student models.Student `json:"student"`
}

// Updates streams directory and own-account snapshots to the client as the
// underlying store subscriptions fire. One goroutine owns the connection
// writes; the read loop exists only to notice the peer going away.
func (h *WSHandler) Updates(c *gin.Context) {
	identity, err := utils.IdentityFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{Error: "unauthorized"})
		return
	}

	// Provision before subscribing so the account stream has a document.
	if _, err := h.svc.Account(c.Request.Context(), identity); err != nil {
		c.JSON(http.StatusBadGateway, response.ErrorResponse{Error: err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Error: "websocket upgrade failed: " + err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writeChan := make(chan []byte, 100)

	go func() {
		defer conn.Close()
		for {
			select {
			case msg := <-writeChan:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	gpuCh, cancelGPUs := h.svc.Repos.Directory.Subscribe(ctx)
	defer cancelGPUs()
	accountCh, cancelAccount := h.svc.Repos.Ledger.Subscribe(ctx, identity.StudentID)
	defer cancelAccount()

	for {
		select {
		case <-ctx.Done():
			return
		case gpus, ok := <-gpuCh:
			if !ok {
				return
			}
			push(writeChan, gpusFrame{Type: "gpus", GPUs: gpus})
		case student, ok := <-accountCh:
			if !ok {
				return
			}
			push(writeChan, accountFrame{Type: "account", Student: student})
		}
	}
}

func push(writeChan chan []byte, frame interface{}) {
	msg, err := json.Marshal(frame)
	if err != nil {
		log.Println("failed to marshal ws frame:", err)
		return
	}
	select {
	case writeChan <- msg:
	default:
	}
}
