package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// frameMessage はフレームイベントのWebSocketメッセージ
type frameMessage struct {
	Data       string    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// handleRecordingOutput はワーカー出力行のWebSocket配信の実装
func (s *Server) handleRecordingOutput(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocketのアップグレードに失敗しました: %v", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	lines, cancel := s.recording.SubscribeOutput()

	// クライアント切断の検知
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for line := range lines {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			cancel()
			return
		}
	}
}

// handleCameraFrames はフレームイベントのWebSocket配信の実装
// ストリーミングが開始されていない場合はアップグレード前にエラーを返す
func (s *Server) handleCameraFrames(c *gin.Context) {
	frames := s.camera.Frames()
	if frames == nil {
		c.JSON(http.StatusConflict, errorResponse{
			Error:     "stream_not_active",
			Message:   "カメラストリームが開始されていません",
			Timestamp: time.Now(),
		})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocketのアップグレードに失敗しました: %v", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	frameCh, cancel := frames.Subscribe()

	// クライアント切断の検知
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	// ワーカーチャンネルの終端でループも終了する
	for frame := range frameCh {
		msg := frameMessage{
			Data:       frame.Data,
			ReceivedAt: frame.ReceivedAt,
		}
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return
		}
	}
}
