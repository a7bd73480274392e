package server

import (
	"context"
	"net/http"
	"time"

	"kiroku/internal/camera"
	"kiroku/internal/recording"

	"github.com/gin-gonic/gin"
)

// errorResponse はエラー時の共通レスポンス
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// healthResponse はヘルスチェックのレスポンス
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// statusResponse はシステム状態のレスポンス
type statusResponse struct {
	Status    string          `json:"status"`
	Server    serverInfo      `json:"server"`
	Recording recordingStatus `json:"recording"`
	Camera    cameraStatus    `json:"camera"`
	Workers   map[string]bool `json:"workers"`
	Timestamp time.Time       `json:"timestamp"`
}

type serverInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type recordingStatus struct {
	Status  recording.Status `json:"status"`
	Session string           `json:"session,omitempty"`
}

type cameraStatus struct {
	Type        camera.Type `json:"type"`
	Path        string      `json:"path,omitempty"`
	Initialized bool        `json:"initialized"`
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	workers := map[string]bool{}
	for _, id := range []string{
		recording.RecordingID,
		recording.ProcessingID,
		camera.StreamID,
	} {
		workers[id] = s.bridge.IsRunning(id)
	}

	c.JSON(http.StatusOK, statusResponse{
		Status: "running",
		Server: serverInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Recording: recordingStatus{
			Status:  s.recording.Status(),
			Session: s.recording.Session(),
		},
		Camera: cameraStatus{
			Type:        s.camera.Type(),
			Path:        s.camera.CameraPath(),
			Initialized: s.camera.Initialized(),
		},
		Workers:   workers,
		Timestamp: time.Now(),
	})
}

// startRecordingRequest は録画開始リクエストのボディ
type startRecordingRequest struct {
	Session string            `json:"session"`
	Params  map[string]string `json:"params"`
}

// handleStartRecording は録画開始エンドポイントの実装
func (s *Server) handleStartRecording(c *gin.Context) {
	var req startRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "リクエストボディの解析に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	if s.recording.Status() == recording.StatusRecording {
		c.JSON(http.StatusConflict, errorResponse{
			Error:     "already_recording",
			Message:   "既に録画中です",
			Timestamp: time.Now(),
		})
		return
	}

	// セッション名が未指定の場合は生成してディレクトリを用意する
	name := req.Session
	if name == "" {
		name = s.sessions.NewName()
		if err := s.sessions.Create(name); err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{
				Error:     "session_create_failed",
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			return
		}
	}

	// 録画ワーカーはリクエストより長く生存するため、リクエストの
	// コンテキストには紐付けない
	if !s.recording.StartRecording(context.Background(), name, req.Params) {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "start_failed",
			Message:   "録画ワーカーの起動に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": name,
		"status":  s.recording.Status(),
	})
}

// handleStopRecording は録画停止エンドポイントの実装
func (s *Server) handleStopRecording(c *gin.Context) {
	if !s.recording.StopRecording() {
		c.JSON(http.StatusConflict, errorResponse{
			Error:     "not_recording",
			Message:   "録画中ではありません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": s.recording.Status(),
	})
}

// processRecordingRequest は後処理リクエストのボディ
type processRecordingRequest struct {
	Session string `json:"session"`
	Format  string `json:"format"`
}

// handleProcessRecording は後処理エンドポイントの実装
// 処理ワーカーの完了までブロックする
func (s *Server) handleProcessRecording(c *gin.Context) {
	var req processRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Session == "" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "セッション名が指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	if req.Format == "" {
		req.Format = "bvh"
	}

	// 処理時間に上限は設けない。クライアントが切断しても処理は継続する
	ok := s.recording.ProcessRecording(context.Background(), req.Session, req.Format)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "process_failed",
			Message:   "セッションの後処理に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": req.Session,
		"format":  req.Format,
		"status":  s.recording.Status(),
	})
}

// handleListSessions はセッション一覧エンドポイントの実装
// 一覧ワーカーの出力と、メタデータディレクトリの内容を返す
func (s *Server) handleListSessions(c *gin.Context) {
	workerListed := s.recording.AvailableSessions(c.Request.Context())

	stored, err := s.sessions.List()
	if err != nil {
		stored = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": workerListed,
		"stored":   stored,
	})
}

// sessionRequest はセッション操作リクエストのボディ
type sessionRequest struct {
	Name string `json:"name"`
}

// handleCreateSession はセッション作成エンドポイントの実装
func (s *Server) handleCreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "リクエストボディの解析に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	name := req.Name
	if name == "" {
		name = s.sessions.NewName()
	}

	if err := s.sessions.Create(name); err != nil {
		c.JSON(http.StatusConflict, errorResponse{
			Error:     "session_create_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name})
}

// handleRenameSession はセッション改名エンドポイントの実装
func (s *Server) handleRenameSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "新しいセッション名が指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	if err := s.sessions.Rename(c.Param("name"), req.Name); err != nil {
		c.JSON(http.StatusConflict, errorResponse{
			Error:     "session_rename_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": req.Name})
}

// handleDeleteSession はセッション削除エンドポイントの実装
func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "session_delete_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// handleDetectCamera はカメラ検出エンドポイントの実装
// 検出プロトコルの完了までブロックする
func (s *Server) handleDetectCamera(c *gin.Context) {
	detected := s.camera.DetectCamera(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"type": detected,
		"path": s.camera.CameraPath(),
	})
}

// handleStartCameraStream はストリーミング開始エンドポイントの実装
func (s *Server) handleStartCameraStream(c *gin.Context) {
	// ストリーミングワーカーもリクエストより長く生存する
	frames := s.camera.StartCameraStream(context.Background())
	if frames == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "no_camera",
			Message:   "カメラが検出できないため、ストリーミングを開始できません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type": s.camera.Type(),
		"path": s.camera.CameraPath(),
	})
}

// handleStopCameraStream はストリーミング停止エンドポイントの実装
func (s *Server) handleStopCameraStream(c *gin.Context) {
	killed := s.camera.StopCameraStream()

	c.JSON(http.StatusOK, gin.H{
		"stopped": killed,
	})
}
