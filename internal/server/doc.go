// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 録画・カメラ操作のAPI提供を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 録画の開始・停止・後処理APIの提供
//   - セッションメタデータの操作APIの提供
//   - カメラ検出・ストリーミングAPIの提供
//   - ワーカー出力行・フレームイベントのWebSocket配信
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応（終了時に全ワーカーを停止）
//   - 複数クライアントの同時接続をサポート
package server
