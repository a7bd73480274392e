// Package camera カメラの検出とストリーミング制御を担う
//
// # 責務
// - 検出ワーカーによるカメラ検出プロトコルの実行（Raspberry Pi → Webカメラの順）
// - 検出されたカメラ種別とデバイスパスの管理
// - ストリーミングワーカーの起動/停止とフレームイベントの配信
//
// # 仕様
// - 検出は逐次プロトコルであり、2番目のプローブは1番目が
//   CAMERA_FOUND:センチネルを出さずに終端した場合のみ実行される
// - フレームデータはワーカー出力行をそのまま保持する不透明なテキスト
//   （バイナリフレームの解釈はこのパッケージの責務外）
// - ストリーミングワーカーは論理ID "camera_stream" で起動される
package camera
