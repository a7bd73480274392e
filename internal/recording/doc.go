// Package recording 録画操作の制御と状態管理を担う
//
// # 責務
// - 録画ワーカー・処理ワーカーの起動/停止リクエストのBridge呼び出しへの変換
// - ワーカー出力のセンチネル文字列による録画状態の導出
// - 録画状態（idle/initializing/recording/processing/error）の一元管理
// - ワーカー出力行の購読者への転送
//
// # 仕様
// - 録画ワーカーは論理ID "recording"、処理ワーカーは "processing" で起動される
// - 状態はControllerのみ変更し、購読者は通知チャンネルで観測する
// - ワーカーのエラーは状態遷移として表面化し、例外としては伝播しない
package recording
