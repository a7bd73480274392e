// Package process ワーカープロセスの起動・監視・出力多重化を担う
//
// # 責務
// - 論理IDをキーとした子プロセスレジストリの管理
// - 標準出力・標準エラー出力の行単位での読み取りと配信
// - プロセス終了の検出とレジストリからの確実な削除
// - 複数購読者への出力ブロードキャスト
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 外部スクリプトを子プロセスとして起動したい
// - 同じ操作（論理ID）のプロセスを二重起動したくない
// - プロセスの出力行を複数のコンシューマに配信したい
//
// # 仕様
// - Bridge: 論理ID単位のプロセス起動・停止・照会
// - Broadcast: 1プロデューサ・N購読者の行チャンネル
// - 同一IDに対して生存するプロセスは常に最大1つ
// - プロセス終了時、IDの登録解除とチャンネルのクローズは正確に1回行われる
// - 標準エラー出力の行は "ERROR: " プレフィックス付きで転送される
// - Thread-safe な操作をサポート
package process
