package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	// STORAGE_BACKEND=postgres の場合のみ意味を持つ。
	CommandMigrate Command = "migrate"
	// CommandStats は構成済みストレージの集計結果をJSONで標準出力に書き出す。
	CommandStats Command = "stats"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "stats":
		return CommandStats
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
