package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandBrowse は対話ブラウズモードで起動することを示す。
	CommandBrowse Command = "browse"
	// CommandFetch はカタログを1回取得して出力するモードで起動することを示す。
	CommandFetch Command = "fetch"
	// CommandMigrate はローカルデータベースのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandBrowseを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandBrowse
	}

	switch args[0] {
	case "browse":
		return CommandBrowse
	case "fetch":
		return CommandFetch
	case "migrate":
		return CommandMigrate
	default:
		return CommandBrowse
	}
}
