package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は取り込みAPI・リカバリーリンクのHTTPサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は遅延同期ジョブのランナーとクリーンアップを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は/healthを叩いて終了コードで結果を返す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// commands はサブコマンドと説明の一覧。Usageの表示順を兼ねる。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "取り込みAPIとリカバリーリンクのHTTPサーバーを起動する（既定）"},
	{CommandWorker, "遅延同期ジョブの実行と完了済みジョブの削除を行う"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "ローカルの/healthを確認する"},
	{CommandHelp, "この使い方を表示する"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。-h/--helpはCommandHelpとして扱う。
// 2つ目の戻り値は既知のサブコマンドだったかを示し、未知の場合はCommandServeを返す。
func ParseCommand(args []string) (Command, bool) {
	if len(args) == 0 {
		return CommandServe, true
	}

	arg := strings.TrimSpace(args[0])
	if arg == "-h" || arg == "--help" {
		return CommandHelp, true
	}
	for _, c := range commands {
		if string(c.cmd) == arg {
			return c.cmd, true
		}
	}
	return CommandServe, false
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: cartsync [command]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.desc)
	}
	return b.String()
}
