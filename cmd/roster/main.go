// Command roster はアカウントとキャラクターのライフサイクルを管理するAPIサーバーと完全削除ワーカー。
//
// 使い方:
//
//	roster [serve]              APIサーバーを起動する
//	roster worker               完全削除スケジューラを起動する
//	roster migrate [up|down N|version]
//	roster healthcheck          /health を確認する（Docker用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/roster/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "roster: %v\n", err)
		os.Exit(1)
	}
}
