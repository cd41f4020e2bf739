// Command mediatech はMediaTechのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	mediatech [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/mediatech/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mediatech: %v\n", err)
		os.Exit(1)
	}
}
