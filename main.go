package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/roamjs/backend/internal/app"
)

func main() {
	// ローカル開発用に.envがあれば読み込む。本番環境では未配置のため何もしない。
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
