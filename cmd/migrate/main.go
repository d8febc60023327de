package main

import (
	"log"

	tool "github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/migrate"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
