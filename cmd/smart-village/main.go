// Package main is the smart-village entry point (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/VoTanTai-dp/smart-village-sub000/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
