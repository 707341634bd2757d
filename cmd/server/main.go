package main

import (
	_ "github.com/Anurag-amrev-7557/FxSync-sub003/docs"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/bootstrap"
)

// @title FxSync Session API
// @version 1.0.0
// @description Shared playback sessions with controller arbitration

// @BasePath /v1

func main() {
	bootstrap.Run()
}
