package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/procura/internal/app"
)

// The API process serves HTTP and gRPC; run `procura worker run` for consumers.
func main() {
	fx.New(app.Module).Run()
}
