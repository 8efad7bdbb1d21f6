package main

import (
	"context"

	"github.com/agentic-layer/sdk-go/pkg/cli"
)

func main() {
	cli.Execute(context.Background())
}
