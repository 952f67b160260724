package main

import (
	"context"
	"os"

	"github.com/soumenroys/imotaraapp-sub002/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
