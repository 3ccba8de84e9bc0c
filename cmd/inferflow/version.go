package main

import (
	"context"
	"fmt"

	inferflow "github.com/nitin-chandra-28/InferFlow"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(inferflow.Version)
	return nil
}
