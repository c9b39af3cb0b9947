package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/skywatch/apod-pipeline/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var coded *cmd.CodedError
	if errors.As(err, &coded) {
		os.Exit(coded.Code)
	}
	os.Exit(1)
}
