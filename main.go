package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Signature mismatches were already reported; only the exit code matters.
		if errors.Is(err, errSignatureMismatch) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
