package main

import (
	"os"

	imagesearchcmder "github.com/totenbilder/imagesearch/cmd/imagesearch"
)

func main() {
	cmd := imagesearchcmder.NewImageSearchCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
