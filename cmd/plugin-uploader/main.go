package main

import (
	// Embedded CA bundle for hosts without system roots (scratch/distroless images).
	_ "github.com/breml/rootcerts"

	"github.com/oshokin/plugin-uploader/cmd/plugin-uploader/cmd"
)

func main() {
	cmd.Execute()
}
