package main

import (
	"github.com/f5xc-exporter/cmd/exporter"
)

func main() {
	exporter.Execute()
}
