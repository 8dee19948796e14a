package main

import (
	"os"

	"github.com/nuetzliches/monitord/internal/app"
)

func main() {
	os.Exit(app.Main(os.Args))
}
