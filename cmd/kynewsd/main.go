package main

import (
	"kynews/cmd/handlers"
)

func main() {
	handlers.Execute()
}
