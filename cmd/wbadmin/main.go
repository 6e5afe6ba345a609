package main

import "github.com/vishal-tambi/white-board-collabration-app/internal/admin"

func main() {
	admin.Execute()
}
