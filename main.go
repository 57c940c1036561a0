package main

import "github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/cmd"

func main() {
	cmd.Execute()
}
