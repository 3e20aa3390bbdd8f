package main

import "pdfcache/cmd"

func main() {
	cmd.Run()
}
