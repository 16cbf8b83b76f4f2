package main

import "github.com/pestline/go-auth/cmd/fieldctl/cmd"

func main() {
	cmd.Execute()
}
