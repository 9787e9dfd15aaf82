package main

import (
	_ "github.com/AldoManuel/juchifood/src/admintools"
	_ "github.com/AldoManuel/juchifood/src/locals3/cmd"
	_ "github.com/AldoManuel/juchifood/src/migration"
	"github.com/AldoManuel/juchifood/src/website"
)

func main() {
	website.WebsiteCommand.Execute()
}
