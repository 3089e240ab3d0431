// The main package for the kontaktcrawler executable.
package main

import (
	"github.com/jobkontakt/crawler/cmd"
)

func main() {
	cmd.Execute()
}
