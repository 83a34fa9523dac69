// The main package for the scrapydash executable.
package main

import (
	"github.com/JakeFAU/ai-scrapy-dashboard/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
