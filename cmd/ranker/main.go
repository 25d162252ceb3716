// Command ranker runs the channel discovery and ranking pipeline.
package main

import (
	"github.com/JakeFAU/channel-ranker/cmd"
)

func main() {
	cmd.Execute()
}
