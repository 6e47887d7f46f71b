// Command doclink queries and relates documents of a document stack.
package main

import (
	"os"

	"github.com/kilupskalvis/doclink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
