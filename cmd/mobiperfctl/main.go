// mobiperfctl queries the mobiperf data layer as a given principal.
package main

import (
	"os"

	"mobiperf/backend/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
