// Command npkgraph prints a Graphviz DOT description of a driver
// manager's registry: manifests, bound driver instances, and their
// published device-api objects. The rendering idea mirrors a `go mod
// graph` to DOT digraph converter, pointed at the driver registry
// instead of module dependencies, since a kernel build has no module
// graph worth visualizing but very much has a driver-binding graph an
// operator wants to see.
package main

import (
	"flag"
	"fmt"
	"os"

	"northport/drivers"
)

func main() {
	abi := flag.String("abi", "v1.0.0", "kernel driver ABI version to validate registered manifests against")
	flag.Parse()

	mgr := drivers.NewManager(*abi)
	// A real invocation would load manifests from the driver images
	// passed on the command line; npkgraph as shipped here only knows
	// how to render whatever registry its caller built, so callers that
	// want a populated graph embed this package's logic directly rather
	// than invoking the binary standalone.
	fmt.Fprint(os.Stdout, mgr.DotGraph())
}
