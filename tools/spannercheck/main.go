// Command spannercheck flags Spanner client calls that escape a transaction
// scope callback.
//
//	go -C tools/spannercheck build -o ../../bin/spannercheck .
//	bin/spannercheck ./...
package main

import "golang.org/x/tools/go/analysis/singlechecker"

func main() {
	singlechecker.Main(Analyzer)
}
