package main

import "os"

// cmdStdout is where every command's JSON result is written. Kept as a
// var (rather than a literal os.Stdout at each call site) so a future test
// harness for this package could redirect it.
var cmdStdout = os.Stdout
