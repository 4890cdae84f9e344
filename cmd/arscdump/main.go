// Command arscdump decodes and publicizes Android resources.arsc tables.
package main

import "github.com/go-apktool/arsctool/cmd/arscdump/cmd"

func main() {
	cmd.Execute()
}
