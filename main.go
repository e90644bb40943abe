package main

import "github.com/openfactlab/article-harvester/cmd"

func main() {
	cmd.Execute()
}
