// Command assetpack merges and caches the scripts and stylesheets of pages,
// and serves the resulting artifacts.
package main

func main() {
	execute()
}
