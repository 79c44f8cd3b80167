// Command docsyncctl is a headless sync client: it opens an engine session
// directly against the configured remote store, acting as --user.
package main

func main() {
	Execute()
}
