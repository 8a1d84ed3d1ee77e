// Package main provides the entry point for captchagate.
//
// Usage:
//
//	captchagate serve
//	captchagate fetch <url>
//	captchagate version
//
// Configuration is read from the environment; see --help for flags.
package main

func main() {
	Execute()
}
