// Package main is the embracesql command line.
//
// Commands:
//   - serve: run the HTTP boundary over every configured database
//   - migrate: apply <root>/migrations/<database>/*.sql
//   - describe: print the enriched catalog and generated modules as YAML
//   - analyze: parse a query and report its parameters and result columns
//   - token: sign a bearer token for trying out authorization rules
//
// Every command works on a root directory holding embracesql.yaml, .env and
// migrations, the current directory unless --root is given.
package main

func main() {
	Execute()
}
