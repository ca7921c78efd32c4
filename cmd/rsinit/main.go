// Package main is the entry point for rsinit, the replica set bootstrap tool.
//
// @title          A.R.C. rsinit API
// @version        1.0
// @description    Replica set bootstrap service. Initiates a MongoDB replica set and exposes its status.
// @host           localhost:8082
// @BasePath       /
// @schemes        http
package main

func main() {
	Execute()
}
