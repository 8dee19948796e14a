/*
Package monitord documents the monitord module.

This module is CLI-first and ships the monitord command:

	go install github.com/nuetzliches/monitord/cmd/monitord@latest

The configuration loader, history stores and daemon runtime live in internal
packages and are not a stable public Go API.
*/
package monitord
