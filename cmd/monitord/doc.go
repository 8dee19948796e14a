// Command monitord runs a monitoring daemon (server, proxy, agent or agent2)
// from a Key=Value configuration file.
//
// The configuration may reference environment variables as ${NAME} and pull
// in further files with Include. Agents register their UserParameter items
// and run them on request; servers and proxies start a pool of pollers and
// record their own process statistics.
//
// Install:
//
//	go install github.com/nuetzliches/monitord/cmd/monitord@latest
//
// Usage:
//
//	monitord run --dialect server -c /etc/monitord/monitord_server.conf
//	monitord config validate --dialect agent -c ./monitord_agent.conf --format text
package main
