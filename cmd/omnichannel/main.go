// Command omnichannel runs the message gateway: provider webhooks, the
// desktop bridge API, the outbound sender workers and the maintenance sweeps.
//
// @title                      Omnichannel Gateway API
// @version                    1.0
// @description                Inbound webhooks, identity linking, bridge outbox and tool invocation.
// @BasePath                   /
// @schemes                    http https
//
// @securityDefinitions.apikey BridgeBearer
// @in                         header
// @name                       Authorization
// @description                "Bearer <IMESSAGE_BRIDGE_SHARED_SECRET>"
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
